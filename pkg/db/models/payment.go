package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bazaarly/bazaarly-backend/pkg/enums"
	"github.com/bazaarly/bazaarly-backend/pkg/types"
)

// Payment is the durable record of a payment attempt. Items holds the
// snapshot captured at creation; it is the source the reconciler builds
// the order from once the gateway confirms. OrderID is the back-link
// written during reconciliation and doubles as the idempotency guard.
type Payment struct {
	ID               uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID          uuid.UUID                 `gorm:"column:buyer_id;type:uuid;not null;index"`
	OrderReference   string                    `gorm:"column:order_reference;not null"`
	Method           enums.PaymentMethod       `gorm:"column:method;type:text;not null"`
	GatewayOrderID   *string                   `gorm:"column:gateway_order_id;index"`
	GatewayPaymentID *string                   `gorm:"column:gateway_payment_id"`
	GatewaySignature *string                   `gorm:"column:gateway_signature"`
	UPIID            *string                   `gorm:"column:upi_id"`
	BankCode         *string                   `gorm:"column:bank_code"`
	Items            []types.OrderItemSnapshot `gorm:"column:items;type:jsonb;serializer:json"`
	ShippingAddress  *types.Address            `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	AmountPaise      int64                     `gorm:"column:amount_paise;not null"`
	Status           enums.PaymentStatus       `gorm:"column:status;type:text;not null;default:'pending'"`
	OrderID          *uuid.UUID                `gorm:"column:order_id;type:uuid;index"`
	CreatedAt        time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
