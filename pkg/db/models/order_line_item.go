package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderLineItem is the immutable per-product snapshot inside an order.
// Name, seller, and unit price are frozen at order time so later catalog
// edits never rewrite history.
type OrderLineItem struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID  uuid.UUID `gorm:"column:product_id;type:uuid;not null;index"`
	Name       string    `gorm:"column:name;not null"`
	SellerID   uuid.UUID `gorm:"column:seller_id;type:uuid;not null;index"`
	Quantity   int       `gorm:"column:quantity;not null"`
	UnitPaise  int64     `gorm:"column:unit_paise;not null"`
	TotalPaise int64     `gorm:"column:total_paise;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (o *OrderLineItem) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
