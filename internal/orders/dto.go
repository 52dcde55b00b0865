package orders

import (
	"github.com/google/uuid"

	"github.com/bazaarly/bazaarly-backend/pkg/db/models"
	"github.com/bazaarly/bazaarly-backend/pkg/enums"
	"github.com/bazaarly/bazaarly-backend/pkg/types"
)

// PlaceOrderInput is the validated snapshot plus checkout metadata the
// writer persists. Lines come from the checkout builder; totals are
// recomputed here, never taken from the client.
type PlaceOrderInput struct {
	BuyerID         uuid.UUID
	Lines           []types.OrderItemSnapshot
	Method          enums.PaymentMethod
	ShippingAddress *types.Address
	PaymentID       *uuid.UUID
	GatewayOrderRef *string
	Reference       string
}

// OrderList is one page of a buyer's orders.
type OrderList struct {
	Orders     []models.Order
	NextCursor string
}

// SellerOrderView is a shared order reduced to one seller's lines.
type SellerOrderView struct {
	Order         models.Order
	Lines         []models.OrderLineItem
	SubtotalPaise int64
}

// SellerOrderList is one page of orders containing a seller's lines,
// plus the seller's all-time sales over paid and completed orders.
type SellerOrderList struct {
	Orders     []SellerOrderView
	SalesPaise int64
	NextCursor string
}
