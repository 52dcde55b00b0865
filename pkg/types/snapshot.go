package types

import "github.com/google/uuid"

// OrderItemSnapshot is the frozen copy of catalog data captured when a
// payment record is created, before any order exists. The reconciler
// rebuilds the order from this snapshot, never from the live cart.
type OrderItemSnapshot struct {
	ProductID  uuid.UUID `json:"product_id"`
	Name       string    `json:"name"`
	SellerID   uuid.UUID `json:"seller_id"`
	Quantity   int       `json:"quantity"`
	UnitPaise  int64     `json:"unit_paise"`
	TotalPaise int64     `json:"total_paise"`
}
