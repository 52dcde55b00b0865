package cart

import (
	"github.com/google/uuid"

	"github.com/bazaarly/bazaarly-backend/internal/checkout"
)

// LineView is one cart line joined with its live catalog data.
type LineView struct {
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	UnitPaise int64     `json:"unit_paise"`
	Quantity  int       `json:"quantity"`
	LinePaise int64     `json:"line_paise"`
	Available int       `json:"available"`
	SellerID  uuid.UUID `json:"seller_id"`
}

// CartView is the buyer-facing cart projection after dangling lines are
// dropped and stale prices repaired.
type CartView struct {
	ID         uuid.UUID  `json:"id"`
	BuyerID    uuid.UUID  `json:"buyer_id"`
	Lines      []LineView `json:"lines"`
	TotalPaise int64      `json:"total_paise"`
}

// RequestedItems converts the view into builder input for checkout.
func (v *CartView) RequestedItems() []checkout.RequestedItem {
	if v == nil {
		return nil
	}
	items := make([]checkout.RequestedItem, 0, len(v.Lines))
	for _, line := range v.Lines {
		items = append(items, checkout.RequestedItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
		})
	}
	return items
}

// IsEmpty reports whether the view has no purchasable lines.
func (v *CartView) IsEmpty() bool {
	return v == nil || len(v.Lines) == 0
}
