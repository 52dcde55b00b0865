package payments

import (
	"github.com/google/uuid"

	"github.com/bazaarly/bazaarly-backend/internal/checkout"
	"github.com/bazaarly/bazaarly-backend/pkg/db/models"
	"github.com/bazaarly/bazaarly-backend/pkg/enums"
	"github.com/bazaarly/bazaarly-backend/pkg/types"
)

// StartInput begins a checkout. When FromCart is true the line items are
// sourced from the buyer's cart and Items must be empty; otherwise Items
// names the products directly (a "buy now" purchase).
type StartInput struct {
	BuyerID         uuid.UUID
	Method          enums.PaymentMethod
	FromCart        bool
	Items           []checkout.RequestedItem
	ShippingAddress *types.Address
	UPIID           *string
	BankCode        *string
}

// StartResult carries the created payment record and, for cash checkouts,
// the order placed in the same transaction. Prepaid checkouts return the
// gateway order handle the client needs to open the payment flow.
type StartResult struct {
	Payment        *models.Payment `json:"payment"`
	Order          *models.Order   `json:"order,omitempty"`
	GatewayOrderID string          `json:"gateway_order_id,omitempty"`
	GatewayKeyID   string          `json:"gateway_key_id,omitempty"`
}

// VerifyInput is the signed confirmation the gateway posts back after the
// buyer completes a prepaid payment.
type VerifyInput struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}
