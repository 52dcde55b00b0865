package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/bazaarly/bazaarly-backend/api/responses"
	"github.com/bazaarly/bazaarly-backend/api/validators"
	cartsvc "github.com/bazaarly/bazaarly-backend/internal/cart"
	"github.com/bazaarly/bazaarly-backend/internal/checkout"
	pkgerrors "github.com/bazaarly/bazaarly-backend/pkg/errors"
	"github.com/bazaarly/bazaarly-backend/pkg/logger"
)

type quoteItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gt=0"`
}

type quoteRequest struct {
	FromCart bool               `json:"from_cart"`
	Items    []quoteItemRequest `json:"items" validate:"dive"`
}

// CheckoutQuote prices the requested items without reserving stock.
// Cart-sourced quotes skip products that vanished; direct quotes fail.
func CheckoutQuote(builder *checkout.Builder, carts cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, err := buyerIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload quoteRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var requested []checkout.RequestedItem
		if payload.FromCart {
			if len(payload.Items) > 0 {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.New(pkgerrors.CodeValidation, "cart quote does not accept explicit items"))
				return
			}
			view, err := carts.GetCart(r.Context(), buyerID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if view.IsEmpty() {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.New(pkgerrors.CodeValidation, "cart is empty"))
				return
			}
			requested = view.RequestedItems()
		} else {
			requested = make([]checkout.RequestedItem, 0, len(payload.Items))
			for _, item := range payload.Items {
				requested = append(requested, checkout.RequestedItem{
					ProductID: item.ProductID,
					Quantity:  item.Quantity,
				})
			}
		}

		result, err := builder.Build(r.Context(), requested, checkout.BuildOptions{SkipMissing: payload.FromCart})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
