package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/bazaarly/bazaarly-backend/pkg/errors"
	"github.com/bazaarly/bazaarly-backend/pkg/types"

	"github.com/bazaarly/bazaarly-backend/pkg/db/models"
)

// ProductReader is the catalog surface the builder needs.
type ProductReader interface {
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// RequestedItem is one (product, quantity) pair of buyer intent. It
// carries no price: the builder always prices from the live catalog.
type RequestedItem struct {
	ProductID uuid.UUID
	Quantity  int
}

// BuildOptions tunes how the builder treats missing products.
type BuildOptions struct {
	// SkipMissing drops lines whose product no longer exists instead of
	// failing. Cart-sourced builds set this; direct purchases do not.
	SkipMissing bool
}

// BuildResult is the priced snapshot plus the server-derived total.
type BuildResult struct {
	Lines      []types.OrderItemSnapshot `json:"lines"`
	TotalPaise int64                     `json:"total_paise"`
}

// Builder turns buyer intent into a validated, server-priced line-item
// snapshot. It performs no writes; a failed build has no side effects.
type Builder struct {
	products ProductReader
}

// NewBuilder constructs a Builder over the given catalog reader.
func NewBuilder(products ProductReader) (*Builder, error) {
	if products == nil {
		return nil, fmt.Errorf("product reader required")
	}
	return &Builder{products: products}, nil
}

// WithReader returns a Builder bound to a different catalog reader,
// used to re-validate inside a transaction.
func (b *Builder) WithReader(products ProductReader) *Builder {
	if products == nil {
		return b
	}
	return &Builder{products: products}
}

// Build validates and prices every requested item against the current
// catalog. Quantities must be positive, the product must exist (subject
// to SkipMissing), and requested quantity may not exceed current stock.
// Any failure aborts the whole build.
func (b *Builder) Build(ctx context.Context, items []RequestedItem, opts BuildOptions) (*BuildResult, error) {
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}

	result := &BuildResult{Lines: make([]types.OrderItemSnapshot, 0, len(items))}
	for _, item := range items {
		if item.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}

		product, err := b.products.FindProduct(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				if opts.SkipMissing {
					continue
				}
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
					WithDetails(map[string]any{"product_id": item.ProductID})
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}
		if !product.IsActive {
			if opts.SkipMissing {
				continue
			}
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"product_id": item.ProductID})
		}

		if item.Quantity > product.Quantity {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock,
				fmt.Sprintf("insufficient stock for %s", product.Name)).
				WithDetails(map[string]any{
					"product_id": product.ID,
					"requested":  item.Quantity,
					"available":  product.Quantity,
				})
		}

		lineTotal := product.PricePaise * int64(item.Quantity)
		result.Lines = append(result.Lines, types.OrderItemSnapshot{
			ProductID:  product.ID,
			Name:       product.Name,
			SellerID:   product.SellerID,
			Quantity:   item.Quantity,
			UnitPaise:  product.PricePaise,
			TotalPaise: lineTotal,
		})
		result.TotalPaise += lineTotal
	}

	if len(result.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no purchasable items remain")
	}
	return result, nil
}
