package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bazaarly/bazaarly-backend/internal/catalog"
	"github.com/bazaarly/bazaarly-backend/pkg/db/models"
	pkgerrors "github.com/bazaarly/bazaarly-backend/pkg/errors"
	"github.com/bazaarly/bazaarly-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service owns cart reads and mutations. Reads run the repair pass:
// dangling lines are dropped and zero-priced lines are re-stamped from
// the current catalog price before the cart is returned.
type Service interface {
	GetCart(ctx context.Context, buyerID uuid.UUID) (*CartView, error)
	AddItem(ctx context.Context, buyerID, productID uuid.UUID, quantity int) (*CartView, error)
	UpdateItemQuantity(ctx context.Context, buyerID, productID uuid.UUID, quantity int) (*CartView, error)
	RemoveItem(ctx context.Context, buyerID, productID uuid.UUID) (*CartView, error)
	Clear(ctx context.Context, buyerID uuid.UUID) error
}

type service struct {
	repo    Repository
	catalog catalog.Repository
	tx      txRunner
	logg    *logger.Logger
}

// NewService builds a cart service with the required dependencies.
func NewService(repo Repository, cat catalog.Repository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if cat == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, catalog: cat, tx: tx, logg: logg}, nil
}

func (s *service) GetCart(ctx context.Context, buyerID uuid.UUID) (*CartView, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing")
	}

	var view *CartView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		record, err := repo.FindByBuyer(ctx, buyerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				view = &CartView{BuyerID: buyerID}
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}

		view, err = s.repairAndProject(ctx, repo, s.catalog.WithTx(tx), record)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// repairAndProject drops lines whose product vanished, re-stamps lines
// whose cached price was never written, and persists a corrected total
// when anything changed. Repair should be a no-op: prices are stamped
// at write time by every mutation in this service. The catalog reader
// must be pinned to the same transaction as the cart repository.
func (s *service) repairAndProject(ctx context.Context, repo Repository, cat catalog.Repository, record *models.Cart) (*CartView, error) {
	ids := make([]uuid.UUID, 0, len(record.Items))
	for _, item := range record.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := cat.FindProducts(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart products")
	}
	byID := make(map[uuid.UUID]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	view := &CartView{ID: record.ID, BuyerID: record.BuyerID}
	var dangling []uuid.UUID
	repaired := 0
	dirty := false

	for _, item := range record.Items {
		product, ok := byID[item.ProductID]
		if !ok || !product.IsActive {
			dangling = append(dangling, item.ID)
			dirty = true
			continue
		}

		linePaise := item.LinePaise
		if linePaise <= 0 {
			linePaise = product.PricePaise * int64(item.Quantity)
			if err := repo.UpdateItem(ctx, item.ID, map[string]any{"line_paise": linePaise}); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "repair cart line price")
			}
			repaired++
			dirty = true
		}

		view.Lines = append(view.Lines, LineView{
			ProductID: product.ID,
			Name:      product.Name,
			UnitPaise: product.PricePaise,
			Quantity:  item.Quantity,
			LinePaise: linePaise,
			Available: product.Quantity,
			SellerID:  product.SellerID,
		})
		view.TotalPaise += linePaise
	}

	if len(dangling) > 0 {
		if err := repo.DeleteItems(ctx, dangling); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "drop dangling cart lines")
		}
	}
	if dirty {
		if err := repo.UpdateTotal(ctx, record.ID, view.TotalPaise); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist repaired cart total")
		}
		lctx := s.logg.WithFields(ctx, map[string]any{
			"cart_id":        record.ID,
			"dropped_lines":  len(dangling),
			"repaired_lines": repaired,
		})
		s.logg.Warn(lctx, "cart repaired on read")
	}
	return view, nil
}

func (s *service) AddItem(ctx context.Context, buyerID, productID uuid.UUID, quantity int) (*CartView, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing")
	}
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	var view *CartView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cat := s.catalog.WithTx(tx)

		product, err := cat.FindProduct(ctx, productID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}
		if !product.IsActive {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}

		record, err := repo.FindByBuyer(ctx, buyerID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			record = &models.Cart{BuyerID: buyerID}
			if err := repo.Create(ctx, record); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
			}
		} else if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}

		var existing *models.CartItem
		for i := range record.Items {
			if record.Items[i].ProductID == productID {
				existing = &record.Items[i]
				break
			}
		}

		if existing != nil {
			newQty := existing.Quantity + quantity
			updates := map[string]any{
				"quantity":   newQty,
				"line_paise": product.PricePaise * int64(newQty),
			}
			if err := repo.UpdateItem(ctx, existing.ID, updates); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart line")
			}
		} else {
			item := &models.CartItem{
				CartID:    record.ID,
				ProductID: productID,
				Quantity:  quantity,
				LinePaise: product.PricePaise * int64(quantity),
			}
			if err := repo.CreateItem(ctx, item); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart line")
			}
		}

		view, err = s.reload(ctx, repo, cat, buyerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *service) UpdateItemQuantity(ctx context.Context, buyerID, productID uuid.UUID, quantity int) (*CartView, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing")
	}
	if quantity <= 0 {
		return s.RemoveItem(ctx, buyerID, productID)
	}

	var view *CartView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cat := s.catalog.WithTx(tx)

		record, err := repo.FindByBuyer(ctx, buyerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}

		item := findItem(record, productID)
		if item == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
		}

		product, err := cat.FindProduct(ctx, productID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}

		updates := map[string]any{
			"quantity":   quantity,
			"line_paise": product.PricePaise * int64(quantity),
		}
		if err := repo.UpdateItem(ctx, item.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart line")
		}

		view, err = s.reload(ctx, repo, cat, buyerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *service) RemoveItem(ctx context.Context, buyerID, productID uuid.UUID) (*CartView, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing")
	}

	var view *CartView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		record, err := repo.FindByBuyer(ctx, buyerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}

		item := findItem(record, productID)
		if item == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
		}
		if err := repo.DeleteItem(ctx, item.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart line")
		}

		if len(record.Items) == 1 {
			// last line removed, drop the cart entirely
			if err := repo.Delete(ctx, record.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete emptied cart")
			}
			view = &CartView{BuyerID: buyerID}
			return nil
		}

		view, err = s.reload(ctx, repo, s.catalog.WithTx(tx), buyerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *service) Clear(ctx context.Context, buyerID uuid.UUID) error {
	if buyerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		record, err := repo.FindByBuyer(ctx, buyerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if err := repo.Delete(ctx, record.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
		}
		return nil
	})
}

func (s *service) reload(ctx context.Context, repo Repository, cat catalog.Repository, buyerID uuid.UUID) (*CartView, error) {
	record, err := repo.FindByBuyer(ctx, buyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload cart")
	}
	view, err := s.repairAndProject(ctx, repo, cat, record)
	if err != nil {
		return nil, err
	}
	if err := repo.UpdateTotal(ctx, record.ID, view.TotalPaise); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist cart total")
	}
	return view, nil
}

func findItem(record *models.Cart, productID uuid.UUID) *models.CartItem {
	for i := range record.Items {
		if record.Items[i].ProductID == productID {
			return &record.Items[i]
		}
	}
	return nil
}
