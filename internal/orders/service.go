package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bazaarly/bazaarly-backend/internal/catalog"
	"github.com/bazaarly/bazaarly-backend/pkg/db/models"
	"github.com/bazaarly/bazaarly-backend/pkg/enums"
	pkgerrors "github.com/bazaarly/bazaarly-backend/pkg/errors"
	"github.com/bazaarly/bazaarly-backend/pkg/logger"
	"github.com/bazaarly/bazaarly-backend/pkg/metrics"
	"github.com/bazaarly/bazaarly-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service owns order creation, cancellation, and queries.
type Service interface {
	Place(ctx context.Context, input PlaceOrderInput) (*models.Order, error)
	PlaceInTx(ctx context.Context, tx *gorm.DB, input PlaceOrderInput) (*models.Order, error)
	Cancel(ctx context.Context, buyerID, orderID uuid.UUID, note string) (*models.Order, error)
	GetBuyerOrder(ctx context.Context, buyerID, orderID uuid.UUID) (*models.Order, error)
	ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*OrderList, error)
	ListSellerOrders(ctx context.Context, sellerID uuid.UUID, params pagination.Params) (*SellerOrderList, error)
}

type service struct {
	repo    Repository
	stock   catalog.Repository
	tx      txRunner
	metrics *metrics.CheckoutMetrics
	logg    *logger.Logger
}

// NewService builds an orders service with the required dependencies.
func NewService(repo Repository, stock catalog.Repository, tx txRunner, m *metrics.CheckoutMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if stock == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, stock: stock, tx: tx, metrics: m, logg: logg}, nil
}

// Place runs PlaceInTx inside its own transaction.
func (s *service) Place(ctx context.Context, input PlaceOrderInput) (*models.Order, error) {
	started := time.Now()
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		order, txErr = s.PlaceInTx(ctx, tx, input)
		return txErr
	})
	s.metrics.ObserveDuration("place_order", time.Since(started))
	if err != nil {
		s.metrics.IncOrderFailure(failureReason(err))
		return nil, err
	}
	s.metrics.IncOrderPlaced(input.Method.String())
	return order, nil
}

// PlaceInTx decrements stock for every line and inserts the order under
// the caller's transaction. A zero-affected decrement aborts the whole
// transaction: partial stock movement must never survive.
func (s *service) PlaceInTx(ctx context.Context, tx *gorm.DB, input PlaceOrderInput) (*models.Order, error) {
	if err := validatePlaceInput(input); err != nil {
		return nil, err
	}

	stock := s.stock.WithTx(tx)
	for _, line := range input.Lines {
		affected, err := stock.DecrementStock(ctx, line.ProductID, line.Quantity)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
		}
		if affected == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock,
				fmt.Sprintf("insufficient stock for %s", line.Name)).
				WithDetails(map[string]any{
					"product_id": line.ProductID,
					"requested":  line.Quantity,
				})
		}
	}

	status := enums.OrderStatusPending
	if input.Method.IsPrepaid() {
		status = enums.OrderStatusPaid
	}

	reference := strings.TrimSpace(input.Reference)
	if reference == "" {
		reference = NewOrderReference()
	}

	var total int64
	lines := make([]models.OrderLineItem, 0, len(input.Lines))
	for _, line := range input.Lines {
		lines = append(lines, models.OrderLineItem{
			ProductID:  line.ProductID,
			Name:       line.Name,
			SellerID:   line.SellerID,
			Quantity:   line.Quantity,
			UnitPaise:  line.UnitPaise,
			TotalPaise: line.TotalPaise,
		})
		total += line.TotalPaise
	}

	order := &models.Order{
		BuyerID:         input.BuyerID,
		Reference:       reference,
		GatewayOrderRef: input.GatewayOrderRef,
		PaymentID:       input.PaymentID,
		PaymentMethod:   input.Method,
		TotalPaise:      total,
		ShippingAddress: input.ShippingAddress,
		Status:          status,
		Lines:           lines,
		Timeline: []models.OrderTimelineEntry{
			{Status: status, Note: "order placed"},
		},
	}
	if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert order")
	}

	lctx := s.logg.WithFields(ctx, map[string]any{
		"order_id":  order.ID,
		"reference": order.Reference,
		"status":    order.Status,
		"total":     order.TotalPaise,
	})
	s.logg.Info(lctx, "order placed")
	return order, nil
}

func (s *service) Cancel(ctx context.Context, buyerID, orderID uuid.UUID, note string) (*models.Order, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing")
	}
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var cancelled *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.BuyerID != buyerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to buyer")
		}
		if !IsCancellable(order.Status) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("order in status %s cannot be cancelled", order.Status)).
				WithDetails(map[string]any{"status": order.Status})
		}

		stock := s.stock.WithTx(tx)
		for _, line := range order.Lines {
			affected, err := stock.IncrementStock(ctx, line.ProductID, line.Quantity)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore stock")
			}
			if affected == 0 {
				return pkgerrors.New(pkgerrors.CodeDependency,
					fmt.Sprintf("stock restore target missing for %s", line.Name))
			}
		}

		if err := transition(ctx, repo, order, enums.OrderStatusCancelled, cancellationNote(note)); err != nil {
			return err
		}
		cancelled = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncCancellation()
	lctx := s.logg.WithFields(ctx, map[string]any{"order_id": cancelled.ID})
	s.logg.Info(lctx, "order cancelled")
	return cancelled, nil
}

func (s *service) GetBuyerOrder(ctx context.Context, buyerID, orderID uuid.UUID) (*models.Order, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing")
	}

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to buyer")
	}
	return order, nil
}

func (s *service) ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*OrderList, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing")
	}
	list, err := s.repo.ListByBuyer(ctx, buyerID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list buyer orders")
	}
	return list, nil
}

func (s *service) ListSellerOrders(ctx context.Context, sellerID uuid.UUID, params pagination.Params) (*SellerOrderList, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "seller identity missing")
	}
	list, err := s.repo.ListBySeller(ctx, sellerID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list seller orders")
	}
	sales, err := s.repo.SellerSalesPaise(ctx, sellerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum seller sales")
	}
	list.SalesPaise = sales
	return list, nil
}

// transition is the only path that moves a persisted order between
// statuses. Every move is checked against the state machine before it
// is written, and each accepted move appends a timeline entry.
func transition(ctx context.Context, repo Repository, order *models.Order, next enums.OrderStatus, note string) error {
	if !CanTransition(order.Status, next) {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order in status %s cannot move to %s", order.Status, next)).
			WithDetails(map[string]any{"status": order.Status, "target": next})
	}
	if err := repo.UpdateStatus(ctx, order.ID, next); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	entry := &models.OrderTimelineEntry{
		OrderID: order.ID,
		Status:  next,
		Note:    note,
	}
	if err := repo.AppendTimeline(ctx, entry); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append timeline entry")
	}
	order.Status = next
	order.Timeline = append(order.Timeline, *entry)
	return nil
}

func validatePlaceInput(input PlaceOrderInput) error {
	if input.BuyerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing")
	}
	if len(input.Lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one line is required")
	}
	if !input.Method.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	if input.ShippingAddress == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping address required")
	}
	if missing := input.ShippingAddress.MissingFields(); len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping address incomplete").
			WithDetails(map[string]any{"missing_fields": missing})
	}
	for _, line := range input.Lines {
		if line.Quantity <= 0 || line.UnitPaise < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "malformed line snapshot")
		}
		if line.TotalPaise != line.UnitPaise*int64(line.Quantity) {
			return pkgerrors.New(pkgerrors.CodeValidation, "malformed line snapshot").
				WithDetails(map[string]any{"product_id": line.ProductID})
		}
	}
	return nil
}

func failureReason(err error) string {
	if typed := pkgerrors.As(err); typed != nil {
		return strings.ToLower(string(typed.Code()))
	}
	return "internal"
}

func cancellationNote(note string) string {
	note = strings.TrimSpace(note)
	if note == "" {
		return "cancelled by buyer"
	}
	return note
}

// NewOrderReference produces the human-readable reference stamped on
// every order, e.g. BZ-20260831-3F2A9C1D.
func NewOrderReference() string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return fmt.Sprintf("BZ-%s-%s", time.Now().UTC().Format("20060102"), id)
}
