package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bazaarly/bazaarly-backend/internal/cart"
	"github.com/bazaarly/bazaarly-backend/internal/catalog"
	"github.com/bazaarly/bazaarly-backend/internal/checkout"
	"github.com/bazaarly/bazaarly-backend/internal/orders"
	"github.com/bazaarly/bazaarly-backend/pkg/db/models"
	"github.com/bazaarly/bazaarly-backend/pkg/enums"
	pkgerrors "github.com/bazaarly/bazaarly-backend/pkg/errors"
	"github.com/bazaarly/bazaarly-backend/pkg/gateway"
	"github.com/bazaarly/bazaarly-backend/pkg/logger"
	"github.com/bazaarly/bazaarly-backend/pkg/metrics"
	"github.com/bazaarly/bazaarly-backend/pkg/types"
)

// GatewayClient is the slice of the payment gateway the service consumes.
type GatewayClient interface {
	CreateOrder(ctx context.Context, params gateway.OrderCreateParams) (*gateway.Order, error)
	VerifySignature(orderRef, paymentRef, signature string) bool
	KeyID() string
}

// CartAccess is the slice of the cart service used during checkout.
type CartAccess interface {
	GetCart(ctx context.Context, buyerID uuid.UUID) (*cart.CartView, error)
	Clear(ctx context.Context, buyerID uuid.UUID) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service owns payment records and turns confirmed payments into orders.
type Service interface {
	// Start begins a checkout: it prices the requested items, records a
	// payment, and either places the order immediately (cash) or opens a
	// gateway order the client completes out of band (prepaid).
	Start(ctx context.Context, input StartInput) (*StartResult, error)
	// Verify checks the gateway's signed confirmation, marks the payment
	// settled, and reconciles it into an order.
	Verify(ctx context.Context, input VerifyInput) (*models.Order, error)
	// Reconcile ensures a settled payment has exactly one order. Calling
	// it again for the same payment returns the existing order.
	Reconcile(ctx context.Context, paymentID uuid.UUID) (*models.Order, error)
	GetBuyerPayment(ctx context.Context, buyerID, paymentID uuid.UUID) (*models.Payment, error)
}

type service struct {
	repo       Repository
	ordersSvc  orders.Service
	ordersRepo orders.Repository
	stock      catalog.Repository
	builder    *checkout.Builder
	carts      CartAccess
	gw         GatewayClient
	tx         txRunner
	metrics    *metrics.CheckoutMetrics
	logg       *logger.Logger
}

// NewService wires the payment service. The metrics sink may be nil.
func NewService(
	repo Repository,
	ordersSvc orders.Service,
	ordersRepo orders.Repository,
	stock catalog.Repository,
	builder *checkout.Builder,
	carts CartAccess,
	gw GatewayClient,
	tx txRunner,
	m *metrics.CheckoutMetrics,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if ordersSvc == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if stock == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if builder == nil {
		return nil, fmt.Errorf("checkout builder required")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart access required")
	}
	if gw == nil {
		return nil, fmt.Errorf("gateway client required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:       repo,
		ordersSvc:  ordersSvc,
		ordersRepo: ordersRepo,
		stock:      stock,
		builder:    builder,
		carts:      carts,
		gw:         gw,
		tx:         tx,
		metrics:    m,
		logg:       logg,
	}, nil
}

func (s *service) Start(ctx context.Context, input StartInput) (*StartResult, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment method").
			WithDetails(map[string]any{"method": input.Method.String()})
	}
	if input.ShippingAddress == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address required")
	}
	if missing := input.ShippingAddress.MissingFields(); len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address incomplete").
			WithDetails(map[string]any{"missing_fields": missing})
	}

	requested := input.Items
	if input.FromCart {
		if len(input.Items) > 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart checkout does not accept explicit items")
		}
		view, err := s.carts.GetCart(ctx, input.BuyerID)
		if err != nil {
			return nil, err
		}
		if view.IsEmpty() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
		}
		requested = view.RequestedItems()
	} else if len(requested) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}

	build, err := s.builder.Build(ctx, requested, checkout.BuildOptions{SkipMissing: input.FromCart})
	if err != nil {
		return nil, err
	}

	payment := &models.Payment{
		BuyerID:         input.BuyerID,
		OrderReference:  orders.NewOrderReference(),
		Method:          input.Method,
		UPIID:           input.UPIID,
		BankCode:        input.BankCode,
		Items:           build.Lines,
		ShippingAddress: input.ShippingAddress,
		AmountPaise:     build.TotalPaise,
		Status:          enums.PaymentStatusPending,
	}

	if !input.Method.IsPrepaid() {
		return s.startCash(ctx, input, payment)
	}
	return s.startPrepaid(ctx, payment)
}

// startCash records the payment and places the order in one transaction.
// Cash stays pending until delivery, but the order exists immediately.
func (s *service) startCash(ctx context.Context, input StartInput, payment *models.Payment) (*StartResult, error) {
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if err := txRepo.Create(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
		}
		placed, err := s.ordersSvc.PlaceInTx(ctx, tx, orders.PlaceOrderInput{
			BuyerID:         payment.BuyerID,
			Lines:           payment.Items,
			Method:          payment.Method,
			ShippingAddress: payment.ShippingAddress,
			PaymentID:       &payment.ID,
			Reference:       payment.OrderReference,
		})
		if err != nil {
			return err
		}
		if err := txRepo.LinkOrder(ctx, payment.ID, placed.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link payment to order")
		}
		order = placed
		return nil
	})
	if err != nil {
		s.metrics.IncOrderFailure(metricReason(err))
		return nil, err
	}
	payment.OrderID = &order.ID
	s.metrics.IncOrderPlaced(payment.Method.String())
	s.clearCartIfSourced(ctx, input, payment.BuyerID)

	lctx := s.logg.WithFields(ctx, map[string]any{
		"payment_id":   payment.ID,
		"order_id":     order.ID,
		"amount_paise": payment.AmountPaise,
	})
	s.logg.Info(lctx, "cash checkout completed")
	return &StartResult{Payment: payment, Order: order}, nil
}

// startPrepaid opens a gateway order first so the stored record always
// carries the gateway handle the confirmation webhook keys on.
func (s *service) startPrepaid(ctx context.Context, payment *models.Payment) (*StartResult, error) {
	gwOrder, err := s.gw.CreateOrder(ctx, gateway.OrderCreateParams{
		AmountPaise: payment.AmountPaise,
		Receipt:     payment.OrderReference,
	})
	if err != nil {
		return nil, err
	}
	payment.GatewayOrderID = &gwOrder.ID

	if err := s.repo.Create(ctx, payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
	}

	lctx := s.logg.WithFields(ctx, map[string]any{
		"payment_id":       payment.ID,
		"gateway_order_id": gwOrder.ID,
		"amount_paise":     payment.AmountPaise,
	})
	s.logg.Info(lctx, "prepaid checkout opened")
	return &StartResult{
		Payment:        payment,
		GatewayOrderID: gwOrder.ID,
		GatewayKeyID:   s.gw.KeyID(),
	}, nil
}

func (s *service) Verify(ctx context.Context, input VerifyInput) (*models.Order, error) {
	if input.GatewayOrderID == "" || input.GatewayPaymentID == "" || input.Signature == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway order id, payment id and signature are required")
	}

	payment, err := s.repo.FindByGatewayOrderID(ctx, input.GatewayOrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found").
				WithDetails(map[string]any{"gateway_order_id": input.GatewayOrderID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}

	if !s.gw.VerifySignature(input.GatewayOrderID, input.GatewayPaymentID, input.Signature) {
		// Record the failed attempt; the buyer can retry the payment.
		if uerr := s.repo.Update(ctx, payment.ID, map[string]any{
			"status": enums.PaymentStatusFailed,
		}); uerr != nil {
			lctx := s.logg.WithFields(ctx, map[string]any{
				"payment_id": payment.ID,
				"error":      uerr.Error(),
			})
			s.logg.Warn(lctx, "failed to mark payment failed")
		}
		s.metrics.IncReconciliation("signature_rejected")
		return nil, pkgerrors.New(pkgerrors.CodePaymentNotVerified, "payment signature verification failed").
			WithDetails(map[string]any{"gateway_order_id": input.GatewayOrderID})
	}

	if err := s.repo.Update(ctx, payment.ID, map[string]any{
		"status":             enums.PaymentStatusSuccess,
		"gateway_payment_id": input.GatewayPaymentID,
		"gateway_signature":  input.Signature,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment")
	}

	return s.Reconcile(ctx, payment.ID)
}

func (s *service) Reconcile(ctx context.Context, paymentID uuid.UUID) (*models.Order, error) {
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found").
				WithDetails(map[string]any{"payment_id": paymentID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}

	// Back-link set means a previous reconciliation finished.
	if payment.OrderID != nil {
		order, err := s.ordersRepo.FindByID(ctx, *payment.OrderID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reconciled order")
		}
		s.metrics.IncReconciliation("already_reconciled")
		return order, nil
	}

	// An order may exist without the back-link if a previous run died
	// between the insert and the link update. Heal the link and stop.
	if order, err := s.ordersRepo.FindByPaymentID(ctx, payment.ID); err == nil {
		if lerr := s.repo.LinkOrder(ctx, payment.ID, order.ID); lerr != nil {
			lctx := s.logg.WithFields(ctx, map[string]any{
				"payment_id": payment.ID,
				"order_id":   order.ID,
				"error":      lerr.Error(),
			})
			s.logg.Warn(lctx, "failed to heal payment back-link")
		}
		s.metrics.IncReconciliation("already_reconciled")
		return order, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up order by payment")
	}

	if !payment.Status.IsSettled() {
		s.metrics.IncReconciliation("not_settled")
		return nil, pkgerrors.New(pkgerrors.CodePaymentNotVerified, "payment not confirmed by gateway").
			WithDetails(map[string]any{
				"payment_id": payment.ID,
				"status":     payment.Status.String(),
			})
	}

	var order *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		// Re-check under the transaction: a concurrent reconciliation may
		// have placed the order between the read above and here.
		if existing, ferr := s.ordersRepo.WithTx(tx).FindByPaymentID(ctx, payment.ID); ferr == nil {
			order = existing
			return nil
		} else if !errors.Is(ferr, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, ferr, "look up order by payment")
		}

		// Re-validate the stored snapshot against the live catalog. Stock
		// may have drained since the payment was opened; the buyer gets a
		// named product in the failure either way.
		txBuilder := s.builder.WithReader(s.stock.WithTx(tx))
		if _, berr := txBuilder.Build(ctx, snapshotRequests(payment.Items), checkout.BuildOptions{}); berr != nil {
			return berr
		}

		// The order carries the snapshot the buyer actually paid for, not
		// a fresh pricing: the order total must equal the amount settled.
		placed, perr := s.ordersSvc.PlaceInTx(ctx, tx, orders.PlaceOrderInput{
			BuyerID:         payment.BuyerID,
			Lines:           payment.Items,
			Method:          payment.Method,
			ShippingAddress: payment.ShippingAddress,
			PaymentID:       &payment.ID,
			GatewayOrderRef: payment.GatewayOrderID,
			Reference:       payment.OrderReference,
		})
		if perr != nil {
			return perr
		}
		if lerr := s.repo.WithTx(tx).LinkOrder(ctx, payment.ID, placed.ID); lerr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, lerr, "link payment to order")
		}
		order = placed
		return nil
	})
	if err != nil {
		s.metrics.IncReconciliation("failed")
		s.metrics.IncOrderFailure(metricReason(err))
		return nil, err
	}

	s.metrics.IncReconciliation("created")
	s.metrics.IncOrderPlaced(payment.Method.String())
	s.clearCart(ctx, payment.BuyerID)

	lctx := s.logg.WithFields(ctx, map[string]any{
		"payment_id": payment.ID,
		"order_id":   order.ID,
	})
	s.logg.Info(lctx, "payment reconciled into order")
	return order, nil
}

func (s *service) GetBuyerPayment(ctx context.Context, buyerID, paymentID uuid.UUID) (*models.Payment, error) {
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found").
				WithDetails(map[string]any{"payment_id": paymentID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment belongs to another buyer")
	}
	return payment, nil
}

func (s *service) clearCartIfSourced(ctx context.Context, input StartInput, buyerID uuid.UUID) {
	if !input.FromCart {
		return
	}
	s.clearCart(ctx, buyerID)
}

// clearCart is best-effort: a leftover cart is an annoyance, not a
// consistency problem, so it never fails the checkout.
func (s *service) clearCart(ctx context.Context, buyerID uuid.UUID) {
	if err := s.carts.Clear(ctx, buyerID); err != nil {
		lctx := s.logg.WithFields(ctx, map[string]any{
			"buyer_id": buyerID,
			"error":    err.Error(),
		})
		s.logg.Warn(lctx, "failed to clear cart after checkout")
	}
}

// snapshotRequests turns stored snapshot lines back into builder input.
func snapshotRequests(lines []types.OrderItemSnapshot) []checkout.RequestedItem {
	requests := make([]checkout.RequestedItem, 0, len(lines))
	for _, line := range lines {
		requests = append(requests, checkout.RequestedItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
		})
	}
	return requests
}

func metricReason(err error) string {
	if typed := pkgerrors.As(err); typed != nil {
		return strings.ToLower(string(typed.Code()))
	}
	return "internal"
}
