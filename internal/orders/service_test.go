package orders

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/bazaarly/bazaarly-backend/internal/catalog"
	"github.com/bazaarly/bazaarly-backend/pkg/db/models"
	"github.com/bazaarly/bazaarly-backend/pkg/enums"
	pkgerrors "github.com/bazaarly/bazaarly-backend/pkg/errors"
	"github.com/bazaarly/bazaarly-backend/pkg/logger"
	"github.com/bazaarly/bazaarly-backend/pkg/metrics"
	"github.com/bazaarly/bazaarly-backend/pkg/pagination"
	"github.com/bazaarly/bazaarly-backend/pkg/types"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (g gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.db.WithContext(ctx).Transaction(fn)
}

func setupOrdersService(t *testing.T) (Service, catalog.Repository, *gorm.DB) {
	t.Helper()

	// Shared cache so every pooled connection sees the same database;
	// a unique name keeps tests isolated from each other.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Product{},
		&models.Order{},
		&models.OrderLineItem{},
		&models.OrderTimelineEntry{},
	))

	stock := catalog.NewRepository(db)
	logg := logger.New(logger.Options{ServiceName: "orders-test"})
	svc, err := NewService(NewRepository(db), stock, gormTxRunner{db: db}, metrics.NewCheckoutMetrics(nil), logg)
	require.NoError(t, err)
	return svc, stock, db
}

func seedProduct(t *testing.T, db *gorm.DB, name string, price int64, qty int) *models.Product {
	t.Helper()

	product := &models.Product{
		ID:         uuid.New(),
		SellerID:   uuid.New(),
		Name:       name,
		PricePaise: price,
		Quantity:   qty,
		IsActive:   true,
	}
	require.NoError(t, db.Create(product).Error)
	return product
}

func snapshotFor(product *models.Product, qty int) types.OrderItemSnapshot {
	return types.OrderItemSnapshot{
		ProductID:  product.ID,
		Name:       product.Name,
		SellerID:   product.SellerID,
		Quantity:   qty,
		UnitPaise:  product.PricePaise,
		TotalPaise: product.PricePaise * int64(qty),
	}
}

func testAddress() *types.Address {
	return &types.Address{
		Street:     "14 MG Road",
		City:       "Bengaluru",
		State:      "Karnataka",
		Country:    "IN",
		PostalCode: "560001",
	}
}

func TestPlaceOrderDecrementsStockAndSeedsStatus(t *testing.T) {
	svc, _, db := setupOrdersService(t)
	bottle := seedProduct(t, db, "Steel Bottle", 10000, 5)
	buyerID := uuid.New()

	order, err := svc.Place(context.Background(), PlaceOrderInput{
		BuyerID:         buyerID,
		Lines:           []types.OrderItemSnapshot{snapshotFor(bottle, 3)},
		Method:          enums.PaymentMethodCash,
		ShippingAddress: testAddress(),
	})
	require.NoError(t, err)

	assert.Equal(t, enums.OrderStatusPending, order.Status, "cash orders start pending")
	assert.Equal(t, int64(30000), order.TotalPaise)
	assert.NotEmpty(t, order.Reference)
	require.Len(t, order.Lines, 1)
	require.Len(t, order.Timeline, 1)
	assert.Equal(t, enums.OrderStatusPending, order.Timeline[0].Status)

	var product models.Product
	require.NoError(t, db.First(&product, "id = ?", bottle.ID).Error)
	assert.Equal(t, 2, product.Quantity)
}

func TestPlaceOrderPrepaidSeedsPaid(t *testing.T) {
	svc, _, db := setupOrdersService(t)
	bottle := seedProduct(t, db, "Steel Bottle", 10000, 5)

	order, err := svc.Place(context.Background(), PlaceOrderInput{
		BuyerID:         uuid.New(),
		Lines:           []types.OrderItemSnapshot{snapshotFor(bottle, 1)},
		Method:          enums.PaymentMethodUPI,
		ShippingAddress: testAddress(),
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, order.Status)
}

func TestPlaceOrderConservation(t *testing.T) {
	svc, _, db := setupOrdersService(t)
	bottle := seedProduct(t, db, "Steel Bottle", 10000, 5)
	mug := seedProduct(t, db, "Clay Mug", 2500, 8)

	order, err := svc.Place(context.Background(), PlaceOrderInput{
		BuyerID: uuid.New(),
		Lines: []types.OrderItemSnapshot{
			snapshotFor(bottle, 2),
			snapshotFor(mug, 4),
		},
		Method:          enums.PaymentMethodCash,
		ShippingAddress: testAddress(),
	})
	require.NoError(t, err)

	var sum int64
	for _, line := range order.Lines {
		sum += line.TotalPaise
	}
	assert.Equal(t, order.TotalPaise, sum, "order total must equal sum of line totals")
}

func TestPlaceOrderPartialFailureRollsBackAllStock(t *testing.T) {
	svc, _, db := setupOrdersService(t)
	first := seedProduct(t, db, "First", 1000, 10)
	short := seedProduct(t, db, "Short Supply", 1000, 1)
	third := seedProduct(t, db, "Third", 1000, 10)

	_, err := svc.Place(context.Background(), PlaceOrderInput{
		BuyerID: uuid.New(),
		Lines: []types.OrderItemSnapshot{
			snapshotFor(first, 2),
			snapshotFor(short, 2),
			snapshotFor(third, 2),
		},
		Method:          enums.PaymentMethodCash,
		ShippingAddress: testAddress(),
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientStock, typed.Code())
	assert.Equal(t, "insufficient stock for Short Supply", typed.Message())

	for _, p := range []*models.Product{first, short, third} {
		var reloaded models.Product
		require.NoError(t, db.First(&reloaded, "id = ?", p.ID).Error)
		assert.Equal(t, p.Quantity, reloaded.Quantity, "no stock may move on a failed build")
	}

	var orderCount int64
	require.NoError(t, db.Model(&models.Order{}).Count(&orderCount).Error)
	assert.Zero(t, orderCount, "no order may be written on failure")
}

func TestPlaceOrderConcurrentDepletion(t *testing.T) {
	svc, _, db := setupOrdersService(t)
	bottle := seedProduct(t, db, "Steel Bottle", 10000, 5)
	buyerA := uuid.New()
	buyerB := uuid.New()

	_, err := svc.Place(context.Background(), PlaceOrderInput{
		BuyerID:         buyerA,
		Lines:           []types.OrderItemSnapshot{snapshotFor(bottle, 3)},
		Method:          enums.PaymentMethodCash,
		ShippingAddress: testAddress(),
	})
	require.NoError(t, err)

	// Snapshot was taken when 5 units existed; only 2 remain now.
	_, err = svc.Place(context.Background(), PlaceOrderInput{
		BuyerID:         buyerB,
		Lines:           []types.OrderItemSnapshot{snapshotFor(bottle, 3)},
		Method:          enums.PaymentMethodCash,
		ShippingAddress: testAddress(),
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientStock, typed.Code())

	var product models.Product
	require.NoError(t, db.First(&product, "id = ?", bottle.ID).Error)
	assert.Equal(t, 2, product.Quantity, "failed checkout must not move stock")
}

func TestPlaceOrderRejectsIncompleteAddress(t *testing.T) {
	svc, _, db := setupOrdersService(t)
	bottle := seedProduct(t, db, "Steel Bottle", 10000, 5)

	addr := testAddress()
	addr.PostalCode = ""
	_, err := svc.Place(context.Background(), PlaceOrderInput{
		BuyerID:         uuid.New(),
		Lines:           []types.OrderItemSnapshot{snapshotFor(bottle, 1)},
		Method:          enums.PaymentMethodCash,
		ShippingAddress: addr,
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	var product models.Product
	require.NoError(t, db.First(&product, "id = ?", bottle.ID).Error)
	assert.Equal(t, 5, product.Quantity, "validation failures precede any stock mutation")
}

func TestPlaceOrderRejectsTamperedSnapshot(t *testing.T) {
	svc, _, db := setupOrdersService(t)
	bottle := seedProduct(t, db, "Steel Bottle", 10000, 5)

	tampered := snapshotFor(bottle, 2)
	tampered.TotalPaise = 1 // client-supplied total must not be trusted
	_, err := svc.Place(context.Background(), PlaceOrderInput{
		BuyerID:         uuid.New(),
		Lines:           []types.OrderItemSnapshot{tampered},
		Method:          enums.PaymentMethodCash,
		ShippingAddress: testAddress(),
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestTransitionRejectsIllegalMoveBeforeWriting(t *testing.T) {
	svc, _, db := setupOrdersService(t)
	bottle := seedProduct(t, db, "Steel Bottle", 10000, 5)
	buyerID := uuid.New()

	order, err := svc.Place(context.Background(), PlaceOrderInput{
		BuyerID:         buyerID,
		Lines:           []types.OrderItemSnapshot{snapshotFor(bottle, 1)},
		Method:          enums.PaymentMethodCash,
		ShippingAddress: testAddress(),
	})
	require.NoError(t, err)

	repo := NewRepository(db)
	err = transition(context.Background(), repo, order, enums.OrderStatusCompleted, "")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
	assert.Contains(t, typed.Message(), "pending", "rejection must state the current status")

	var stored models.Order
	require.NoError(t, db.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusPending, stored.Status, "illegal move must not be written")

	require.NoError(t, transition(context.Background(), repo, order, enums.OrderStatusProcessing, "packed"))
	require.NoError(t, db.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusProcessing, stored.Status)
	require.Len(t, order.Timeline, 2)
	assert.Equal(t, "packed", order.Timeline[1].Note)
}

func TestListSellerOrdersIncludesSalesTotal(t *testing.T) {
	svc, _, db := setupOrdersService(t)
	bottle := seedProduct(t, db, "Steel Bottle", 10000, 5)

	// Prepaid order seeds paid, which counts toward sales.
	_, err := svc.Place(context.Background(), PlaceOrderInput{
		BuyerID:         uuid.New(),
		Lines:           []types.OrderItemSnapshot{snapshotFor(bottle, 2)},
		Method:          enums.PaymentMethodUPI,
		ShippingAddress: testAddress(),
	})
	require.NoError(t, err)

	// Cash order stays pending and must not count.
	_, err = svc.Place(context.Background(), PlaceOrderInput{
		BuyerID:         uuid.New(),
		Lines:           []types.OrderItemSnapshot{snapshotFor(bottle, 1)},
		Method:          enums.PaymentMethodCash,
		ShippingAddress: testAddress(),
	})
	require.NoError(t, err)

	list, err := svc.ListSellerOrders(context.Background(), bottle.SellerID, pagination.Params{Limit: 10})
	require.NoError(t, err)
	require.Len(t, list.Orders, 2)
	assert.Equal(t, int64(20000), list.SalesPaise, "only paid and completed orders count as sales")
}

func TestCancelRestoresStockAndAppendsTimeline(t *testing.T) {
	svc, _, db := setupOrdersService(t)
	bottle := seedProduct(t, db, "Steel Bottle", 10000, 5)
	buyerID := uuid.New()

	order, err := svc.Place(context.Background(), PlaceOrderInput{
		BuyerID:         buyerID,
		Lines:           []types.OrderItemSnapshot{snapshotFor(bottle, 3)},
		Method:          enums.PaymentMethodCash,
		ShippingAddress: testAddress(),
	})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(context.Background(), buyerID, order.ID, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)

	var product models.Product
	require.NoError(t, db.First(&product, "id = ?", bottle.ID).Error)
	assert.Equal(t, 5, product.Quantity, "cancellation must restore stock")

	reloaded, err := svc.GetBuyerOrder(context.Background(), buyerID, order.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Timeline, 2)
	assert.Equal(t, enums.OrderStatusCancelled, reloaded.Timeline[1].Status)
	assert.Equal(t, "changed my mind", reloaded.Timeline[1].Note)
}

func TestCancelRejectsPaidOrder(t *testing.T) {
	svc, _, db := setupOrdersService(t)
	bottle := seedProduct(t, db, "Steel Bottle", 10000, 5)
	buyerID := uuid.New()

	order, err := svc.Place(context.Background(), PlaceOrderInput{
		BuyerID:         buyerID,
		Lines:           []types.OrderItemSnapshot{snapshotFor(bottle, 2)},
		Method:          enums.PaymentMethodUPI,
		ShippingAddress: testAddress(),
	})
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), buyerID, order.ID, "")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
	assert.Contains(t, typed.Message(), "paid", "cancellation failure must state the current status")

	var product models.Product
	require.NoError(t, db.First(&product, "id = ?", bottle.ID).Error)
	assert.Equal(t, 3, product.Quantity, "failed cancellation leaves stock untouched")
}

func TestCancelForeignOrderForbidden(t *testing.T) {
	svc, _, db := setupOrdersService(t)
	bottle := seedProduct(t, db, "Steel Bottle", 10000, 5)
	owner := uuid.New()

	order, err := svc.Place(context.Background(), PlaceOrderInput{
		BuyerID:         owner,
		Lines:           []types.OrderItemSnapshot{snapshotFor(bottle, 1)},
		Method:          enums.PaymentMethodCash,
		ShippingAddress: testAddress(),
	})
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), uuid.New(), order.ID, "")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeForbidden, typed.Code())
}

func TestCancelTwiceRejected(t *testing.T) {
	svc, _, db := setupOrdersService(t)
	bottle := seedProduct(t, db, "Steel Bottle", 10000, 5)
	buyerID := uuid.New()

	order, err := svc.Place(context.Background(), PlaceOrderInput{
		BuyerID:         buyerID,
		Lines:           []types.OrderItemSnapshot{snapshotFor(bottle, 2)},
		Method:          enums.PaymentMethodCash,
		ShippingAddress: testAddress(),
	})
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), buyerID, order.ID, "")
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), buyerID, order.ID, "")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())

	var product models.Product
	require.NoError(t, db.First(&product, "id = ?", bottle.ID).Error)
	assert.Equal(t, 5, product.Quantity, "stock must be restored exactly once")
}
