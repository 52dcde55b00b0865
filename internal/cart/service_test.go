package cart

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
	pkgerrors "github.com/bazaarly/bazaarly-backend/pkg/errors"
	"github.com/bazaarly/bazaarly-backend/pkg/logger"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (g gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.db.WithContext(ctx).Transaction(fn)
}

func setupCartService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()

	// Shared cache so every pooled connection sees the same database;
	// a unique name keeps tests isolated from each other.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Product{}, &models.Cart{}, &models.CartItem{}))

	logg := logger.New(logger.Options{ServiceName: "cart-test"})
	svc, err := NewService(NewRepository(db), catalog.NewRepository(db), gormTxRunner{db: db}, logg)
	require.NoError(t, err)
	return svc, db
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

func TestAddItemStampsPriceAtWrite(t *testing.T) {
	svc, db := setupCartService(t)
	buyerID := uuid.New()
	bottle := seedProduct(t, db, "Steel Bottle", 10000, 5)

	view, err := svc.AddItem(context.Background(), buyerID, bottle.ID, 2)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, int64(20000), view.Lines[0].LinePaise)
	assert.Equal(t, int64(20000), view.TotalPaise)

	var item models.CartItem
	require.NoError(t, db.Where("product_id = ?", bottle.ID).First(&item).Error)
	assert.Equal(t, int64(20000), item.LinePaise, "line price must be stamped at write time")
}

func TestAddItemMergesExistingLine(t *testing.T) {
	svc, db := setupCartService(t)
	buyerID := uuid.New()
	bottle := seedProduct(t, db, "Steel Bottle", 10000, 10)

	_, err := svc.AddItem(context.Background(), buyerID, bottle.ID, 2)
	require.NoError(t, err)
	view, err := svc.AddItem(context.Background(), buyerID, bottle.ID, 3)
	require.NoError(t, err)

	require.Len(t, view.Lines, 1)
	assert.Equal(t, 5, view.Lines[0].Quantity)
	assert.Equal(t, int64(50000), view.TotalPaise)
}

func TestAddItemValidation(t *testing.T) {
	svc, db := setupCartService(t)
	buyerID := uuid.New()
	bottle := seedProduct(t, db, "Steel Bottle", 10000, 5)

	_, err := svc.AddItem(context.Background(), buyerID, bottle.ID, 0)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	_, err = svc.AddItem(context.Background(), buyerID, uuid.New(), 1)
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestCartOperationsPinCatalogReadsToTransaction(t *testing.T) {
	// Deliberately unshared: every new pool connection gets its own
	// empty database, so any catalog read issued outside the transaction
	// holding the migrated connection fails with a missing table.
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Product{}, &models.Cart{}, &models.CartItem{}))

	logg := logger.New(logger.Options{ServiceName: "cart-test"})
	svc, err := NewService(NewRepository(db), catalog.NewRepository(db), gormTxRunner{db: db}, logg)
	require.NoError(t, err)

	buyerID := uuid.New()
	bottle := seedProduct(t, db, "Steel Bottle", 10000, 5)

	view, err := svc.AddItem(context.Background(), buyerID, bottle.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(20000), view.TotalPaise)

	view, err = svc.GetCart(context.Background(), buyerID)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)

	view, err = svc.UpdateItemQuantity(context.Background(), buyerID, bottle.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(30000), view.TotalPaise)
}

func TestGetCartEmptyForNewBuyer(t *testing.T) {
	svc, _ := setupCartService(t)

	view, err := svc.GetCart(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.True(t, view.IsEmpty())
	assert.Zero(t, view.TotalPaise)
}

func TestGetCartRepairsZeroPricedLines(t *testing.T) {
	svc, db := setupCartService(t)
	buyerID := uuid.New()
	bottle := seedProduct(t, db, "Steel Bottle", 10000, 5)

	// Simulate a legacy write path that never stamped the line price.
	record := &models.Cart{BuyerID: buyerID}
	require.NoError(t, db.Create(record).Error)
	item := &models.CartItem{CartID: record.ID, ProductID: bottle.ID, Quantity: 3, LinePaise: 0}
	require.NoError(t, db.Create(item).Error)

	view, err := svc.GetCart(context.Background(), buyerID)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, int64(30000), view.Lines[0].LinePaise)
	assert.Equal(t, int64(30000), view.TotalPaise)

	var reloaded models.CartItem
	require.NoError(t, db.First(&reloaded, "id = ?", item.ID).Error)
	assert.Equal(t, int64(30000), reloaded.LinePaise, "repair must persist the recomputed price")

	var cartRow models.Cart
	require.NoError(t, db.First(&cartRow, "id = ?", record.ID).Error)
	assert.Equal(t, int64(30000), cartRow.TotalPaise)
}

func TestGetCartDropsDanglingLines(t *testing.T) {
	svc, db := setupCartService(t)
	buyerID := uuid.New()
	bottle := seedProduct(t, db, "Steel Bottle", 10000, 5)

	record := &models.Cart{BuyerID: buyerID}
	require.NoError(t, db.Create(record).Error)
	require.NoError(t, db.Create(&models.CartItem{CartID: record.ID, ProductID: bottle.ID, Quantity: 1, LinePaise: 10000}).Error)
	require.NoError(t, db.Create(&models.CartItem{CartID: record.ID, ProductID: uuid.New(), Quantity: 2, LinePaise: 5000}).Error)

	view, err := svc.GetCart(context.Background(), buyerID)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, bottle.ID, view.Lines[0].ProductID)
	assert.Equal(t, int64(10000), view.TotalPaise)

	var count int64
	require.NoError(t, db.Model(&models.CartItem{}).Where("cart_id = ?", record.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count, "dangling lines must be deleted, not repaired")
}

func TestUpdateItemQuantityZeroRemovesLine(t *testing.T) {
	svc, db := setupCartService(t)
	buyerID := uuid.New()
	bottle := seedProduct(t, db, "Steel Bottle", 10000, 5)
	mug := seedProduct(t, db, "Clay Mug", 2500, 5)

	_, err := svc.AddItem(context.Background(), buyerID, bottle.ID, 1)
	require.NoError(t, err)
	_, err = svc.AddItem(context.Background(), buyerID, mug.ID, 2)
	require.NoError(t, err)

	view, err := svc.UpdateItemQuantity(context.Background(), buyerID, bottle.ID, 0)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, mug.ID, view.Lines[0].ProductID)
	assert.Equal(t, int64(5000), view.TotalPaise)
}

func TestRemoveLastLineDropsCart(t *testing.T) {
	svc, db := setupCartService(t)
	buyerID := uuid.New()
	bottle := seedProduct(t, db, "Steel Bottle", 10000, 5)

	_, err := svc.AddItem(context.Background(), buyerID, bottle.ID, 1)
	require.NoError(t, err)

	view, err := svc.RemoveItem(context.Background(), buyerID, bottle.ID)
	require.NoError(t, err)
	assert.True(t, view.IsEmpty())

	var count int64
	require.NoError(t, db.Model(&models.Cart{}).Where("buyer_id = ?", buyerID).Count(&count).Error)
	assert.Zero(t, count, "emptied cart must be deleted")
}

func TestClearIsIdempotent(t *testing.T) {
	svc, db := setupCartService(t)
	buyerID := uuid.New()
	bottle := seedProduct(t, db, "Steel Bottle", 10000, 5)

	_, err := svc.AddItem(context.Background(), buyerID, bottle.ID, 1)
	require.NoError(t, err)

	require.NoError(t, svc.Clear(context.Background(), buyerID))
	require.NoError(t, svc.Clear(context.Background(), buyerID))

	var count int64
	require.NoError(t, db.Model(&models.CartItem{}).Count(&count).Error)
	assert.Zero(t, count)
}
