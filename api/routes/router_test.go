package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	cartsvc "github.com/bazaarly/bazaarly-backend/internal/cart"
	"github.com/bazaarly/bazaarly-backend/internal/catalog"
	"github.com/bazaarly/bazaarly-backend/internal/checkout"
	internalorders "github.com/bazaarly/bazaarly-backend/internal/orders"
	"github.com/bazaarly/bazaarly-backend/internal/payments"
	pkgauth "github.com/bazaarly/bazaarly-backend/pkg/auth"
	"github.com/bazaarly/bazaarly-backend/pkg/config"
	"github.com/bazaarly/bazaarly-backend/pkg/db/models"
	"github.com/bazaarly/bazaarly-backend/pkg/gateway"
	"github.com/bazaarly/bazaarly-backend/pkg/logger"
	"github.com/bazaarly/bazaarly-backend/pkg/types"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (g gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.db.WithContext(ctx).Transaction(fn)
}

type stubGateway struct {
	createCalls int
}

func (g *stubGateway) CreateOrder(_ context.Context, params gateway.OrderCreateParams) (*gateway.Order, error) {
	g.createCalls++
	return &gateway.Order{
		ID:          fmt.Sprintf("order_stub%d", g.createCalls),
		AmountPaise: params.AmountPaise,
		Currency:    "INR",
		Receipt:     params.Receipt,
		Status:      "created",
	}, nil
}

func (g *stubGateway) VerifySignature(orderRef, paymentRef, signature string) bool {
	return signature == gateway.SignPayload("stub-secret", orderRef, paymentRef)
}

func (g *stubGateway) KeyID() string { return "rzp_test_key" }

var testCfg = &config.Config{
	App: config.AppConfig{Env: "test", Port: "0"},
	JWT: config.JWTConfig{
		Secret:            "router-test-secret",
		Issuer:            "bazaarly-test",
		ExpirationMinutes: 15,
	},
	Idempotency: config.IdempotencyConfig{
		TTL:         24 * time.Hour,
		CriticalTTL: 168 * time.Hour,
	},
}

type routerFixture struct {
	handler http.Handler
	db      *gorm.DB
}

func setupRouter(t *testing.T) *routerFixture {
	t.Helper()

	// Shared cache so every pooled connection sees the same database;
	// a unique name keeps tests isolated from each other.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Product{},
		&models.Cart{},
		&models.CartItem{},
		&models.Order{},
		&models.OrderLineItem{},
		&models.OrderTimelineEntry{},
		&models.Payment{},
	))

	logg := logger.New(logger.Options{ServiceName: "router-test"})
	runner := gormTxRunner{db: db}
	stock := catalog.NewRepository(db)

	cartService, err := cartsvc.NewService(cartsvc.NewRepository(db), stock, runner, logg)
	require.NoError(t, err)

	ordersRepo := internalorders.NewRepository(db)
	ordersService, err := internalorders.NewService(ordersRepo, stock, runner, nil, logg)
	require.NoError(t, err)

	builder, err := checkout.NewBuilder(stock)
	require.NoError(t, err)

	paymentsService, err := payments.NewService(
		payments.NewRepository(db), ordersService, ordersRepo, stock,
		builder, cartService, &stubGateway{}, runner, nil, logg,
	)
	require.NoError(t, err)

	handler := NewRouter(Deps{
		Config:          testCfg,
		Logger:          logg,
		Builder:         builder,
		CartService:     cartService,
		OrdersService:   ordersService,
		PaymentsService: paymentsService,
	})
	return &routerFixture{handler: handler, db: db}
}

func mintToken(t *testing.T, userID uuid.UUID, role pkgauth.Role) string {
	t.Helper()

	token, err := pkgauth.MintAccessToken(testCfg.JWT, time.Now(), pkgauth.AccessTokenPayload{
		UserID: userID,
		Role:   role,
	})
	require.NoError(t, err)
	return token
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

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var envelope types.SuccessEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	data, ok := envelope.Data.(map[string]any)
	require.True(t, ok, "expected object payload, got %T", envelope.Data)
	return data
}

func testAddressPayload() map[string]any {
	return map[string]any{
		"name":        "Asha Rao",
		"street":      "14 MG Road",
		"city":        "Bengaluru",
		"state":       "Karnataka",
		"country":     "IN",
		"postal_code": "560001",
	}
}

func TestRouterRejectsAnonymousRequests(t *testing.T) {
	fx := setupRouter(t)

	rec := doJSON(t, fx.handler, http.MethodGet, "/api/v1/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthLive(t *testing.T) {
	fx := setupRouter(t)

	rec := doJSON(t, fx.handler, http.MethodGet, "/health/live", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", rec.Header().Get("X-Bazaarly-Env"))
}

func TestCartFlowOverHTTP(t *testing.T) {
	fx := setupRouter(t)
	buyerID := uuid.New()
	token := mintToken(t, buyerID, pkgauth.RoleBuyer)
	mug := seedProduct(t, fx.db, "Clay Mug", 25000, 10)

	rec := doJSON(t, fx.handler, http.MethodPost, "/api/v1/cart/items", token, map[string]any{
		"product_id": mug.ID,
		"quantity":   2,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, fx.handler, http.MethodGet, "/api/v1/cart", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	assert.Equal(t, float64(50000), data["total_paise"])

	rec = doJSON(t, fx.handler, http.MethodPost, "/api/v1/checkout/quote", token, map[string]any{
		"from_cart": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	quote := decodeData(t, rec)
	assert.Equal(t, float64(50000), quote["total_paise"])
}

func TestPlaceAndCancelOrderOverHTTP(t *testing.T) {
	fx := setupRouter(t)
	buyerID := uuid.New()
	token := mintToken(t, buyerID, pkgauth.RoleBuyer)
	lamp := seedProduct(t, fx.db, "Desk Lamp", 150000, 5)

	rec := doJSON(t, fx.handler, http.MethodPost, "/api/v1/orders", token, map[string]any{
		"items":            []map[string]any{{"product_id": lamp.ID, "quantity": 2}},
		"method":           "cash",
		"shipping_address": testAddressPayload(),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decodeData(t, rec)
	assert.Equal(t, "pending", order["Status"])
	orderID := order["ID"].(string)

	var product models.Product
	require.NoError(t, fx.db.Where("id = ?", lamp.ID).First(&product).Error)
	assert.Equal(t, 3, product.Quantity)

	rec = doJSON(t, fx.handler, http.MethodPost, "/api/v1/orders/"+orderID+"/cancel", token, map[string]any{
		"note": "changed my mind",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cancelled := decodeData(t, rec)
	assert.Equal(t, "cancelled", cancelled["Status"])

	require.NoError(t, fx.db.Where("id = ?", lamp.ID).First(&product).Error)
	assert.Equal(t, 5, product.Quantity, "cancellation must restore stock")
}

func TestInsufficientStockSurfacesProductName(t *testing.T) {
	fx := setupRouter(t)
	buyerID := uuid.New()
	token := mintToken(t, buyerID, pkgauth.RoleBuyer)
	lamp := seedProduct(t, fx.db, "Desk Lamp", 150000, 1)

	rec := doJSON(t, fx.handler, http.MethodPost, "/api/v1/orders", token, map[string]any{
		"items":            []map[string]any{{"product_id": lamp.ID, "quantity": 4}},
		"method":           "cash",
		"shipping_address": testAddressPayload(),
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	var envelope types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	assert.Equal(t, "INSUFFICIENT_STOCK", envelope.Error.Code)
	assert.Contains(t, envelope.Error.Message, "Desk Lamp")
}

func TestSellerOrdersRequiresSellerRole(t *testing.T) {
	fx := setupRouter(t)
	token := mintToken(t, uuid.New(), pkgauth.RoleBuyer)

	rec := doJSON(t, fx.handler, http.MethodGet, "/api/v1/seller/orders", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	sellerToken := mintToken(t, uuid.New(), pkgauth.RoleSeller)
	rec = doJSON(t, fx.handler, http.MethodGet, "/api/v1/seller/orders", sellerToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCashPaymentCheckoutOverHTTP(t *testing.T) {
	fx := setupRouter(t)
	buyerID := uuid.New()
	token := mintToken(t, buyerID, pkgauth.RoleBuyer)
	mug := seedProduct(t, fx.db, "Clay Mug", 25000, 10)

	rec := doJSON(t, fx.handler, http.MethodPost, "/api/v1/cart/items", token, map[string]any{
		"product_id": mug.ID,
		"quantity":   3,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, fx.handler, http.MethodPost, "/api/v1/payments", token, map[string]any{
		"method":           "cash",
		"from_cart":        true,
		"shipping_address": testAddressPayload(),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	data := decodeData(t, rec)
	require.NotNil(t, data["order"])

	rec = doJSON(t, fx.handler, http.MethodGet, "/api/v1/cart", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cart := decodeData(t, rec)
	assert.Equal(t, float64(0), cart["total_paise"], "cart is cleared by the checkout")
}
