package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bazaarly/bazaarly-backend/api/controllers"
	"github.com/bazaarly/bazaarly-backend/api/middleware"
	cartsvc "github.com/bazaarly/bazaarly-backend/internal/cart"
	"github.com/bazaarly/bazaarly-backend/internal/checkout"
	internalorders "github.com/bazaarly/bazaarly-backend/internal/orders"
	"github.com/bazaarly/bazaarly-backend/internal/payments"
	"github.com/bazaarly/bazaarly-backend/pkg/config"
	"github.com/bazaarly/bazaarly-backend/pkg/db"
	"github.com/bazaarly/bazaarly-backend/pkg/logger"
	"github.com/bazaarly/bazaarly-backend/pkg/redis"
)

// Deps carries everything the router wires into its handlers.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	DBPinger    db.Pinger
	RedisClient *redis.Client
	Registry    *prometheus.Registry

	Builder         *checkout.Builder
	CartService     cartsvc.Service
	OrdersService   internalorders.Service
	PaymentsService payments.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	var redisPinger redis.Pinger
	if deps.RedisClient != nil {
		redisPinger = deps.RedisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DBPinger, redisPinger))
	})

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		if deps.RedisClient != nil {
			r.Use(middleware.Idempotency(deps.RedisClient, cfg.Idempotency, logg))
		}

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartFetch(deps.CartService, logg))
			r.Delete("/", controllers.CartClear(deps.CartService, logg))
			r.Post("/items", controllers.CartAddItem(deps.CartService, logg))
			r.Put("/items/{productID}", controllers.CartUpdateItem(deps.CartService, logg))
			r.Delete("/items/{productID}", controllers.CartRemoveItem(deps.CartService, logg))
		})

		r.Post("/checkout/quote", controllers.CheckoutQuote(deps.Builder, deps.CartService, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.PlaceOrder(deps.OrdersService, deps.Builder, logg))
			r.Get("/", controllers.ListOrders(deps.OrdersService, logg))
			r.Get("/{orderID}", controllers.OrderDetail(deps.OrdersService, logg))
			r.Post("/{orderID}/cancel", controllers.CancelOrder(deps.OrdersService, logg))
		})

		r.Route("/seller", func(r chi.Router) {
			r.Use(middleware.RequireRole("seller", logg))
			r.Get("/orders", controllers.SellerOrders(deps.OrdersService, logg))
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/", controllers.PaymentCreate(deps.PaymentsService, logg))
			r.Post("/verify", controllers.PaymentVerify(deps.PaymentsService, logg))
			r.Post("/{paymentID}/reconcile", controllers.PaymentReconcile(deps.PaymentsService, logg))
		})
	})

	return r
}
