package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/ordercore/internal/idempotency"
	"github.com/utafrali/ordercore/internal/service"
	"github.com/utafrali/ordercore/internal/throttle"
	"github.com/utafrali/ordercore/pkg/health"
	"github.com/utafrali/ordercore/pkg/middleware"
)

// ServiceName labels HTTP metrics and spans.
const ServiceName = "ordercore"

// Roles allowed to report payment outcomes.
var paymentCallbackRoles = []string{"admin", "service"}

// RouterDeps holds everything NewRouter wires.
type RouterDeps struct {
	Checkout    *service.CheckoutService
	Carts       *service.CartService
	Discounts   *service.DiscountEvaluator
	Throttle    *throttle.Throttle
	Idempotency *idempotency.Store
	Health      *health.Handler
	Validate    middleware.TokenValidator
	PprofCIDRs  []string
}

// NewRouter creates a chi router with all routes registered. Order
// creation passes through the throttle and then the idempotency check;
// both are skipped when their dependency is nil.
func NewRouter(deps RouterDeps, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(ServiceName))
	r.Use(middleware.Tracing(ServiceName))
	r.Use(middleware.RequestLogger(logger))

	r.Get("/health/live", deps.Health.LivenessHandler())
	r.Get("/health/ready", deps.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	middleware.RegisterPprof(r, deps.PprofCIDRs, logger)

	orders := NewOrderHandler(deps.Checkout, logger)
	carts := NewCartHandler(deps.Carts, logger)
	discounts := NewDiscountHandler(deps.Discounts, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON(logger))
		r.Use(middleware.Auth(deps.Validate, logger))

		r.Route("/orders", func(r chi.Router) {
			r.With(createOrderGuards(deps, logger)...).Post("/", orders.CreateOrder)
			r.Get("/", orders.ListOrders)
			r.Get("/{id}", orders.GetOrder)
			r.Post("/{id}/cancel", orders.CancelOrder)
			r.With(middleware.RequireRole(logger, paymentCallbackRoles...)).
				Post("/{id}/payment/confirm", orders.ConfirmPayment)
		})

		r.Post("/discount/validate", discounts.Validate)

		r.Route("/carts", func(r chi.Router) {
			r.Post("/", carts.CreateCart)
			r.Get("/{id}", carts.GetCart)
			r.Post("/{id}/lines", carts.AddLine)
			r.Patch("/{id}/lines/{lineID}", carts.UpdateLine)
			r.Delete("/{id}/lines/{lineID}", carts.RemoveLine)
		})
	})

	return r
}

func createOrderGuards(deps RouterDeps, logger *slog.Logger) []func(http.Handler) http.Handler {
	var guards []func(http.Handler) http.Handler
	if deps.Throttle != nil {
		guards = append(guards, deps.Throttle.Middleware(logger))
	}
	if deps.Idempotency != nil {
		guards = append(guards, idempotency.Middleware(deps.Idempotency, logger))
	}
	return guards
}
