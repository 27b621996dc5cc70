package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/casadeele/storefront/api/controllers"
	"github.com/casadeele/storefront/api/middleware"
	checkoutsvc "github.com/casadeele/storefront/internal/checkout"
	"github.com/casadeele/storefront/pkg/auth/session"
	"github.com/casadeele/storefront/pkg/config"
	"github.com/casadeele/storefront/pkg/logger"
	"github.com/casadeele/storefront/pkg/redis"
)

type sessionManager interface {
	session.Checker
	Issue(context.Context) (session.Issued, error)
	Revoke(context.Context, string) error
}

type cartRegistry interface {
	controllers.CartRegistry
	controllers.SessionForgetter
}

// Deps are the services the router mounts. Redis and Gatherer are optional:
// without redis, idempotency replay and rate limiting are off.
type Deps struct {
	Sessions sessionManager
	Carts    cartRegistry
	Checkout checkoutsvc.Service
	Redis    *redis.Client
	Pingers  map[string]controllers.Pinger
	Gatherer prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS),
	)

	var (
		idempotencyStore redis.IdempotencyStore
		limiterStore     *redis.Client
	)
	if deps.Redis != nil {
		idempotencyStore = deps.Redis
		limiterStore = deps.Redis
	}
	idempotent := middleware.Idempotency(idempotencyStore, logg)
	sessionLimit := rateLimit(middleware.NewRateLimitPolicy("sessions", cfg.RateLimit.Window, cfg.RateLimit.SessionIPLimit, 0), limiterStore, logg)
	couponLimit := rateLimit(middleware.NewRateLimitPolicy("coupons", cfg.RateLimit.Window, cfg.RateLimit.CouponIPLimit, cfg.RateLimit.CouponSessionLimit), limiterStore, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Pingers))
	})
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.With(sessionLimit).Post("/sessions", controllers.SessionCreate(deps.Sessions, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Session(cfg.Session, deps.Sessions, logg))

			r.Delete("/sessions/current", controllers.SessionEnd(deps.Sessions, logg, deps.Carts, deps.Checkout))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", controllers.CartFetch(deps.Carts, logg))
				r.Delete("/", controllers.CartClear(deps.Carts, logg))
				r.Post("/items", controllers.CartAddItem(deps.Carts, logg))
				r.Patch("/items", controllers.CartUpdateItem(deps.Carts, logg))
				r.Delete("/items", controllers.CartRemoveItem(deps.Carts, logg))
				r.Get("/items/{itemId}/added", controllers.CartItemAdded(deps.Carts, logg))
			})

			r.Route("/coupons", func(r chi.Router) {
				r.With(couponLimit).Post("/", controllers.CouponApply(deps.Checkout, logg))
				r.Delete("/", controllers.CouponRemove(deps.Checkout, logg))
			})

			r.Route("/checkout", func(r chi.Router) {
				r.Get("/", controllers.CheckoutCurrent(deps.Checkout, logg))
				r.With(idempotent).Post("/", controllers.CheckoutBegin(deps.Checkout, logg))
				r.Get("/summary", controllers.CheckoutSummary(deps.Checkout, logg))
				r.With(idempotent).Post("/{attemptId}/payment", controllers.CheckoutPayment(deps.Checkout, logg))
				r.Post("/{attemptId}/dismiss", controllers.CheckoutDismiss(deps.Checkout, logg))
				r.Post("/{attemptId}/failure", controllers.CheckoutFailure(deps.Checkout, logg))
			})
		})
	})

	return r
}

func rateLimit(policy middleware.RateLimitPolicy, store *redis.Client, logg *logger.Logger) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.RateLimit(policy, store, logg)
}
