package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/casadeele/storefront/api/controllers"
	"github.com/casadeele/storefront/api/routes"
	"github.com/casadeele/storefront/internal/cart"
	"github.com/casadeele/storefront/internal/checkout"
	"github.com/casadeele/storefront/internal/coupons"
	"github.com/casadeele/storefront/pkg/apiclient"
	"github.com/casadeele/storefront/pkg/auth/session"
	"github.com/casadeele/storefront/pkg/config"
	"github.com/casadeele/storefront/pkg/db"
	"github.com/casadeele/storefront/pkg/logger"
	"github.com/casadeele/storefront/pkg/metrics"
	"github.com/casadeele/storefront/pkg/migrate"
	"github.com/casadeele/storefront/pkg/redis"
)

const purgeJob = "cart.slots.purge"

// expiringSlots are slot backends that keep expired slots until purged.
type expiringSlots interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	ns := cfg.Metrics.Namespace
	cartMetrics := metrics.NewCartMetrics(registry, ns)
	checkoutMetrics := metrics.NewCheckoutMetrics(registry, ns)
	jobMetrics := metrics.NewJobMetrics(registry, ns)
	upstreamMetrics := metrics.NewUpstreamMetrics(registry, ns)

	pingers := map[string]controllers.Pinger{}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, redisClient.Close()) }()
		pingers["redis"] = redisClient
	}

	var dbClient *db.Client
	if cfg.Cart.Storage == config.CartStorageSQL {
		dbClient, err = db.New(ctx, cfg.DB, logg)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, dbClient.Close()) }()
		if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
			return err
		}
		pingers["database"] = dbClient
	}

	slots, err := cart.NewSlotStore(cfg.Cart, redisClient, dbClient)
	if err != nil {
		return err
	}
	carts := cart.NewRegistry(slots, cart.ProviderOptions{
		PlaceholderImage: cfg.Cart.PlaceholderImage,
		Logger:           logg,
		Metrics:          cartMetrics,
	}, jobMetrics)

	apiOpts := apiclient.OptionsFromConfig(cfg.API)
	apiOpts.Logger = logg
	apiOpts.Metrics = upstreamMetrics
	api, err := apiclient.New(apiOpts)
	if err != nil {
		return err
	}
	couponSvc, err := coupons.NewService(api)
	if err != nil {
		return err
	}
	orders, err := checkout.NewOrderAPI(api)
	if err != nil {
		return err
	}
	orch, err := checkout.NewOrchestrator(orders, couponSvc, checkout.OptionsFromConfig(cfg.Checkout), logg, checkoutMetrics)
	if err != nil {
		return err
	}
	checkoutSvc, err := checkout.NewService(carts, orch, couponSvc, logg)
	if err != nil {
		return err
	}
	defer checkoutSvc.Close()

	sessions, err := session.NewManager(redisClient, cfg.Session)
	if err != nil {
		return err
	}

	go carts.Run(ctx, cfg.Cart.JanitorInterval, cfg.Cart.IdleEviction)
	go checkoutSvc.Run(ctx, cfg.Cart.JanitorInterval, cfg.Cart.IdleEviction)
	if expiring, ok := slots.(expiringSlots); ok {
		go purgeExpired(ctx, logg, jobMetrics, expiring, cfg.Cart.JanitorInterval)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	serverCtx := logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"addr":         addr,
		"cart_storage": cfg.Cart.Storage,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Deps{
			Sessions: sessions,
			Carts:    carts,
			Checkout: checkoutSvc,
			Redis:    redisClient,
			Pingers:  pingers,
			Gatherer: registry,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(serverCtx, "api.server.start")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logg.Info(serverCtx, "api.server.shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownWait)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func purgeExpired(ctx context.Context, logg *logger.Logger, jobs *metrics.JobMetrics, slots expiringSlots, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			purged, err := slots.PurgeExpired(ctx)
			jobs.ObserveRun(purgeJob, time.Since(start), int(purged), err)
			if err != nil {
				logg.Error(ctx, "cart.slots.purge.failed", err)
			}
		}
	}
}
