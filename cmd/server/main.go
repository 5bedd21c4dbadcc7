package main // Entry point package

import (
	"context"
	"errors"
	"log" // Fallback logging before zap is built
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4" // Echo web framework
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/beat-license-registry/internal/config"   // Environment config loader
	"github.com/iliyamo/beat-license-registry/internal/database" // MySQL pool
	"github.com/iliyamo/beat-license-registry/internal/handler"
	"github.com/iliyamo/beat-license-registry/internal/licensing"
	"github.com/iliyamo/beat-license-registry/internal/logging"
	"github.com/iliyamo/beat-license-registry/internal/middleware"
	"github.com/iliyamo/beat-license-registry/internal/queue"
	"github.com/iliyamo/beat-license-registry/internal/repository"
	"github.com/iliyamo/beat-license-registry/internal/router" // Route registration
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal(err) // Log and exit if startup or shutdown fails
	}
}

func run() error {
	cfg, err := config.Load() // Load environment config
	if err != nil {
		return err
	}
	logger, err := logging.ForEnv(cfg.Env, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// Cancelled on SIGINT/SIGTERM; everything below shuts down from it.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.Database())
	if err != nil {
		return err
	}
	defer db.Close()
	store := repository.NewMySQLStore(db)

	// Redis backs the response cache and the rate limiter.  Without it
	// both degrade to pass-through and the API keeps serving.
	cacheCfg := config.LoadCacheConfig()
	rateCfg := config.LoadRateLimitConfig()
	var rdb *redis.Client
	if cacheCfg.Enabled || rateCfg.Enabled {
		rdb, err = config.NewRedisClient(ctx, config.LoadRedisConfig())
		if err != nil {
			logger.Warn("redis unavailable, cache and rate limit disabled", zap.Error(err))
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	opts := []licensing.Option{
		licensing.WithCustomers(repository.NewCustomerRepo(db)),
		licensing.WithNotifier(queue.NewPublisher(cfg.RabbitURL, cfg.PurchaseQueue)),
		licensing.WithRunner(licensing.NewRunner(logger.With(zap.String(logging.FieldComponent, "side_effects")), cfg.SideEffectTimeout)),
	}
	if rdb != nil {
		opts = append(opts, licensing.WithCacheInvalidator(middleware.NewBeatCache(rdb, cacheCfg.Prefix)))
	}
	registry := licensing.New(store, logger.With(zap.String(logging.FieldComponent, "licensing")), opts...)

	if cfg.ConsumerEnabled {
		sink := &queue.FileSink{Dir: cfg.PurchaseLogDir}
		consumer := &queue.Consumer{
			URL:     cfg.RabbitURL,
			Queue:   cfg.PurchaseQueue,
			Handler: sink.Handle,
			Logger:  logger.With(zap.String(logging.FieldComponent, "consumer")),
		}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("purchase consumer stopped", zap.Error(err))
			}
		}()
	}

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover(), echomw.RequestID(), middleware.RequestContext())
	router.Register(e, router.Deps{
		Licenses:       handler.NewBeatLicenseHandler(registry, logger.With(zap.String(logging.FieldComponent, "http"))),
		Ready:          map[string]handler.Pinger{"mysql": db},
		JWTSecret:      cfg.JWTSecret,
		ServiceKeyHash: cfg.ServiceKeyHash,
		Redis:          rdb,
		Cache:          cacheCfg,
		RateLimit:      rateCfg,
		Logger:         logger,
	})

	addr := ":" + cfg.Port // Address string with port
	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errc:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	// Let in-flight notifications and cache invalidations finish.
	registry.Wait()
	return nil
}
