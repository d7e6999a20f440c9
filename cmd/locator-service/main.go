package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/rxlocator/platform/pkg/billing"
	"github.com/rxlocator/platform/pkg/common/config"
	"github.com/rxlocator/platform/pkg/common/database"
	"github.com/rxlocator/platform/pkg/common/kafka"
	"github.com/rxlocator/platform/pkg/common/logger"
	"github.com/rxlocator/platform/pkg/gateway/auth"
	"github.com/rxlocator/platform/pkg/gateway/middleware"
	"github.com/rxlocator/platform/pkg/locations"
	"github.com/rxlocator/platform/pkg/locator"
	"github.com/rxlocator/platform/pkg/observability/metrics"
	"github.com/rxlocator/platform/pkg/taxonomy"
)

const serviceName = "locator-service"

type backend struct {
	store     locator.Store
	locations locations.Repository
	close     func()
}

func main() {
	logger.Init()
	cfg, err := config.Load()
	if err != nil {
		logger.Log.WithError(err).Fatal("Invalid configuration")
	}
	logger.Init(cfg.LogLevel)

	be, err := openBackend(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to open store")
	}
	defer be.close()

	reporter, closeReporter := newReporter(cfg)
	defer closeReporter()

	verifier, err := newVerifier(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to configure identity verification")
	}

	catalog, err := taxonomy.Load(cfg.TaxonomyCatalog)
	if err != nil {
		logger.Log.WithError(err).Warn("Taxonomy catalog unavailable, using defaults")
	}

	redisClient := database.OpenRedis(cfg)
	defer database.CloseRedis(redisClient)

	meter := locator.NewMeter(reporter, be.store, cfg.MeterTimeout, logger.Log)
	search := locator.NewService(be.store, meter, logger.Log).UseTaxonomy(catalog)
	saved := locations.NewService(be.locations, logger.Log)

	router := newRouter(cfg, search, saved, catalog, verifier, redisClient)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host":     cfg.ServerHost,
			"port":     cfg.ServerPort,
			"store":    cfg.StoreDriver,
			"billing":  cfg.BillingMode,
			"identity": cfg.IdentityMode,
		}).Info("Locator service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down locator service...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	logger.Log.Info("Locator service stopped")
}

func newRouter(cfg *config.Config, search *locator.Service, saved *locations.Service, catalog taxonomy.Catalog, verifier auth.Verifier, rdb redis.Cmdable) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.Logging)
	router.Use(middleware.Recovery)
	router.Use(middleware.CORS)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		w.Header().Set("Content-Type", "application/json")
		if err := search.Ready(ctx); err != nil {
			logger.Log.WithError(err).Warn("Readiness check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.BodyLimit(cfg.MaxRequestBody))
	api.Use(middleware.Authenticate(verifier))
	if cfg.RateLimitPerMinute > 0 {
		api.Use(middleware.RateLimit(rdb, cfg.RateLimitPerMinute))
	}

	locator.NewHandler(search).Register(api)
	locations.NewHandler(saved).Register(api)
	taxonomy.NewHandler(catalog).Register(api)
	return router
}

func openBackend(cfg *config.Config) (*backend, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverSQLite:
		db, err := database.OpenSQLite(cfg.SQLitePath, cfg.MaxOpenConns)
		if err != nil {
			return nil, err
		}
		return &backend{
			store:     locator.NewSQLiteStore(db, cfg.QueryTimeout),
			locations: locations.NewSQLRepository(db),
			close:     func() { db.Close() },
		}, nil
	default:
		db, err := database.OpenPostgres(cfg)
		if err != nil {
			return nil, err
		}
		return &backend{
			store:     locator.NewPostgresStore(db, cfg.QueryTimeout),
			locations: locations.NewGormRepository(db),
			close:     func() { database.ClosePostgres(db) },
		}, nil
	}
}

func newReporter(cfg *config.Config) (billing.Reporter, func()) {
	switch cfg.BillingMode {
	case config.BillingModeKafka:
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaUsageTopic)
		return billing.NewKafkaReporter(producer, serviceName), func() { producer.Close() }
	case config.BillingModeHTTP:
		return billing.NewHTTPReporter(cfg.BillingBaseURL, cfg.BillingAPIKey, cfg.BillingTimeout), func() {}
	default:
		logger.Log.Warn("Billing disabled, metered usage is audited only")
		return billing.NopReporter{}, func() {}
	}
}

func newVerifier(cfg *config.Config) (auth.Verifier, error) {
	if cfg.IdentityMode == config.IdentityModeOIDC {
		v, err := auth.NewOIDCVerifier(cfg.OIDCIssuer, cfg.OIDCUserInfoURL, cfg.IdentityTimeout)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	m, err := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, time.Hour)
	if err != nil {
		return nil, err
	}
	return m, nil
}
