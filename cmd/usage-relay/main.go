package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rxlocator/platform/pkg/billing"
	"github.com/rxlocator/platform/pkg/common/config"
	"github.com/rxlocator/platform/pkg/common/kafka"
	"github.com/rxlocator/platform/pkg/common/logger"
	"github.com/rxlocator/platform/pkg/observability/metrics"
)

func main() {
	logger.Init()
	cfg, err := config.Load()
	if err != nil {
		logger.Log.WithError(err).Fatal("Invalid configuration")
	}
	logger.Init(cfg.LogLevel)

	if cfg.BillingBaseURL == "" {
		logger.Log.Fatal("BILLING_BASE_URL is required for the usage relay")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reporter := billing.NewHTTPReporter(cfg.BillingBaseURL, cfg.BillingAPIKey, cfg.BillingTimeout)
	relay := billing.NewRelay(reporter, 5, 200*time.Millisecond, logger.Log)

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaUsageTopic, cfg.KafkaGroupID)
	defer consumer.Close()

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)
	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods(http.MethodGet)

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:     router,
		ReadTimeout: cfg.ReadTimeout,
		IdleTimeout: 120 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	logger.Log.WithFields(map[string]interface{}{
		"topic": cfg.KafkaUsageTopic,
		"group": cfg.KafkaGroupID,
	}).Info("Usage relay started")

	if err := consumer.Consume(ctx, relay.Handle); err != nil && !errors.Is(err, context.Canceled) {
		logger.Log.WithError(err).Error("Usage relay consumer stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}
	logger.Log.Info("Usage relay stopped")
}
