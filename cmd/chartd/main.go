package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/mohamedkhairy/chart-engine/internal/config"
	"github.com/mohamedkhairy/chart-engine/internal/engine"
	"github.com/mohamedkhairy/chart-engine/internal/pubsub"
	"github.com/mohamedkhairy/chart-engine/internal/storage"
	"github.com/mohamedkhairy/chart-engine/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.Environment); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting chart engine service",
		logger.Int("health_port", cfg.Chartd.HealthCheckPort),
		logger.String("bar_stream", cfg.Chartd.BarStream),
		logger.String("update_stream", cfg.Chartd.UpdateStream),
		logger.String("consumer_group", cfg.Chartd.ConsumerGroup),
	)

	// Initialize Redis client
	redisClient, err := pubsub.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to initialize Redis client",
			logger.ErrorField(err),
		)
	}
	defer redisClient.Close()

	// Initialize chart engine
	chartEngine := engine.NewEngine(cfg.Chartd)
	defer chartEngine.Stop()

	// Bar persistence is optional: without the database the engine still
	// computes and publishes, it just cannot backfill the API
	barStore, err := storage.NewTimescaleDBClient(cfg.Database, storage.WriteConfigFromChartdConfig(cfg.Chartd))
	if err != nil {
		logger.Warn("Failed to initialize bar storage, persistence disabled",
			logger.ErrorField(err),
		)
	} else {
		defer barStore.Close()
		if err := barStore.Start(); err != nil {
			logger.Fatal("Failed to start bar write processor",
				logger.ErrorField(err),
			)
		}
		chartEngine.SetBarStorage(barStore)
		logger.Info("Bar persistence enabled")
	}

	// Initialize update publisher
	publisherConfig := engine.DefaultPublisherConfig(cfg.Chartd.UpdateStream, cfg.Chartd.UpdateTTL)
	publisher := engine.NewUpdatePublisher(redisClient, publisherConfig)
	if err := publisher.Start(); err != nil {
		logger.Fatal("Failed to start update publisher",
			logger.ErrorField(err),
		)
	}
	defer publisher.Stop()

	chartEngine.SetOnChartUpdates(publisher.Publish)

	// Initialize bar consumer
	consumerConfig := pubsub.DefaultStreamConsumerConfig(
		cfg.Chartd.BarStream,
		cfg.Chartd.ConsumerGroup,
		fmt.Sprintf("chartd-%d", os.Getpid()),
	)
	barConsumer := pubsub.NewStreamConsumer(redisClient, consumerConfig)
	barConsumer.SetProcessor(chartEngine)

	if err := barConsumer.Start(); err != nil {
		logger.Fatal("Failed to start bar consumer",
			logger.ErrorField(err),
		)
	}
	defer barConsumer.Stop()

	logger.Info("Chart engine service started",
		logger.String("stream", cfg.Chartd.BarStream),
		logger.String("consumer_group", cfg.Chartd.ConsumerGroup),
	)

	// Setup health and metrics server
	var wg sync.WaitGroup
	healthRouter := setupHealthAndMetricsServer(chartEngine, barConsumer, publisher)
	healthServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Chartd.HealthCheckPort),
		Handler:      healthRouter,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("Starting health and metrics server",
			logger.Int("port", cfg.Chartd.HealthCheckPort),
		)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Health and metrics server failed",
				logger.ErrorField(err),
			)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutting down chart engine service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Health server shutdown failed", logger.ErrorField(err))
	}

	wg.Wait()

	logger.Info("Chart engine service stopped")
}

// setupHealthAndMetricsServer sets up HTTP endpoints for health checks and metrics
func setupHealthAndMetricsServer(
	chartEngine *engine.Engine,
	consumer *pubsub.StreamConsumer,
	publisher *engine.UpdatePublisher,
) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		healthStatus := map[string]interface{}{
			"status":    "UP",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"checks": map[string]interface{}{
				"consumer": map[string]interface{}{
					"status":  "ok",
					"running": consumer.IsRunning(),
					"stats":   consumer.GetStats(),
				},
				"engine": map[string]interface{}{
					"status":       "ok",
					"symbol_count": chartEngine.GetSymbolCount(),
				},
				"publisher": map[string]interface{}{
					"status":  "ok",
					"running": publisher.IsRunning(),
				},
			},
		}

		if !consumer.IsRunning() || !publisher.IsRunning() {
			status = http.StatusServiceUnavailable
			healthStatus["status"] = "DOWN"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(healthStatus)
	}).Methods("GET")

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if consumer.IsRunning() && publisher.IsRunning() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("READY"))
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("NOT READY"))
		}
	}).Methods("GET")

	router.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("LIVE"))
	}).Methods("GET")

	router.Handle("/metrics", promhttp.Handler())

	return router
}
