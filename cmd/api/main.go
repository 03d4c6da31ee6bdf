package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/mohamedkhairy/chart-engine/internal/api"
	"github.com/mohamedkhairy/chart-engine/internal/config"
	"github.com/mohamedkhairy/chart-engine/internal/pubsub"
	"github.com/mohamedkhairy/chart-engine/internal/storage"
	"github.com/mohamedkhairy/chart-engine/internal/wsgateway"
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

	logger.Info("Starting chart API service",
		logger.Int("port", cfg.API.Port),
		logger.Int("health_port", cfg.API.HealthCheckPort),
	)

	// Initialize bar storage
	barStore, err := storage.NewTimescaleDBClient(cfg.Database, storage.WriteConfigFromChartdConfig(cfg.Chartd))
	if err != nil {
		logger.Fatal("Failed to initialize bar storage",
			logger.ErrorField(err),
		)
	}
	defer barStore.Close()

	// Initialize Redis client
	redisClient, err := pubsub.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to initialize Redis client",
			logger.ErrorField(err),
		)
	}
	defer redisClient.Close()

	// Initialize WebSocket hub broadcasting chart updates
	authManager := wsgateway.NewAuthManager(cfg.WSGateway.JWTSecret)
	hub := wsgateway.NewHub(cfg.WSGateway, redisClient, cfg.WSGateway.UpdateStream, cfg.WSGateway.ConsumerGroup)
	if err := hub.Start(); err != nil {
		logger.Fatal("Failed to start WebSocket hub",
			logger.ErrorField(err),
		)
	}
	defer hub.Stop()

	// Set up routes
	router := mux.NewRouter()

	chartHandler := api.NewChartHandler(barStore, redisClient, cfg.Chartd.Indicators, cfg.API.MaxBars)
	chartHandler.RegisterRoutes(router)

	router.HandleFunc("/ws", hub.HandleWebSocket(authManager))

	chain := api.ChainMiddleware(
		api.ErrorHandlingMiddleware(),
		api.RequestIDMiddleware(),
		api.CORSMiddleware(),
		api.LoggingMiddleware(),
		api.RateLimitMiddleware(100),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.API.Port),
		Handler:      chain(router),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server",
			logger.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start HTTP server",
				logger.ErrorField(err),
			)
		}
	}()

	// Health and metrics server
	healthRouter := mux.NewRouter()
	healthRouter.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":         "UP",
			"timestamp":      time.Now().UTC().Format(time.RFC3339),
			"ws_connections": hub.ConnectionCount(),
		})
	}).Methods("GET")
	healthRouter.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("LIVE"))
	}).Methods("GET")
	healthRouter.Handle("/metrics", promhttp.Handler())

	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.API.HealthCheckPort),
		Handler: healthRouter,
	}

	go func() {
		logger.Info("Starting health and metrics server",
			logger.Int("port", cfg.API.HealthCheckPort),
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
	logger.Info("Shutting down chart API service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP server",
			logger.ErrorField(err),
		)
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down health server",
			logger.ErrorField(err),
		)
	}

	logger.Info("Chart API service stopped")
}
