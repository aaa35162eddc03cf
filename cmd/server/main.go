package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wingmanlabs/wingman-backend/internal/api"
	"github.com/wingmanlabs/wingman-backend/internal/config"
	"github.com/wingmanlabs/wingman-backend/internal/core"
	"github.com/wingmanlabs/wingman-backend/internal/logging"
	"github.com/wingmanlabs/wingman-backend/internal/store"
)

func main() {
	// Load configuration
	config.LoadConfig()

	logger := logging.NewLogger(config.AppConfig.LogLevel, config.AppConfig.LogFormat)

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer dbStore.Close()

	// Initialize inference client
	llmClient := core.NewOllamaClient(
		config.AppConfig.OllamaBaseURL,
		config.AppConfig.OllamaModel,
		time.Duration(config.AppConfig.OllamaTimeoutSeconds)*time.Second,
		config.AppConfig.OllamaNumGPU,
		logger,
	)

	// Initialize turn orchestrator
	orchestrator := core.NewOrchestrator(dbStore, llmClient, logger)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(orchestrator, dbStore, api.NewUserRateLimiter(
		config.AppConfig.RateLimitRPM,
		config.AppConfig.RateLimitBurst,
	), logger)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:        serverAddr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout stays 0: streamed responses can outlive any fixed
		// per-response deadline; the backend call has its own timeout.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.WithField("addr", serverAddr).Info("Starting server. Press Ctrl+C to quit.")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatalf("Could not listen on %s", serverAddr)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Give active connections time to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exiting gracefully")
}
