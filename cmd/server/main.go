// Package main is the entry point for the Oracle Portfolio plugin registry service.
//
// The service keeps the indicator, formula and regime plugins of the dashboard in an
// in-memory registry backed by SQLite, serves them over HTTP, streams registry events
// over SSE and websockets, and snapshots the registry on a schedule.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/oracle-portfolio/internal/config"
	"github.com/aristath/oracle-portfolio/internal/di"
	"github.com/aristath/oracle-portfolio/internal/server"
	"github.com/aristath/oracle-portfolio/pkg/logger"
)

// main is the application entry point. Startup sequence:
// 1. Loads configuration from environment variables (.env file)
// 2. Initializes logging
// 3. Wires all dependencies (databases, registry restore, hooks, seed, S3)
// 4. Starts the scheduler and the HTTP server
// 5. Waits for a shutdown signal and shuts down gracefully
//
// Two databases live in the data directory:
// - plugins.db: the registry content, one row per plugin
// - snapshots.db: msgpack copies of the registry
func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting Oracle Portfolio")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, _, err := di.Wire(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	container.Scheduler.Start()

	srv := server.New(server.Config{
		Log:       log,
		DataDir:   cfg.DataDir,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
		Container: container,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Waits for a running snapshot to finish before the databases close
	container.Scheduler.Stop()

	log.Info().Msg("Server stopped")
}
