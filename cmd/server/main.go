// Package main provides the API server entry point for the ADR pipeline.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adr-pipeline/internal/api"
	"github.com/adr-pipeline/internal/config"
	"github.com/adr-pipeline/internal/directory"
	"github.com/adr-pipeline/internal/engine"
	"github.com/adr-pipeline/internal/logging"
	"github.com/adr-pipeline/internal/scheduler"
	"github.com/adr-pipeline/internal/scraper"
	"github.com/adr-pipeline/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.GetGlobalLogger().WithError(err).Fatal("Failed to load configuration")
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Connect to Postgres
	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	// Connect to Redis
	cache, err := storage.NewRunStatusCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer cache.Close()

	// ClickHouse is optional: the audit sink only feeds analytics
	var audit *storage.ExecutionAuditSink
	if cfg.Database.ClickHouse.Host != "" {
		audit, err = storage.NewExecutionAuditSink(&cfg.Database.ClickHouse)
		if err != nil {
			logger.WithError(err).Warn("Execution audit sink disabled: ClickHouse unavailable")
			audit = nil
		} else {
			defer audit.Close()
			if err := audit.EnsureSchema(context.Background()); err != nil {
				logger.WithError(err).Warn("Execution audit sink disabled: schema setup failed")
				audit = nil
			}
		}
	}

	logger.Info("Database connections established")

	// Initialize repositories
	accountRepo := storage.NewAccountRepository(postgres)
	jobRepo := storage.NewJobRepository(postgres)
	executionRepo := storage.NewExecutionRepository(postgres)
	exclusionRepo := storage.NewExclusionRepository(postgres)
	runRepo := storage.NewRunRepository(postgres)

	// Initialize external clients
	scraperClient := scraper.NewClient(&cfg.Scraper)
	directoryClient := directory.NewClient(&cfg.Directory)

	// runCtx bounds background run execution; cancelled on shutdown
	runCtx, stopRuns := context.WithCancel(context.Background())
	defer stopRuns()

	deps := engine.Deps{
		Accounts:   accountRepo,
		Jobs:       jobRepo,
		Executions: executionRepo,
		Exclusions: exclusionRepo,
		Runs:       runRepo,
		Scraper:    scraperClient,
		Directory:  directoryClient,
		Cache:      cache,
		Logger:     logger,
	}
	if audit != nil {
		deps.Audit = audit
	}
	eng := engine.New(runCtx, cfg.Pipeline, deps)

	// Orphaned runs from a dead instance must be finalized before any new
	// cycle can start
	if err := eng.RecoverOrphanedRuns(context.Background()); err != nil {
		logger.WithError(err).Fatal("Failed to recover orphaned runs")
	}

	// Start the periodic trigger
	schedCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()
	if cfg.Scheduler.Enabled {
		sched := scheduler.New(cfg.Scheduler.Interval, eng, logger)
		go sched.Run(schedCtx)
	}

	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}

	server := api.NewServer(serverConfig, eng, postgres, logger)

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	stopScheduler()
	stopRuns()
	eng.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shut down")
	}

	logger.Info("Server stopped")
}
