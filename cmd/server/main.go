// Package main provides the API server entry point for the carbon registry service.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carbon-registry/internal/api"
	"github.com/carbon-registry/internal/config"
	"github.com/carbon-registry/internal/ledger"
	"github.com/carbon-registry/internal/logging"
	"github.com/carbon-registry/internal/service"
	"github.com/carbon-registry/internal/storage"
	"github.com/carbon-registry/internal/types"
	"github.com/carbon-registry/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
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

	if !types.IsValidAddress(cfg.Registry.AdminAddress) {
		logger.WithField("address", cfg.Registry.AdminAddress).Fatal("REGISTRY_ADMIN_ADDRESS is not a valid address")
	}
	adminAddress := types.NormalizeAddress(cfg.Registry.AdminAddress)

	// Initialize database connections
	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to ClickHouse")
	}
	defer clickhouse.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	logger.Info("Database connections established")

	// Initialize repositories
	deviceRepo := storage.NewDeviceRepository(postgres)
	creditRepo := storage.NewCreditRepository(postgres)
	accountRepo := storage.NewAccountRepository(postgres)
	eventRepo := storage.NewEventArchiveRepository(clickhouse)
	cacheService := storage.NewCacheService(redis, cfg.Cache.TTL)

	// Build the ledger with its event sink
	sink := ledger.NewChannelSink(cfg.Registry.EventBufferSize, logger)
	l, err := ledger.New(&ledger.Config{
		AdminAddress: adminAddress,
		Sink:         sink,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create ledger")
	}

	// Initialize services
	registryService := service.NewRegistryService(l, deviceRepo, creditRepo, accountRepo, eventRepo, cacheService, logger)
	marketService := service.NewMarketService(l, creditRepo, accountRepo, cacheService, logger)

	// Rehydrate the ledger from the durable mirror before serving
	rehydrateCtx, cancelRehydrate := context.WithTimeout(context.Background(), 30*time.Second)
	if err := registryService.Rehydrate(rehydrateCtx); err != nil {
		cancelRehydrate()
		logger.WithError(err).Fatal("Failed to rehydrate ledger from storage")
	}
	cancelRehydrate()

	// Start the event archiver
	archiver, err := worker.NewEventArchiver(&worker.EventArchiverConfig{
		Events:        sink.Events(),
		Writer:        eventRepo,
		BatchSize:     cfg.Archive.BatchSize,
		FlushInterval: cfg.Archive.FlushInterval,
		Logger:        logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create event archiver")
	}
	if err := archiver.Start(context.Background()); err != nil {
		logger.WithError(err).Fatal("Failed to start event archiver")
	}

	// Create server configuration
	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		PerCallerRPS:    cfg.RateLimit.PerCallerRPS,
		RateLimitBurst:  cfg.RateLimit.Burst,
	}

	server := api.NewServer(serverConfig, registryService, marketService, logger)

	// Start server in a goroutine. Shutdown makes Start return
	// ErrServerClosed; only an unexpected error may kill the process,
	// otherwise the post-shutdown archive flush would be skipped.
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host":  cfg.Server.Host,
		"port":  cfg.Server.Port,
		"admin": adminAddress,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	// Flush remaining events before closing database connections
	archiver.Stop()

	logger.Info("Server exited")
}
