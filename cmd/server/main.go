package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"crat/backend/internal/api"
	"crat/backend/internal/blockchain/evm"
	"crat/backend/internal/config"
	"crat/backend/internal/database"
	"crat/backend/internal/pricefeed"
	"crat/backend/internal/service"
	"crat/backend/internal/worker"
)

func main() {
	// Initialize logger
	logger, err := initLogger()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting Crowdsale Backend Service")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Configuration loaded",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("db_host", cfg.Database.Host),
		zap.Int("num_tokens", len(cfg.Crowdsale.Tokens)),
		zap.Int("num_stages", len(cfg.Crowdsale.Stages)))

	// Connect to database
	db, err := database.Connect(database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("Database connected successfully")

	// Run migrations
	migrationPath := "internal/database/migrations/001_schema.sql"
	if err := database.RunMigrations(db, migrationPath); err != nil {
		logger.Warn("Failed to run migrations (may already be applied)", zap.Error(err))
	} else {
		logger.Info("Database migrations applied successfully")
	}

	// Connect to the EVM node
	chainClient, err := evm.NewClient(&cfg.Chain, logger)
	if err != nil {
		logger.Fatal("Failed to connect to EVM node", zap.Error(err))
	}
	defer chainClient.Close()

	// Initialize services
	quoteService, err := service.NewQuoteService(chainClient, db, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize quote service", zap.Error(err))
	}
	stageService := service.NewStageService(chainClient, cfg, logger)
	tokenService := service.NewTokenService(db, cfg, logger)
	whitelistService := service.NewWhitelistService(db, logger)

	logger.Info("Services initialized")

	// Initialize API handlers
	apiHandler := api.NewHandler(stageService, tokenService, whitelistService, quoteService, logger)
	router := api.SetupRouter(apiHandler, logger)

	// Create HTTP server
	serverAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start HTTP server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server",
			zap.String("addr", serverAddr))
		serverErrors <- httpServer.ListenAndServe()
	}()

	// Initialize the periodic rate updater
	feedClient := pricefeed.NewClient(&cfg.PriceFeed, logger)
	rateUpdater, err := worker.NewRateUpdater(feedClient, db, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize rate updater", zap.Error(err))
	}

	rateUpdater.Start()

	logger.Info("Service initialized successfully",
		zap.String("status", "ready"),
		zap.Int("port", cfg.Server.Port))

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Wait for interrupt signal or server error
	select {
	case err := <-serverErrors:
		logger.Fatal("HTTP server error", zap.Error(err))
	case sig := <-quit:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	}

	logger.Info("Shutting down service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Stop the rate updater first so no write lands mid-shutdown
	if err := rateUpdater.Shutdown(10 * time.Second); err != nil {
		logger.Error("Rate updater shutdown error", zap.Error(err))
	}

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
		httpServer.Close()
	} else {
		logger.Info("HTTP server stopped gracefully")
	}

	logger.Info("Service stopped successfully")
}

func initLogger() (*zap.Logger, error) {
	env := os.Getenv("ENV")
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
