package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/skalkoto/icaas/internal/api"
	"github.com/skalkoto/icaas/internal/database"
	"github.com/skalkoto/icaas/internal/identity"
	"github.com/skalkoto/icaas/internal/shared/config"
	"github.com/skalkoto/icaas/internal/shared/logging"
	natsclient "github.com/skalkoto/icaas/internal/shared/nats"
)

func main() {
	// Load configuration
	cfg, err := config.LoadAPIConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Create logger
	logger := logging.NewLogger("api", cfg.LogLevel, cfg.Environment)

	// Connect to database
	db, err := database.NewDB(cfg.DatabaseURL)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to NATS for task submission
	nc, err := natsclient.NewClient(cfg.NATS, "api")
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer nc.Close()

	// Create API service
	svc, err := api.NewService(&api.Config{
		Port:     cfg.Port,
		Endpoint: cfg.Endpoint,
		Debug:    cfg.Debug,
	}, db, identity.NewClient(cfg.AuthURL), nc, logger)
	if err != nil {
		logger.Error("Failed to create API service", "error", err)
		os.Exit(1)
	}

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Received shutdown signal")
		cancel()
	}()

	// Start the service
	logger.Info("Starting API service",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"endpoint", cfg.Endpoint,
	)

	if err := svc.Start(ctx); err != nil {
		logger.Error("Service failed", "error", err)
		os.Exit(1)
	}

	logger.Info("API service stopped")
}
