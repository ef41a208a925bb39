package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/skalkoto/icaas/internal/shared/config"
	"github.com/skalkoto/icaas/internal/shared/logging"
	"github.com/skalkoto/icaas/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.LoadWorkerConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Create logger
	logger := logging.NewLogger("worker", cfg.LogLevel, cfg.Environment)

	// Create worker service
	svc, err := worker.NewService(cfg, logger)
	if err != nil {
		logger.Error("Failed to create worker service", "error", err)
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
	logger.Info("Starting worker service", "environment", cfg.Environment)

	if err := svc.Start(ctx); err != nil {
		logger.Error("Service failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Worker service stopped")
}
