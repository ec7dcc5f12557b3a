package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/observatory-sec/observatory/internal/config"
	"github.com/observatory-sec/observatory/internal/orchestrator"
)

func main() {
	log.Printf("Observatory starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Configuration loaded")
	log.Printf("  Store driver: %s", cfg.StoreDriver)
	log.Printf("  NATS URL: %s", cfg.NatsURL)

	orch := orchestrator.NewOrchestrator(cfg)

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Listen for shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := orch.Start(ctx); err != nil {
		log.Fatalf("Failed to start orchestrator: %v", err)
	}

	// Start health check server
	healthServer := orch.HealthServer()
	go func() {
		log.Printf("Health check listening on :%s", cfg.HealthPort)
		if err := healthServer.Start(":" + cfg.HealthPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Health check server failed: %v", err)
		}
	}()

	// Block until shutdown signal. The assembled service is driven by
	// the API layer; nothing to poll here.
	<-sigChan
	log.Printf("Shutdown signal received...")

	cancel()

	if err := healthServer.Shutdown(context.Background()); err != nil {
		log.Printf("Error stopping health server: %v", err)
	}
	if err := orch.Stop(); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Printf("Observatory stopped successfully")
}
