package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/akagifreeez/apikeys/internal/bootstrap"
	"github.com/akagifreeez/apikeys/internal/config"
	"github.com/akagifreeez/apikeys/internal/workers"
	"github.com/akagifreeez/apikeys/pkg/metering"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	bootstrap.SetupLogger(cfg)

	if cfg.StoreDriver == config.DriverMemory {
		log.Fatal().Msg("Workers need a durable store; set STORE_DRIVER to sqlite or postgres")
	}

	log.Info().Str("environment", cfg.Environment).Msg("Starting API key workers")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, closeStore, err := bootstrap.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open key store")
	}
	defer closeStore()

	meter, err := metering.NewMeter(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to usage metering")
	}
	defer meter.Close()

	// Create workers
	usageSync := workers.NewUsageSync(st, meter, bootstrap.NewQuotaAlerts(cfg), cfg.UsageSyncInterval)

	// Start workers in goroutines
	go usageSync.Start(ctx)

	log.Info().Msg("All workers started")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutdown signal received, stopping workers...")
	cancel()

	log.Info().Msg("Workers stopped")
}
