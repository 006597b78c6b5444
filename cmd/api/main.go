package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/akagifreeez/apikeys/internal/bootstrap"
	"github.com/akagifreeez/apikeys/internal/config"
	"github.com/akagifreeez/apikeys/internal/handlers"
	"github.com/akagifreeez/apikeys/internal/services"
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

	log.Info().
		Str("environment", cfg.Environment).
		Str("store", cfg.StoreDriver).
		Msg("Starting API key service")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open the key store and run its migrations
	st, closeStore, err := bootstrap.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open key store")
	}
	defer closeStore()

	// Usage metering is optional; without Redis the internal usage route is off.
	meter, err := metering.NewMeter(cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("Usage metering disabled")
	} else {
		defer meter.Close()
	}

	// Initialize services
	hub := services.NewEventHub(32)
	opts := []services.Option{services.WithEvents(hub)}
	if meter != nil {
		opts = append(opts, services.WithUsageForgetter(meter))
	}
	keyService := services.NewKeyService(st, opts...)

	if cfg.SeedDefaultKey {
		if _, err := keyService.SeedDefault(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to seed default key")
		}
	}

	var usageHandler *handlers.UsageHandler
	if meter != nil {
		usageHandler = handlers.NewUsageHandler(meter, keyService)
		if cfg.InternalToken == "" {
			log.Warn().Msg("INTERNAL_TOKEN not set, usage reporting will reject every request")
		}

		// An in-memory store is invisible to the workers process.
		if cfg.StoreDriver == config.DriverMemory {
			usageSync := workers.NewUsageSync(st, meter, bootstrap.NewQuotaAlerts(cfg), cfg.UsageSyncInterval)
			go usageSync.Start(ctx)
		}
	}

	revealLimiter := handlers.NewRevealLimiter(cfg.RevealRatePerMinute)
	revealLimiter.StartCleanup(ctx, 10*time.Minute)

	router := handlers.NewRouter(handlers.RouterConfig{
		Keys:          keyService,
		Usage:         usageHandler,
		Events:        hub,
		Auth:          handlers.NewAuth(cfg.JWTSecret),
		RevealLimiter: revealLimiter,
		InternalToken: cfg.InternalToken,
	})

	// Start server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("Shutting down server...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
		cancel()
	}()

	log.Info().Str("port", cfg.Port).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("Server error")
	}

	log.Info().Msg("Server stopped")
}
