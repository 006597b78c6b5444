// Package bootstrap wires configuration into the shared pieces every binary
// needs: logging, the key store and quota alerts.
package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/akagifreeez/apikeys/internal/config"
	"github.com/akagifreeez/apikeys/internal/services"
	"github.com/akagifreeez/apikeys/internal/store"
	"github.com/akagifreeez/apikeys/internal/store/memory"
	"github.com/akagifreeez/apikeys/internal/store/postgres"
	"github.com/akagifreeez/apikeys/internal/store/sqlite"
	"github.com/akagifreeez/apikeys/pkg/crypto"
	"github.com/akagifreeez/apikeys/pkg/database"
)

// SetupLogger configures the global zerolog logger. Development gets the
// console writer, everything else JSON.
func SetupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.IsProduction() {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// OpenStore opens the configured backend and applies its migrations. The
// returned func releases it.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		log.Warn().Msg("Using in-memory key store; keys are lost on restart")
		return memory.New(), func() {}, nil

	case config.DriverSQLite:
		sealer, err := crypto.NewSealer(cfg.EncryptionKey)
		if err != nil {
			return nil, nil, err
		}
		db, err := sqlite.NewDB(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		version, err := sqlite.RunMigrations(db.Writer)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		log.Info().Str("path", cfg.SQLitePath).Uint("schema_version", version).Msg("SQLite key store ready")
		return sqlite.NewKeyRepo(db, sealer), func() {
			if err := db.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close sqlite")
			}
		}, nil

	case config.DriverPostgres:
		sealer, err := crypto.NewSealer(cfg.EncryptionKey)
		if err != nil {
			return nil, nil, err
		}
		db, err := database.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		log.Info().Msg("Postgres key store ready")
		return postgres.NewKeyRepo(db, sealer), db.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// NewQuotaAlerts builds the alert service, posting to Discord when a webhook
// is configured.
func NewQuotaAlerts(cfg *config.Config) *services.QuotaAlertService {
	if cfg.DiscordWebhookURL == "" {
		log.Info().Msg("DISCORD_WEBHOOK_URL not set, quota alerts will only be logged")
		return services.NewQuotaAlertService(nil)
	}

	notifier, err := services.NewDiscordNotifier(cfg.DiscordWebhookURL)
	if err != nil {
		log.Error().Err(err).Msg("Invalid DISCORD_WEBHOOK_URL, quota alerts will only be logged")
		return services.NewQuotaAlertService(nil)
	}
	return services.NewQuotaAlertService(notifier)
}
