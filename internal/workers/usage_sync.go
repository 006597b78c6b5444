package workers

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/akagifreeez/apikeys/internal/metrics"
	"github.com/akagifreeez/apikeys/internal/models"
	"github.com/akagifreeez/apikeys/internal/store"
)

// UsageSource reports the current period's usage per key.
type UsageSource interface {
	Current(ctx context.Context, ids []string) (map[string]int64, error)
	CurrentPeriod() string
}

// QuotaAlerter is notified of every limited record after a sync.
type QuotaAlerter interface {
	Check(ctx context.Context, rec models.KeyRecord, period string) (int, error)
	Prune(keep string)
}

// UsageSync copies monthly usage counters into key records.
type UsageSync struct {
	store    store.Store
	source   UsageSource
	alerts   QuotaAlerter
	interval time.Duration
}

// NewUsageSync creates a new UsageSync worker. alerts may be nil.
func NewUsageSync(st store.Store, source UsageSource, alerts QuotaAlerter, interval time.Duration) *UsageSync {
	return &UsageSync{
		store:    st,
		source:   source,
		alerts:   alerts,
		interval: interval,
	}
}

// Start runs a sync immediately and then on every tick until ctx is done.
func (u *UsageSync) Start(ctx context.Context) {
	log.Info().Dur("interval", u.interval).Msg("Starting Usage Sync worker")

	if err := u.sync(ctx); err != nil {
		log.Error().Err(err).Msg("Initial usage sync failed")
	}

	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Usage Sync worker stopped")
			return
		case <-ticker.C:
			if err := u.sync(ctx); err != nil {
				log.Error().Err(err).Msg("Periodic usage sync failed")
			}
		}
	}
}

func (u *UsageSync) sync(ctx context.Context) (err error) {
	defer func() { metrics.RecordUsageSync(err == nil) }()

	start := time.Now()
	recs, err := u.store.List(ctx)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}

	ids := make([]string, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ID
	}

	period := u.source.CurrentPeriod()
	totals, err := u.source.Current(ctx, ids)
	if err != nil {
		return err
	}

	updated := 0
	for i := range recs {
		rec := &recs[i]
		total := totals[rec.ID]
		if total == rec.Usage {
			continue
		}
		if err := u.store.SetUsage(ctx, rec.ID, total); err != nil {
			// Deleted between List and SetUsage
			if models.ErrorKind(err) == models.KindNotFound {
				continue
			}
			log.Error().Err(err).Str("id", rec.ID).Msg("Failed to update usage")
			continue
		}
		rec.Usage = total
		updated++
	}

	if u.alerts != nil {
		u.alerts.Prune(period)
		for _, rec := range recs {
			if rec.Limit == nil {
				continue
			}
			if _, err := u.alerts.Check(ctx, rec, period); err != nil {
				log.Error().Err(err).Str("id", rec.ID).Msg("Failed to send quota alert")
			}
		}
	}

	log.Info().
		Int("updated", updated).
		Int("total", len(recs)).
		Str("period", period).
		Dur("elapsed", time.Since(start)).
		Msg("Usage sync completed")

	return nil
}

// RunOnce performs a single sync.
func (u *UsageSync) RunOnce(ctx context.Context) error {
	return u.sync(ctx)
}
