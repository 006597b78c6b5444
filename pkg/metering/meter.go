package metering

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DefaultBaseKey prefixes every counter key.
const DefaultBaseKey = "apikeys:usage"

// retention keeps a month's counter readable through the following month.
const retention = 62 * 24 * time.Hour

// Meter counts requests per key per calendar month in Redis.
//
// Counters live under <baseKey>:<id>:<YYYYMM> and are created on first use.
type Meter struct {
	client  *redis.Client
	baseKey string
	now     func() time.Time
}

// NewMeter connects to redisURL and verifies the connection.
func NewMeter(redisURL string) (*Meter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewMeterWithClient(client), nil
}

// NewMeterWithClient wraps an existing client.
func NewMeterWithClient(client *redis.Client) *Meter {
	return &Meter{
		client:  client,
		baseKey: DefaultBaseKey,
		now:     time.Now,
	}
}

// SetClock replaces the time source used to pick the current month.
func (m *Meter) SetClock(now func() time.Time) {
	m.now = now
}

// Period returns the month bucket for t, e.g. "202610".
func Period(t time.Time) string {
	return t.UTC().Format("200601")
}

// CurrentPeriod returns the month bucket counters are written to now.
func (m *Meter) CurrentPeriod() string {
	return Period(m.now())
}

func (m *Meter) key(id, period string) string {
	return fmt.Sprintf("%s:%s:%s", m.baseKey, id, period)
}

// Record adds count requests to id for the current month and returns the
// new monthly total.
func (m *Meter) Record(ctx context.Context, id string, count int64) (int64, error) {
	if count <= 0 {
		return 0, fmt.Errorf("count must be positive, got %d", count)
	}

	key := m.key(id, m.CurrentPeriod())
	total, err := m.client.IncrBy(ctx, key, count).Result()
	if err != nil {
		return 0, fmt.Errorf("record usage for %s: %w", id, err)
	}

	// First write of the month
	if total == count {
		if err := m.client.Expire(ctx, key, retention).Err(); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to set usage counter expiry")
		}
	}

	return total, nil
}

// Current returns this month's totals for ids. Ids without a counter map
// to zero.
func (m *Meter) Current(ctx context.Context, ids []string) (map[string]int64, error) {
	totals := make(map[string]int64, len(ids))
	if len(ids) == 0 {
		return totals, nil
	}

	period := m.CurrentPeriod()
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = m.key(id, period)
	}

	values, err := m.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read usage counters: %w", err)
	}

	for i, v := range values {
		var n int64
		if s, ok := v.(string); ok {
			if _, err := fmt.Sscan(s, &n); err != nil {
				log.Warn().Str("key", keys[i]).Str("value", s).Msg("Ignoring malformed usage counter")
				n = 0
			}
		}
		totals[ids[i]] = n
	}

	return totals, nil
}

// Forget drops the current month's counter for id.
func (m *Meter) Forget(ctx context.Context, id string) error {
	return m.client.Del(ctx, m.key(id, m.CurrentPeriod())).Err()
}

// Close closes the Redis client.
func (m *Meter) Close() error {
	return m.client.Close()
}
