package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/akagifreeez/apikeys/internal/masking"
	"github.com/akagifreeez/apikeys/internal/metrics"
	"github.com/akagifreeez/apikeys/internal/models"
	"github.com/akagifreeez/apikeys/internal/store"
	"github.com/akagifreeez/apikeys/pkg/keygen"
)

// DefaultKeyName is the name given to the key created by SeedDefault.
const DefaultKeyName = "default"

// KeyService orchestrates the API key lifecycle. It validates input before
// touching the store and applies the masking policy to everything it returns,
// except the create response and RevealKey.
type KeyService struct {
	store  store.KeyStore
	gen    keygen.Generator
	events *EventHub
	usage  UsageForgetter
	now    func() time.Time
	newID  func() string
}

// Option customizes a KeyService.
type Option func(*KeyService)

// WithGenerator replaces the secret generator.
func WithGenerator(gen keygen.Generator) Option {
	return func(s *KeyService) { s.gen = gen }
}

// WithClock replaces the time source used for creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *KeyService) { s.now = now }
}

// WithIDFunc replaces the id source.
func WithIDFunc(newID func() string) Option {
	return func(s *KeyService) { s.newID = newID }
}

// WithEvents publishes lifecycle events to hub.
func WithEvents(hub *EventHub) Option {
	return func(s *KeyService) { s.events = hub }
}

// UsageForgetter drops the usage counters of a deleted key.
type UsageForgetter interface {
	Forget(ctx context.Context, id string) error
}

// WithUsageForgetter clears a key's usage counters when it is deleted.
func WithUsageForgetter(usage UsageForgetter) Option {
	return func(s *KeyService) { s.usage = usage }
}

// NewKeyService creates a KeyService over st.
func NewKeyService(st store.KeyStore, opts ...Option) *KeyService {
	s := &KeyService{
		store: st,
		gen:   keygen.Random{},
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateKey issues a new key and returns it unmasked. This is the only time
// the secret is returned without an explicit reveal.
func (s *KeyService) CreateKey(ctx context.Context, name string, limit *int64) (models.KeyView, error) {
	name, err := validateName(name)
	if err == nil {
		err = validateOptionalLimit(limit)
	}
	if err != nil {
		s.record("create", err)
		return models.KeyView{}, err
	}

	rec := models.KeyRecord{
		ID:        s.newID(),
		Name:      name,
		Secret:    s.gen.Generate(),
		// Durable stores keep microseconds.
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
		Usage:     0,
		Limit:     copyLimit(limit),
	}

	if err := s.store.Insert(ctx, rec); err != nil {
		s.record("create", err)
		if errors.Is(err, models.ErrDuplicateID) {
			log.Error().Err(err).Str("id", rec.ID).Msg("Generated key id collided with an existing key")
		}
		return models.KeyView{}, fmt.Errorf("create key: %w", err)
	}

	s.record("create", nil)
	log.Info().Str("id", rec.ID).Str("name", rec.Name).Msg("API key created")
	s.publish(EventCreated, rec)

	return masking.Reveal(rec), nil
}

// ListKeys returns every key masked, in creation order.
func (s *KeyService) ListKeys(ctx context.Context) ([]models.KeyView, error) {
	recs, err := s.store.List(ctx)
	s.record("list", err)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return masking.MaskAll(recs), nil
}

// RevealKey returns a single key with its secret. It is the only way to
// re-obtain a secret after creation.
func (s *KeyService) RevealKey(ctx context.Context, id string) (models.KeyView, error) {
	rec, err := s.store.Get(ctx, id)
	s.record("reveal", err)
	if err != nil {
		return models.KeyView{}, fmt.Errorf("reveal key: %w", err)
	}

	log.Info().Str("id", rec.ID).Msg("API key revealed")
	return masking.Reveal(rec), nil
}

// UpdateKey replaces the name and limit of a key. A nil limit removes the
// quota. The result is masked.
func (s *KeyService) UpdateKey(ctx context.Context, id, name string, limit *int64) (models.KeyView, error) {
	name, err := validateName(name)
	if err == nil {
		err = validateOptionalLimit(limit)
	}
	if err != nil {
		s.record("update", err)
		return models.KeyView{}, err
	}

	rec, err := s.store.Update(ctx, id, models.KeyUpdate{
		Name:     &name,
		Limit:    copyLimit(limit),
		SetLimit: true,
	})
	s.record("update", err)
	if err != nil {
		return models.KeyView{}, fmt.Errorf("update key: %w", err)
	}

	log.Info().Str("id", rec.ID).Str("name", rec.Name).Msg("API key updated")
	s.publish(EventUpdated, rec)

	return masking.Mask(rec), nil
}

// DeleteKey revokes a key permanently.
func (s *KeyService) DeleteKey(ctx context.Context, id string) error {
	err := s.store.Delete(ctx, id)
	s.record("delete", err)
	if err != nil {
		return fmt.Errorf("delete key: %w", err)
	}

	log.Info().Str("id", id).Msg("API key deleted")
	if s.usage != nil {
		// Counters expire on their own if this fails.
		if err := s.usage.Forget(ctx, id); err != nil {
			log.Warn().Err(err).Str("id", id).Msg("Failed to clear usage counter of deleted key")
		}
	}
	if s.events != nil {
		s.events.Publish(Event{Type: EventDeleted, ID: id})
	}
	return nil
}

// SeedDefault creates a key named "default" when the store is empty and
// reports whether it did.
func (s *KeyService) SeedDefault(ctx context.Context) (bool, error) {
	recs, err := s.store.List(ctx)
	if err != nil {
		return false, fmt.Errorf("seed default key: %w", err)
	}
	if len(recs) > 0 {
		return false, nil
	}

	view, err := s.CreateKey(ctx, DefaultKeyName, nil)
	if err != nil {
		return false, fmt.Errorf("seed default key: %w", err)
	}
	log.Info().Str("id", view.ID).Msg("Seeded default API key")
	return true, nil
}

func (s *KeyService) publish(typ EventType, rec models.KeyRecord) {
	if s.events == nil {
		return
	}
	view := masking.Mask(rec)
	s.events.Publish(Event{Type: typ, ID: rec.ID, Key: &view})
}

func (s *KeyService) record(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = models.ErrorKind(err)
	}
	metrics.RecordKeyOperation(op, outcome)
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", models.ErrInvalidArgument)
	}
	return name, nil
}

func validateOptionalLimit(limit *int64) error {
	if limit == nil {
		return nil
	}
	return store.ValidateLimit(*limit)
}

func copyLimit(limit *int64) *int64 {
	if limit == nil {
		return nil
	}
	v := *limit
	return &v
}
