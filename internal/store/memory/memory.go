package memory

import (
	"context"
	"sync"

	"github.com/akagifreeez/apikeys/internal/models"
	"github.com/akagifreeez/apikeys/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store is an in-memory key store. It is safe for concurrent use; a single
// RWMutex serializes mutations and lets reads run in parallel.
type Store struct {
	mu    sync.RWMutex
	keys  map[string]models.KeyRecord
	order []string
}

// New creates an empty store.
func New() *Store {
	return &Store{
		keys: make(map[string]models.KeyRecord),
	}
}

func (s *Store) Insert(_ context.Context, rec models.KeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.keys[rec.ID]; exists {
		return store.DuplicateID(rec.ID)
	}

	s.keys[rec.ID] = rec.Clone()
	s.order = append(s.order, rec.ID)
	return nil
}

func (s *Store) Get(_ context.Context, id string) (models.KeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.keys[id]
	if !ok {
		return models.KeyRecord{}, store.NotFound(id)
	}
	return rec.Clone(), nil
}

func (s *Store) List(_ context.Context) ([]models.KeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.KeyRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.keys[id].Clone())
	}
	return out, nil
}

func (s *Store) Update(_ context.Context, id string, upd models.KeyUpdate) (models.KeyRecord, error) {
	upd, err := store.ValidateUpdate(upd)
	if err != nil {
		return models.KeyRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.keys[id]
	if !ok {
		return models.KeyRecord{}, store.NotFound(id)
	}

	if upd.Name != nil {
		rec.Name = *upd.Name
	}
	if upd.SetLimit {
		rec.Limit = upd.Limit
	}

	s.keys[id] = rec
	return rec.Clone(), nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[id]; !ok {
		return store.NotFound(id)
	}

	delete(s.keys, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// SetUsage overwrites the usage counter of a record.
func (s *Store) SetUsage(_ context.Context, id string, usage int64) error {
	if err := store.ValidateUsage(usage); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.keys[id]
	if !ok {
		return store.NotFound(id)
	}
	rec.Usage = usage
	s.keys[id] = rec
	return nil
}
