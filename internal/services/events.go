package services

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/akagifreeez/apikeys/internal/models"
)

// EventType names a lifecycle change.
type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

// Event describes one lifecycle change. Key is always masked and is absent
// for deletions.
type Event struct {
	Type EventType       `json:"type"`
	ID   string          `json:"id"`
	Key  *models.KeyView `json:"key,omitempty"`
}

// EventHub fans lifecycle events out to subscribers. Publishing never blocks;
// a subscriber whose buffer is full misses the event.
type EventHub struct {
	mu     sync.RWMutex
	subs   map[chan Event]struct{}
	buffer int
}

// NewEventHub creates a hub whose subscriber channels hold buffer events.
func NewEventHub(buffer int) *EventHub {
	if buffer <= 0 {
		buffer = 16
	}
	return &EventHub{
		subs:   make(map[chan Event]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a subscriber. The returned cancel func unregisters it
// and closes the channel.
func (h *EventHub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber with room in its buffer.
func (h *EventHub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			log.Warn().Str("type", string(ev.Type)).Str("id", ev.ID).Msg("Dropping event for slow subscriber")
		}
	}
}

// Subscribers returns the number of active subscribers.
func (h *EventHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
