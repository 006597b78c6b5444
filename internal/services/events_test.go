package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventHub_FanOut(t *testing.T) {
	hub := NewEventHub(4)
	a, cancelA := hub.Subscribe()
	defer cancelA()
	b, cancelB := hub.Subscribe()
	defer cancelB()

	hub.Publish(Event{Type: EventDeleted, ID: "x"})

	assert.Equal(t, "x", (<-a).ID)
	assert.Equal(t, "x", (<-b).ID)
}

func TestEventHub_DropsForSlowSubscriber(t *testing.T) {
	hub := NewEventHub(1)
	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Publish(Event{Type: EventDeleted, ID: "first"})
	hub.Publish(Event{Type: EventDeleted, ID: "second"})

	assert.Equal(t, "first", (<-ch).ID)
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %q", ev.ID)
	default:
	}
}

func TestEventHub_CancelClosesAndUnregisters(t *testing.T) {
	hub := NewEventHub(0)
	ch, cancel := hub.Subscribe()
	require.Equal(t, 1, hub.Subscribers())

	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, hub.Subscribers())

	hub.Publish(Event{Type: EventDeleted, ID: "x"})
}
