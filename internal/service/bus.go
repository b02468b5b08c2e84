package service

import (
	"slices"
	"sync"

	"github.com/joeblew999/plat-tour/internal/metrics"
)

// Change event resources and actions.
const (
	ResourceSessions    = "sessions"
	ResourcePreferences = "preferences"

	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionClosed  = "closed"
)

// Event is a lifecycle change of a map session or stored preferences.
type Event struct {
	Resource string
	Action   string
	ID       string
}

// EventBus fans change events out to subscribers. Publishing never blocks:
// a full subscriber misses the event.
type EventBus struct {
	mu   sync.RWMutex
	subs map[chan Event][]string
}

func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[chan Event][]string)}
}

func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch, resources := range b.subs {
		if len(resources) > 0 && !slices.Contains(resources, e.Resource) {
			continue
		}
		select {
		case ch <- e:
		default:
			metrics.BusEventsDropped.WithLabelValues(e.Resource).Inc()
		}
	}
}

// Subscribe returns a buffered channel of events for the given resources,
// or for every resource when none are given.
func (b *EventBus) Subscribe(resources ...string) chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs[ch] = resources
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel. Unknown
// channels are ignored.
func (b *EventBus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}
