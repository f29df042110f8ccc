package engine

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// EventKind identifies one lifecycle notification emitted by the engine.
type EventKind string

const (
	EventAccountAdded   EventKind = "accountAdded"
	EventAccountRemoved EventKind = "accountRemoved"
	EventAccountUpdated EventKind = "accountUpdated"
	EventSyncStarted    EventKind = "syncStarted"
	EventSyncCompleted  EventKind = "syncCompleted"
	EventSyncError      EventKind = "syncError"
)

// Event is one in-process lifecycle notification.
type Event struct {
	Kind      EventKind      `json:"kind"`
	AccountID string         `json:"account_id,omitempty"`
	Counts    map[string]int `json:"counts,omitempty"`
	Message   string         `json:"message,omitempty"`
	Time      time.Time      `json:"time"`
}

// Handler receives events synchronously on the publisher's goroutine.
type Handler func(Event)

type subscription struct {
	id      int
	handler Handler
}

// Bus is a typed in-process publish/subscribe hub. Delivery is
// synchronous, in registration order, and best-effort: a panicking
// handler is isolated and never aborts the publisher.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[EventKind][]subscription
}

func NewBus() *Bus {
	return &Bus{subs: make(map[EventKind][]subscription)}
}

// On registers a handler for one event kind and returns its
// unsubscribe function.
func (b *Bus) On(kind EventKind, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[kind] = append(b.subs[kind], subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.subs[kind]
		for i, sub := range subs {
			if sub.id == id {
				b.subs[kind] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers the event to every handler registered for its kind.
func (b *Bus) Publish(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}

	b.mu.RLock()
	subs := make([]subscription, len(b.subs[event.Kind]))
	copy(subs, b.subs[event.Kind])
	b.mu.RUnlock()

	for _, sub := range subs {
		dispatch(sub.handler, event)
	}
}

func dispatch(handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("event_kind", string(event.Kind)).
				Any("panic", r).
				Msg("event handler panicked")
		}
	}()

	handler(event)
}
