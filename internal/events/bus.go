// Package events provides the typed publish/subscribe channel used to fan
// out connection and consistency notifications to observers.
package events

import (
	"sync"
	"time"

	"github.com/MainListActivity/cuckoox-google-sub012/internal/logging"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/models"
)

// Event is the closed set of broadcast message types. One concrete type per
// event keeps handlers exhaustively matchable.
type Event interface {
	EventType() string
}

// ConnectionStateChanged is published on every connection status transition.
type ConnectionStateChanged struct {
	Status       models.ConnectionStatus `json:"status"`
	HealthStatus models.HealthStatus     `json:"health_status"`
	Attempts     int                     `json:"attempts"`
	Error        string                  `json:"error,omitempty"`
}

func (ConnectionStateChanged) EventType() string { return "connection.state_changed" }

// ConflictDetected is published when local and remote replicas diverge.
type ConflictDetected struct {
	Conflict *models.DataConflict `json:"conflict"`
}

func (ConflictDetected) EventType() string { return "consistency.conflict_detected" }

// ConflictResolved is published after a conflict resolution strategy ran.
type ConflictResolved struct {
	Conflict *models.DataConflict `json:"conflict"`
}

func (ConflictResolved) EventType() string { return "consistency.conflict_resolved" }

// subscriberBuffer bounds how far a slow subscriber may lag before events
// are dropped for it.
const subscriberBuffer = 64

// Bus delivers each published event to every current subscriber.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a new subscriber and returns its channel plus an
// unsubscribe function. The channel is closed on unsubscribe.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Publish delivers the event to all subscribers without blocking the
// publisher. Events are dropped per-subscriber when its buffer is full.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			logging.Warn("Event dropped for slow subscriber",
				map[string]interface{}{"event_type": event.EventType()})
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Envelope is the wire form of a broadcast event handed to external
// observers (websocket clients).
type Envelope struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

// NewEnvelope wraps an event for external delivery.
func NewEnvelope(event Event) Envelope {
	return Envelope{
		Type:      event.EventType(),
		Data:      event,
		Timestamp: time.Now().Unix(),
	}
}
