package driver

import (
	"sync"
	"time"

	"github.com/geoflow/geoflow/core/domain"
)

// EventType names a driver state change
type EventType string

const (
	EventSessionCreated   EventType = "session_created"
	EventStepUpdated      EventType = "step_updated"
	EventWorkflowStarted  EventType = "workflow_started"
	EventSessionCompleted EventType = "session_completed"
	EventLayerAdded       EventType = "layer_added"
)

// Event is published after every state change. Payloads are copies.
type Event struct {
	Type      EventType                  `json:"type"`
	SessionID string                     `json:"session_id"`
	Session   *domain.QuerySession       `json:"session,omitempty"`
	Step      *domain.WorkflowStep       `json:"step,omitempty"`
	Layer     *domain.MapLayerDescriptor `json:"layer,omitempty"`
	At        time.Time                  `json:"at"`
}

const subscriberBuffer = 64

// Broker fans events out to subscribers. A subscriber that falls behind
// loses events instead of stalling the driver loop.
type Broker struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	next   int
	closed bool
}

// NewBroker creates a broker with no subscribers
func NewBroker() *Broker {
	return &Broker{subs: make(map[int]chan Event)}
}

// Subscribe returns an event channel and a function that cancels the subscription
func (b *Broker) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.next
	b.next++
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// Publish delivers ev to every subscriber with room in its buffer.
// It returns the number of subscribers that dropped the event.
func (b *Broker) Publish(ev Event) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	dropped := 0
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			dropped++
		}
	}
	return dropped
}

// Close ends every subscription
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
