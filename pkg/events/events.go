package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventCycleStarted   EventType = "cycle.started"
	EventCycleCompleted EventType = "cycle.completed"
	EventCycleFailed    EventType = "cycle.failed"
	EventPluginEnabled  EventType = "plugin.enabled"
	EventPeerSkipped    EventType = "peer.skipped"
	EventPeerJoined     EventType = "peer.joined"
	EventJoinFailed     EventType = "peer.join_failed"
	EventPasswordReset  EventType = "password.reset"
	EventPolicyApplied  EventType = "policy.applied"
	EventPolicyFailed   EventType = "policy.failed"
)

// DefaultBuffer is the per-subscriber channel capacity
const DefaultBuffer = 64

// Event is one observable step of a convergence cycle
type Event struct {
	ID        string
	Type      EventType
	RunID     string
	Peer      string
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker fans events out to subscribers. Publish never blocks: a
// subscriber whose buffer is full misses the event.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]struct{}
	dropped     uint64
	closed      bool
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]struct{}),
	}
}

// Subscribe creates a new subscription with the given buffer size
func (b *Broker) Subscribe(buffer int) Subscriber {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	sub := make(Subscriber, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub)
		return sub
	}
	b.subscribers[sub] = struct{}{}
	return sub
}

// Unsubscribe removes a subscription and closes its channel
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish stamps the event and delivers it to every subscriber
func (b *Broker) Publish(event *Event) {
	if b == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			b.dropped++
		}
	}
}

// Close unsubscribes everyone; later subscriptions are returned closed
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subscribers {
		close(sub)
	}
	b.subscribers = make(map[Subscriber]struct{})
	b.closed = true
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped returns how many deliveries were skipped on full buffers
func (b *Broker) Dropped() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}
