package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversInOrder(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe(10)

	b.Publish(&Event{Type: EventCycleStarted, RunID: "r1"})
	b.Publish(&Event{Type: EventPeerJoined, RunID: "r1", Peer: "head2"})
	b.Publish(&Event{Type: EventCycleCompleted, RunID: "r1"})
	b.Close()

	var got []EventType
	for e := range sub {
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.Timestamp.IsZero())
		got = append(got, e.Type)
	}
	assert.Equal(t, []EventType{EventCycleStarted, EventPeerJoined, EventCycleCompleted}, got)
}

func TestPublishFansOut(t *testing.T) {
	b := NewBroker()
	s1 := b.Subscribe(1)
	s2 := b.Subscribe(1)
	require.Equal(t, 2, b.SubscriberCount())

	e := &Event{Type: EventPolicyApplied}
	b.Publish(e)

	assert.Same(t, e, <-s1)
	assert.Same(t, e, <-s2)
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe(1)

	b.Publish(&Event{Type: EventPeerSkipped, Peer: "head2"})
	b.Publish(&Event{Type: EventPeerSkipped, Peer: "head3"})

	assert.Equal(t, uint64(1), b.Dropped())
	assert.Equal(t, "head2", (<-sub).Peer)
}

func TestUnsubscribe(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe(0)
	b.Unsubscribe(sub)
	b.Unsubscribe(sub)

	_, open := <-sub
	assert.False(t, open)
	assert.Equal(t, 0, b.SubscriberCount())

	// Publishing with no subscribers is a no-op
	b.Publish(&Event{Type: EventCycleStarted})
}

func TestSubscribeAfterClose(t *testing.T) {
	b := NewBroker()
	b.Close()

	sub := b.Subscribe(0)
	_, open := <-sub
	assert.False(t, open)
}

func TestNilBrokerPublish(t *testing.T) {
	var b *Broker
	assert.NotPanics(t, func() {
		b.Publish(&Event{Type: EventCycleFailed})
	})
}
