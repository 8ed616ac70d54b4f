package events

import (
	"context"

	"github.com/crabitat/crabitat/internal/pubsub"
)

// Bus fans console events out to all connected subscribers. Publishing
// never blocks: a subscriber that stops draining loses frames, and the
// per-subscription sequence numbers let the session layer detect the
// gap and recover with a fresh snapshot.
type Bus struct {
	broker *pubsub.Broker[Event]
}

// NewBus creates an event bus with the default subscriber buffer.
func NewBus() *Bus {
	return &Bus{broker: pubsub.NewBroker[Event]()}
}

// Publish delivers an event to every subscriber.
func (b *Bus) Publish(e Event) {
	b.broker.Publish(pubsub.UpdatedEvent, e)
}

// Subscribe returns a channel of events. The channel closes when ctx
// is cancelled or the bus shuts down.
func (b *Bus) Subscribe(ctx context.Context) <-chan pubsub.Event[Event] {
	return b.broker.Subscribe(ctx)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	return b.broker.SubscriberCount()
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.broker.Close()
}
