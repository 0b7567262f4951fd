package crud

import (
	"context"
)

// Action names a completed write operation.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// Event describes a completed write for interested observers.
type Event struct {
	Action     Action
	Collection string
	ID         string
	Actor      string
}

// Notifier receives entity change events. It is injected at service
// construction with an explicit lifecycle owned by the hosting process;
// there is no package-level singleton.
type Notifier interface {
	Publish(ctx context.Context, event Event)
}

// NoopNotifier discards all events.
type NoopNotifier struct{}

func (NoopNotifier) Publish(context.Context, Event) {}

// ChannelNotifier delivers events over a buffered channel. Publishing never
// blocks a CRUD call: when the buffer is full the event is dropped.
type ChannelNotifier struct {
	ch chan Event
}

// NewChannelNotifier creates a ChannelNotifier with the given buffer size.
func NewChannelNotifier(buffer int) *ChannelNotifier {
	if buffer <= 0 {
		buffer = 16
	}
	return &ChannelNotifier{ch: make(chan Event, buffer)}
}

// Publish sends the event if buffer space is available.
func (n *ChannelNotifier) Publish(_ context.Context, event Event) {
	select {
	case n.ch <- event:
	default:
	}
}

// Events exposes the receive side of the channel.
func (n *ChannelNotifier) Events() <-chan Event {
	return n.ch
}

// Close closes the channel. The owner must stop publishing first.
func (n *ChannelNotifier) Close() {
	close(n.ch)
}
