// Package events is the in-process event bus shared by the capture runner
// and its observers.
package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers.
// Usage: bus.Publish(FrameEvent{...})
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case PoolEvent:
		event.Publish(b.dispatcher, e)
	case StreamStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case FrameEvent:
		event.Publish(b.dispatcher, e)
	case SessionErrorEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler for the event type named by its parameter
// and returns an unsubscribe function. Unknown handler types get a no-op.
// Usage: unsub := bus.Subscribe(func(e FrameEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(PoolEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FrameEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SessionErrorEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

// SubscribeToChannel forwards events of type T to ch. Sends never block;
// events are dropped while ch is full.
func SubscribeToChannel[T Event](b *Bus, ch chan<- any) func() {
	return event.Subscribe(b.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}
