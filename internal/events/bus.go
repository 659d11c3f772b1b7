// Package events is an in-process publish/subscribe bus for state changes that
// the API streams to browsers.
package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Publish delivers ev to every subscriber of its concrete type. Unknown types
// are ignored.
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case CastStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case EncoderStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case TickerModeChangedEvent:
		event.Publish(b.dispatcher, e)
	case ViewerEvent:
		event.Publish(b.dispatcher, e)
	case EncoderMetricsEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler, a func taking one of the event types. It
// returns the unsubscribe function, a no-op for unsupported handler types.
//
//	unsub := bus.Subscribe(func(e EncoderStateChangedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(CastStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(EncoderStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(TickerModeChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ViewerEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(EncoderMetricsEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
