// Package events carries domain events between modules without direct
// imports between them. Infrastructure only; the event definitions live
// with the modules that publish them.
package events

import (
	"context"
	"time"
)

// Event is implemented by every domain event.
type Event interface {
	// EventName identifies the event type, e.g. "leads.stage_changed".
	EventName() string
	// OccurredAt is the publication instant.
	OccurredAt() time.Time
}

// Bus publishes events to subscribed handlers.
type Bus interface {
	// Publish fans the event out to its handlers without waiting for them.
	Publish(ctx context.Context, event Event)

	// PublishSync runs every handler before returning and reports their
	// combined error.
	PublishSync(ctx context.Context, event Event) error

	// Subscribe registers a handler under an event name as returned by
	// Event.EventName.
	Subscribe(eventName string, handler Handler)
}

// Handler reacts to one event.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a plain function into a Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// BaseEvent supplies the timestamp half of the Event contract; concrete
// events embed it and add EventName.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps a base event with the current time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}
