package command

import (
	"time"

	"github.com/airstriplabs/slotbook/internal/booking/domain/event"
)

// Decision represents the pure outcome of handling a command.
type Decision struct {
	Events     []event.Event
	Rejections []Rejection
}

// Rejection captures a domain-level reason a command was declined.
type Rejection struct {
	Code    string
	Message string
}

// Accept returns a decision that emits the provided events.
func Accept(events ...event.Event) Decision {
	return Decision{Events: append([]event.Event(nil), events...)}
}

// Reject returns a decision that carries the provided rejections.
func Reject(rejections ...Rejection) Decision {
	return Decision{Rejections: append([]Rejection(nil), rejections...)}
}

// NewEvent builds an event.Event by copying the shared envelope fields from a
// command. Callers supply the event type, entity addressing, payload, and
// timestamp. This keeps per-decider boilerplate down and ensures new envelope
// fields are forwarded everywhere at once.
func NewEvent(cmd Command, eventType event.Type, entityType, entityID string, payloadJSON []byte, now time.Time) event.Event {
	return event.Event{
		StreamID:    cmd.StreamID,
		Type:        eventType,
		Timestamp:   now,
		RequestID:   cmd.RequestID,
		EntityType:  entityType,
		EntityID:    entityID,
		PayloadJSON: payloadJSON,
	}
}
