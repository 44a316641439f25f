// Package event defines the canonical event envelope and event-type registry
// used by the booking write path.
//
// Events are immutable facts emitted by accepted decisions. The registry
// enforces envelope completeness and payload validity before persistence
// assigns sequence numbers. A stable event contract is the foundation for
// replay, propagation, and projection correctness.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	// ErrStreamIDRequired indicates a missing stream id.
	ErrStreamIDRequired = errors.New("stream id is required")
	// ErrTypeRequired indicates a missing event type.
	ErrTypeRequired = errors.New("event type is required")
	// ErrTypeUnknown indicates an unregistered event type.
	ErrTypeUnknown = errors.New("event type is not registered")
	// ErrTimestampRequired indicates a zero timestamp.
	ErrTimestampRequired = errors.New("event timestamp is required")
	// ErrEntityTypeRequired indicates a missing entity type.
	ErrEntityTypeRequired = errors.New("entity type is required")
	// ErrEntityIDRequired indicates a missing entity id.
	ErrEntityIDRequired = errors.New("entity id is required")
	// ErrPayloadInvalid indicates malformed payload JSON.
	ErrPayloadInvalid = errors.New("payload json must be valid")
)

// Type identifies the event type string.
type Type string

// Slot stream event types.
const (
	TypeSlotParticipantMarkedAvailable   Type = "slot.participant_marked_available"
	TypeSlotParticipantUnmarkedAvailable Type = "slot.participant_unmarked_available"
	TypeSlotBooked                       Type = "slot.participant_booked"
	TypeSlotBookingCanceled              Type = "slot.participant_canceled"
)

// Participant-slot stream event types.
const (
	TypeParticipantSlotMarkedAvailable   Type = "participant_slot.marked_available"
	TypeParticipantSlotUnmarkedAvailable Type = "participant_slot.unmarked_available"
	TypeParticipantSlotBooked            Type = "participant_slot.booked"
	TypeParticipantSlotCanceled          Type = "participant_slot.canceled"
)

// Entity type names used in event addressing.
const (
	EntityTypeSlot            = "slot"
	EntityTypeParticipantSlot = "participant_slot"
)

// Event captures the canonical event envelope. Seq and the integrity fields
// are zero until persistence assigns them.
type Event struct {
	StreamID    string
	Seq         int64
	Type        Type
	Timestamp   time.Time
	RequestID   string
	EntityType  string
	EntityID    string
	PayloadJSON []byte

	// Tamper-evidence fields set on append.
	Hash      string
	PrevHash  string
	ChainHash string
}

// PayloadValidator validates a payload JSON document.
type PayloadValidator func(json.RawMessage) error

// Definition registers metadata for an event type.
type Definition struct {
	Type            Type
	EntityType      string
	ValidatePayload PayloadValidator
}

// Registry stores event definitions and validates events before append.
type Registry struct {
	definitions map[Type]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{definitions: make(map[Type]Definition)}
}

// Register adds a new event type definition to the registry.
func (r *Registry) Register(def Definition) error {
	if r == nil {
		return errors.New("registry is required")
	}
	def.Type = Type(strings.TrimSpace(string(def.Type)))
	if def.Type == "" {
		return ErrTypeRequired
	}
	def.EntityType = strings.TrimSpace(def.EntityType)
	if def.EntityType == "" {
		return ErrEntityTypeRequired
	}
	if r.definitions == nil {
		r.definitions = make(map[Type]Definition)
	}
	if _, exists := r.definitions[def.Type]; exists {
		return fmt.Errorf("event type already registered: %s", def.Type)
	}
	r.definitions[def.Type] = def
	return nil
}

// ValidateForAppend validates and normalizes an event before persistence.
func (r *Registry) ValidateForAppend(evt Event) (Event, error) {
	evt.StreamID = strings.TrimSpace(evt.StreamID)
	if evt.StreamID == "" {
		return Event{}, ErrStreamIDRequired
	}
	evt.Type = Type(strings.TrimSpace(string(evt.Type)))
	if evt.Type == "" {
		return Event{}, ErrTypeRequired
	}
	def, ok := r.definitions[evt.Type]
	if !ok {
		return Event{}, ErrTypeUnknown
	}
	if evt.Timestamp.IsZero() {
		return Event{}, ErrTimestampRequired
	}

	evt.EntityType = strings.TrimSpace(evt.EntityType)
	if evt.EntityType == "" {
		evt.EntityType = def.EntityType
	}
	if evt.EntityType != def.EntityType {
		return Event{}, fmt.Errorf("entity type %q does not match definition %q", evt.EntityType, def.EntityType)
	}
	evt.EntityID = strings.TrimSpace(evt.EntityID)
	if evt.EntityID == "" {
		return Event{}, ErrEntityIDRequired
	}

	if len(evt.PayloadJSON) == 0 {
		evt.PayloadJSON = []byte("{}")
	}
	if !json.Valid(evt.PayloadJSON) {
		return Event{}, ErrPayloadInvalid
	}
	if def.ValidatePayload != nil {
		if err := def.ValidatePayload(json.RawMessage(evt.PayloadJSON)); err != nil {
			return Event{}, fmt.Errorf("payload invalid: %w", err)
		}
	}
	return evt, nil
}

// Definition returns the event definition for a given type.
func (r *Registry) Definition(eventType Type) (Definition, bool) {
	if r == nil {
		return Definition{}, false
	}
	def, ok := r.definitions[Type(strings.TrimSpace(string(eventType)))]
	return def, ok
}

// ListTypes returns a sorted snapshot of registered event types.
func (r *Registry) ListTypes() []Type {
	if r == nil || len(r.definitions) == 0 {
		return nil
	}
	types := make([]Type, 0, len(r.definitions))
	for t := range r.definitions {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
