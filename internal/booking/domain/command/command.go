// Package command defines the command envelope and validation entry points
// for the booking write path.
//
// Commands express caller intent. They are the stable boundary before domain
// deciders so that business rules are evaluated only against normalized,
// validated inputs.
package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrStreamIDRequired indicates a missing stream id.
	ErrStreamIDRequired = errors.New("stream id is required")
	// ErrTypeRequired indicates a missing command type.
	ErrTypeRequired = errors.New("command type is required")
	// ErrTypeUnknown indicates an unregistered command type.
	ErrTypeUnknown = errors.New("command type is not registered")
	// ErrPayloadInvalid indicates malformed payload JSON.
	ErrPayloadInvalid = errors.New("payload json must be valid")
)

// Type identifies the command type string.
type Type string

// Slot stream command types.
const (
	TypeSlotMarkAvailable   Type = "slot.mark_available"
	TypeSlotUnmarkAvailable Type = "slot.unmark_available"
	TypeSlotBook            Type = "slot.book"
	TypeSlotCancelBooking   Type = "slot.cancel_booking"
)

// Participant-slot stream command types.
const (
	TypeParticipantSlotMarkAvailable   Type = "participant_slot.mark_available"
	TypeParticipantSlotUnmarkAvailable Type = "participant_slot.unmark_available"
	TypeParticipantSlotBook            Type = "participant_slot.book"
	TypeParticipantSlotCancel          Type = "participant_slot.cancel"
)

// Command captures the canonical command envelope.
type Command struct {
	StreamID    string
	Type        Type
	RequestID   string
	PayloadJSON []byte
}

// PayloadValidator validates a payload JSON document.
type PayloadValidator func(json.RawMessage) error

// Definition registers metadata for a command type.
type Definition struct {
	Type            Type
	ValidatePayload PayloadValidator
}

// Registry stores command definitions and validates commands.
type Registry struct {
	definitions map[Type]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{definitions: make(map[Type]Definition)}
}

// Register adds a new command type definition to the registry.
func (r *Registry) Register(def Definition) error {
	if r == nil {
		return errors.New("registry is required")
	}
	def.Type = Type(strings.TrimSpace(string(def.Type)))
	if def.Type == "" {
		return ErrTypeRequired
	}
	if r.definitions == nil {
		r.definitions = make(map[Type]Definition)
	}
	if _, exists := r.definitions[def.Type]; exists {
		return fmt.Errorf("command type already registered: %s", def.Type)
	}
	r.definitions[def.Type] = def
	return nil
}

// ValidateForDecision validates and normalizes a command before decision
// handling.
func (r *Registry) ValidateForDecision(cmd Command) (Command, error) {
	cmd.StreamID = strings.TrimSpace(cmd.StreamID)
	if cmd.StreamID == "" {
		return Command{}, ErrStreamIDRequired
	}
	cmd.Type = Type(strings.TrimSpace(string(cmd.Type)))
	if cmd.Type == "" {
		return Command{}, ErrTypeRequired
	}
	def, ok := r.definitions[cmd.Type]
	if !ok {
		return Command{}, ErrTypeUnknown
	}

	if len(cmd.PayloadJSON) == 0 {
		cmd.PayloadJSON = []byte("{}")
	}
	if !json.Valid(cmd.PayloadJSON) {
		return Command{}, ErrPayloadInvalid
	}
	if def.ValidatePayload != nil {
		if err := def.ValidatePayload(json.RawMessage(cmd.PayloadJSON)); err != nil {
			return Command{}, fmt.Errorf("payload invalid: %w", err)
		}
	}
	return cmd, nil
}

// Definition returns the command definition for a given type.
func (r *Registry) Definition(cmdType Type) (Definition, bool) {
	if r == nil {
		return Definition{}, false
	}
	def, ok := r.definitions[Type(strings.TrimSpace(string(cmdType)))]
	return def, ok
}

// ListTypes returns a sorted snapshot of registered command types.
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
