// Package participantslot implements the derived per (slot, participant)
// state machine. Each event unconditionally overwrites the current status, so
// redelivered propagation commands are idempotent in final effect.
package participantslot

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/airstriplabs/slotbook/internal/booking/domain/command"
	"github.com/airstriplabs/slotbook/internal/booking/domain/event"
)

// Status enumerates the participant's current relation to a slot.
type Status string

const (
	StatusUnknown     Status = ""
	StatusAvailable   Status = "AVAILABLE"
	StatusUnavailable Status = "UNAVAILABLE"
	StatusBooked      Status = "BOOKED"
	StatusCanceled    Status = "CANCELED"
)

// ParseStatus normalizes a status label from a query path.
func ParseStatus(label string) (Status, bool) {
	switch Status(strings.ToUpper(strings.TrimSpace(label))) {
	case StatusAvailable:
		return StatusAvailable, true
	case StatusUnavailable:
		return StatusUnavailable, true
	case StatusBooked:
		return StatusBooked, true
	case StatusCanceled:
		return StatusCanceled, true
	}
	return StatusUnknown, false
}

// StreamID derives the deterministic stream key for a (slot, participant)
// pair. Participant type is not part of the key; participant ids are globally
// unique across types.
func StreamID(slotID, participantID string) string {
	return slotID + "-" + participantID
}

// State captures the last-writer status for one (slot, participant) pair.
type State struct {
	SlotID          string
	ParticipantID   string
	ParticipantType string
	BookingID       string
	Status          Status
}

const rejectionCodeParticipantIDRequired = "PARTICIPANT_SLOT_PARTICIPANT_ID_REQUIRED"

// Payload captures the payload shared by all participant_slot commands and
// events. BookingID is only set for book/cancel transitions.
type Payload struct {
	SlotID          string `json:"slot_id"`
	ParticipantID   string `json:"participant_id"`
	ParticipantType string `json:"participant_type"`
	BookingID       string `json:"booking_id,omitempty"`
}

var commandToEvent = map[command.Type]event.Type{
	command.TypeParticipantSlotMarkAvailable:   event.TypeParticipantSlotMarkedAvailable,
	command.TypeParticipantSlotUnmarkAvailable: event.TypeParticipantSlotUnmarkedAvailable,
	command.TypeParticipantSlotBook:            event.TypeParticipantSlotBooked,
	command.TypeParticipantSlotCancel:          event.TypeParticipantSlotCanceled,
}

// Decide returns the decision for a participant_slot command against current
// state. There is no cross-validation: this aggregate trusts its upstream
// slot events and records every transition it is told about.
func Decide(state State, cmd command.Command, now func() time.Time) command.Decision {
	eventType, ok := commandToEvent[cmd.Type]
	if !ok {
		return command.Decision{}
	}
	if now == nil {
		now = time.Now
	}

	var payload Payload
	_ = json.Unmarshal(cmd.PayloadJSON, &payload)
	if strings.TrimSpace(payload.ParticipantID) == "" {
		return command.Reject(command.Rejection{
			Code:    rejectionCodeParticipantIDRequired,
			Message: "participant id is required",
		})
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return command.Reject(command.Rejection{Code: rejectionCodeParticipantIDRequired, Message: err.Error()})
	}
	return command.Accept(command.NewEvent(cmd, eventType, event.EntityTypeParticipantSlot, cmd.StreamID, payloadJSON, now()))
}

// Fold applies an event to participant-slot state. Every variant overwrites
// the status with its corresponding value.
func Fold(state State, evt event.Event) State {
	var status Status
	switch evt.Type {
	case event.TypeParticipantSlotMarkedAvailable:
		status = StatusAvailable
	case event.TypeParticipantSlotUnmarkedAvailable:
		status = StatusUnavailable
	case event.TypeParticipantSlotBooked:
		status = StatusBooked
	case event.TypeParticipantSlotCanceled:
		status = StatusCanceled
	default:
		return state
	}

	var payload Payload
	_ = json.Unmarshal(evt.PayloadJSON, &payload)
	if payload.SlotID != "" {
		state.SlotID = payload.SlotID
	}
	if payload.ParticipantID != "" {
		state.ParticipantID = payload.ParticipantID
	}
	if payload.ParticipantType != "" {
		state.ParticipantType = payload.ParticipantType
	}
	state.BookingID = payload.BookingID
	state.Status = status
	return state
}

// Replay folds events in order starting from an empty state.
func Replay(events []event.Event) State {
	var state State
	for _, evt := range events {
		state = Fold(state, evt)
	}
	return state
}

// RegisterCommands registers participant_slot commands with the shared
// registry.
func RegisterCommands(registry *command.Registry) error {
	if registry == nil {
		return errors.New("command registry is required")
	}
	for cmdType := range commandToEvent {
		if err := registry.Register(command.Definition{
			Type:            cmdType,
			ValidatePayload: validatePayload,
		}); err != nil {
			return err
		}
	}
	return nil
}

// EmittableEventTypes returns all event types the decider can emit.
func EmittableEventTypes() []event.Type {
	return []event.Type{
		event.TypeParticipantSlotMarkedAvailable,
		event.TypeParticipantSlotUnmarkedAvailable,
		event.TypeParticipantSlotBooked,
		event.TypeParticipantSlotCanceled,
	}
}

// RegisterEvents registers participant_slot events with the shared registry.
func RegisterEvents(registry *event.Registry) error {
	if registry == nil {
		return errors.New("event registry is required")
	}
	for _, eventType := range EmittableEventTypes() {
		if err := registry.Register(event.Definition{
			Type:            eventType,
			EntityType:      event.EntityTypeParticipantSlot,
			ValidatePayload: validatePayload,
		}); err != nil {
			return err
		}
	}
	return nil
}

func validatePayload(raw json.RawMessage) error {
	var payload Payload
	return json.Unmarshal(raw, &payload)
}
