package slot

import (
	"encoding/json"
	"errors"

	"github.com/airstriplabs/slotbook/internal/booking/domain/command"
	"github.com/airstriplabs/slotbook/internal/booking/domain/event"
)

// RegisterCommands registers slot commands with the shared registry.
func RegisterCommands(registry *command.Registry) error {
	if registry == nil {
		return errors.New("command registry is required")
	}
	definitions := []command.Definition{
		{Type: command.TypeSlotMarkAvailable, ValidatePayload: validateAvailabilityPayload},
		{Type: command.TypeSlotUnmarkAvailable, ValidatePayload: validateAvailabilityPayload},
		{Type: command.TypeSlotBook, ValidatePayload: validateBookPayload},
		{Type: command.TypeSlotCancelBooking, ValidatePayload: validateCancelPayload},
	}
	for _, def := range definitions {
		if err := registry.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// EmittableEventTypes returns all event types the slot decider can emit.
func EmittableEventTypes() []event.Type {
	return []event.Type{
		event.TypeSlotParticipantMarkedAvailable,
		event.TypeSlotParticipantUnmarkedAvailable,
		event.TypeSlotBooked,
		event.TypeSlotBookingCanceled,
	}
}

// RegisterEvents registers slot events with the shared registry.
func RegisterEvents(registry *event.Registry) error {
	if registry == nil {
		return errors.New("event registry is required")
	}
	definitions := []event.Definition{
		{Type: event.TypeSlotParticipantMarkedAvailable, EntityType: event.EntityTypeSlot, ValidatePayload: validateAvailabilityPayload},
		{Type: event.TypeSlotParticipantUnmarkedAvailable, EntityType: event.EntityTypeSlot, ValidatePayload: validateAvailabilityPayload},
		{Type: event.TypeSlotBooked, EntityType: event.EntityTypeSlot, ValidatePayload: validateBookingPayload},
		{Type: event.TypeSlotBookingCanceled, EntityType: event.EntityTypeSlot, ValidatePayload: validateBookingPayload},
	}
	for _, def := range definitions {
		if err := registry.Register(def); err != nil {
			return err
		}
	}
	return nil
}

func validateAvailabilityPayload(raw json.RawMessage) error {
	var payload AvailabilityPayload
	return json.Unmarshal(raw, &payload)
}

func validateBookPayload(raw json.RawMessage) error {
	var payload BookPayload
	return json.Unmarshal(raw, &payload)
}

func validateBookingPayload(raw json.RawMessage) error {
	var payload BookingPayload
	return json.Unmarshal(raw, &payload)
}

func validateCancelPayload(raw json.RawMessage) error {
	var payload CancelPayload
	return json.Unmarshal(raw, &payload)
}
