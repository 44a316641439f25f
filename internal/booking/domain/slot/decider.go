package slot

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/airstriplabs/slotbook/internal/booking/domain/command"
	"github.com/airstriplabs/slotbook/internal/booking/domain/event"
)

const (
	RejectionCodeSlotNotBookable        = "SLOT_NOT_BOOKABLE"
	RejectionCodeBookingNotFound        = "BOOKING_NOT_FOUND"
	rejectionCodeParticipantIDRequired  = "SLOT_PARTICIPANT_ID_REQUIRED"
	rejectionCodeParticipantTypeInvalid = "SLOT_PARTICIPANT_TYPE_INVALID"
	rejectionCodeBookingIDRequired      = "SLOT_BOOKING_ID_REQUIRED"
)

// Messages surfaced to callers when a booking command is declined.
const (
	MessageSlotNotBookable = "Timeslot is not bookable, at least one of the participants is not available"
	MessageBookingNotFound = "No bookings were available for the booking id provided"
)

// Decide returns the decision for a slot command against current state.
//
// Booking emits exactly one event per required party in one decision, so the
// resulting batch is committed atomically by the engine. Availability
// commands always succeed: unmarking an absent participant still journals the
// event and the fold leaves state unchanged.
func Decide(state State, cmd command.Command, now func() time.Time) command.Decision {
	if now == nil {
		now = time.Now
	}

	switch cmd.Type {
	case command.TypeSlotMarkAvailable:
		return decideAvailability(cmd, event.TypeSlotParticipantMarkedAvailable, now)
	case command.TypeSlotUnmarkAvailable:
		return decideAvailability(cmd, event.TypeSlotParticipantUnmarkedAvailable, now)
	case command.TypeSlotBook:
		return decideBook(state, cmd, now)
	case command.TypeSlotCancelBooking:
		return decideCancel(state, cmd, now)
	}
	return command.Decision{}
}

func decideAvailability(cmd command.Command, eventType event.Type, now func() time.Time) command.Decision {
	var payload AvailabilityPayload
	_ = json.Unmarshal(cmd.PayloadJSON, &payload)

	participantID := strings.TrimSpace(payload.ParticipantID)
	if participantID == "" {
		return command.Reject(command.Rejection{
			Code:    rejectionCodeParticipantIDRequired,
			Message: "participant id is required",
		})
	}
	participantType := ParticipantType(strings.ToUpper(strings.TrimSpace(payload.ParticipantType)))
	if !ValidParticipantType(participantType) {
		return command.Reject(command.Rejection{
			Code:    rejectionCodeParticipantTypeInvalid,
			Message: "participant type must be STUDENT, INSTRUCTOR or AIRCRAFT",
		})
	}

	normalized := AvailabilityPayload{
		SlotID:          cmd.StreamID,
		ParticipantID:   participantID,
		ParticipantType: string(participantType),
	}
	payloadJSON, err := json.Marshal(normalized)
	if err != nil {
		return command.Reject(command.Rejection{Code: rejectionCodeParticipantIDRequired, Message: err.Error()})
	}
	return command.Accept(command.NewEvent(cmd, eventType, event.EntityTypeSlot, cmd.StreamID, payloadJSON, now()))
}

func decideBook(state State, cmd command.Command, now func() time.Time) command.Decision {
	var payload BookPayload
	_ = json.Unmarshal(cmd.PayloadJSON, &payload)

	bookingID := strings.TrimSpace(payload.BookingID)
	if bookingID == "" {
		return command.Reject(command.Rejection{
			Code:    rejectionCodeBookingIDRequired,
			Message: "booking id is required",
		})
	}

	parties := []Participant{
		{ID: strings.TrimSpace(payload.StudentID), Type: ParticipantTypeStudent},
		{ID: strings.TrimSpace(payload.AircraftID), Type: ParticipantTypeAircraft},
		{ID: strings.TrimSpace(payload.InstructorID), Type: ParticipantTypeInstructor},
	}
	for _, party := range parties {
		if party.ID == "" {
			return command.Reject(command.Rejection{
				Code:    rejectionCodeParticipantIDRequired,
				Message: "student, aircraft and instructor ids are required",
			})
		}
	}
	for _, party := range parties {
		if !state.IsAvailable(party) {
			return command.Reject(command.Rejection{
				Code:    RejectionCodeSlotNotBookable,
				Message: MessageSlotNotBookable,
			})
		}
	}

	timestamp := now()
	events := make([]event.Event, 0, len(parties))
	for _, party := range parties {
		payloadJSON, err := json.Marshal(BookingPayload{
			SlotID:          cmd.StreamID,
			ParticipantID:   party.ID,
			ParticipantType: string(party.Type),
			BookingID:       bookingID,
		})
		if err != nil {
			return command.Reject(command.Rejection{Code: rejectionCodeBookingIDRequired, Message: err.Error()})
		}
		events = append(events, command.NewEvent(cmd, event.TypeSlotBooked, event.EntityTypeSlot, cmd.StreamID, payloadJSON, timestamp))
	}
	return command.Accept(events...)
}

func decideCancel(state State, cmd command.Command, now func() time.Time) command.Decision {
	var payload CancelPayload
	_ = json.Unmarshal(cmd.PayloadJSON, &payload)

	bookingID := strings.TrimSpace(payload.BookingID)
	if bookingID == "" {
		return command.Reject(command.Rejection{
			Code:    rejectionCodeBookingIDRequired,
			Message: "booking id is required",
		})
	}

	matches := state.BookingsFor(bookingID)
	if len(matches) == 0 {
		return command.Reject(command.Rejection{
			Code:    RejectionCodeBookingNotFound,
			Message: MessageBookingNotFound,
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Participant.Type != matches[j].Participant.Type {
			return matches[i].Participant.Type < matches[j].Participant.Type
		}
		return matches[i].Participant.ID < matches[j].Participant.ID
	})

	timestamp := now()
	events := make([]event.Event, 0, len(matches))
	for _, match := range matches {
		payloadJSON, err := json.Marshal(BookingPayload{
			SlotID:          cmd.StreamID,
			ParticipantID:   match.Participant.ID,
			ParticipantType: string(match.Participant.Type),
			BookingID:       match.BookingID,
		})
		if err != nil {
			return command.Reject(command.Rejection{Code: rejectionCodeBookingIDRequired, Message: err.Error()})
		}
		events = append(events, command.NewEvent(cmd, event.TypeSlotBookingCanceled, event.EntityTypeSlot, cmd.StreamID, payloadJSON, timestamp))
	}
	return command.Accept(events...)
}
