package slot

import (
	"encoding/json"

	"github.com/airstriplabs/slotbook/internal/booking/domain/event"
)

// Fold applies an event to timeslot state. It is the single reducer used both
// to validate commands and to rebuild state on replay, so it must stay pure.
func Fold(state State, evt event.Event) State {
	switch evt.Type {
	case event.TypeSlotParticipantMarkedAvailable:
		participant, ok := participantFromPayload(evt.PayloadJSON)
		if !ok {
			return state
		}
		next := cloneState(state)
		next.Available[participant] = struct{}{}
		return next
	case event.TypeSlotParticipantUnmarkedAvailable:
		participant, ok := participantFromPayload(evt.PayloadJSON)
		if !ok {
			return state
		}
		next := cloneState(state)
		delete(next.Available, participant)
		return next
	case event.TypeSlotBooked:
		booking, ok := bookingFromPayload(evt.PayloadJSON)
		if !ok {
			return state
		}
		next := cloneState(state)
		next.Bookings[booking] = struct{}{}
		return next
	case event.TypeSlotBookingCanceled:
		booking, ok := bookingFromPayload(evt.PayloadJSON)
		if !ok {
			return state
		}
		next := cloneState(state)
		delete(next.Bookings, booking)
		return next
	}
	return state
}

// Replay folds events in order starting from an empty timeslot.
func Replay(events []event.Event) State {
	state := NewState()
	for _, evt := range events {
		state = Fold(state, evt)
	}
	return state
}

func participantFromPayload(raw []byte) (Participant, bool) {
	var payload AvailabilityPayload
	_ = json.Unmarshal(raw, &payload)
	if payload.ParticipantID == "" {
		return Participant{}, false
	}
	return Participant{ID: payload.ParticipantID, Type: ParticipantType(payload.ParticipantType)}, true
}

func bookingFromPayload(raw []byte) (Booking, bool) {
	var payload BookingPayload
	_ = json.Unmarshal(raw, &payload)
	if payload.ParticipantID == "" || payload.BookingID == "" {
		return Booking{}, false
	}
	return Booking{
		Participant: Participant{ID: payload.ParticipantID, Type: ParticipantType(payload.ParticipantType)},
		BookingID:   payload.BookingID,
	}, true
}

func cloneState(state State) State {
	next := State{
		Available: make(map[Participant]struct{}, len(state.Available)),
		Bookings:  make(map[Booking]struct{}, len(state.Bookings)),
	}
	for p := range state.Available {
		next.Available[p] = struct{}{}
	}
	for b := range state.Bookings {
		next.Bookings[b] = struct{}{}
	}
	return next
}
