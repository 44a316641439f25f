package slot

import (
	"testing"
	"time"

	"github.com/airstriplabs/slotbook/internal/booking/domain/event"
)

func availabilityEvent(t *testing.T, eventType event.Type, participantID string, participantType ParticipantType) event.Event {
	t.Helper()
	return event.Event{
		StreamID:   "SL001",
		Type:       eventType,
		Timestamp:  time.Unix(0, 0).UTC(),
		EntityType: event.EntityTypeSlot,
		EntityID:   "SL001",
		PayloadJSON: mustPayload(t, AvailabilityPayload{
			SlotID:          "SL001",
			ParticipantID:   participantID,
			ParticipantType: string(participantType),
		}),
	}
}

func bookedEvent(t *testing.T, eventType event.Type, participantID string, participantType ParticipantType, bookingID string) event.Event {
	t.Helper()
	return event.Event{
		StreamID:   "SL001",
		Type:       eventType,
		Timestamp:  time.Unix(0, 0).UTC(),
		EntityType: event.EntityTypeSlot,
		EntityID:   "SL001",
		PayloadJSON: mustPayload(t, BookingPayload{
			SlotID:          "SL001",
			ParticipantID:   participantID,
			ParticipantType: string(participantType),
			BookingID:       bookingID,
		}),
	}
}

func TestFoldMarkThenUnmark(t *testing.T) {
	state := NewState()
	state = Fold(state, availabilityEvent(t, event.TypeSlotParticipantMarkedAvailable, "STUD001", ParticipantTypeStudent))
	state = Fold(state, availabilityEvent(t, event.TypeSlotParticipantUnmarkedAvailable, "STUD001", ParticipantTypeStudent))
	if state.IsAvailable(Participant{ID: "STUD001", Type: ParticipantTypeStudent}) {
		t.Fatal("participant available after mark then unmark")
	}
}

func TestFoldIsIdempotentForRepeatedEvents(t *testing.T) {
	mark := availabilityEvent(t, event.TypeSlotParticipantMarkedAvailable, "STUD001", ParticipantTypeStudent)
	once := Fold(NewState(), mark)
	twice := Fold(once, mark)
	if len(once.Available) != 1 || len(twice.Available) != 1 {
		t.Fatalf("available sizes = %d then %d, want 1 and 1", len(once.Available), len(twice.Available))
	}

	unmark := availabilityEvent(t, event.TypeSlotParticipantUnmarkedAvailable, "AIRC001", ParticipantTypeAircraft)
	afterAbsentUnmark := Fold(NewState(), unmark)
	afterTwice := Fold(afterAbsentUnmark, unmark)
	if len(afterAbsentUnmark.Available) != 0 || len(afterTwice.Available) != 0 {
		t.Fatal("unmark of absent participant must leave state empty")
	}
}

func TestFoldDoesNotMutateInput(t *testing.T) {
	base := Fold(NewState(), availabilityEvent(t, event.TypeSlotParticipantMarkedAvailable, "STUD001", ParticipantTypeStudent))

	_ = Fold(base, availabilityEvent(t, event.TypeSlotParticipantUnmarkedAvailable, "STUD001", ParticipantTypeStudent))
	if !base.IsAvailable(Participant{ID: "STUD001", Type: ParticipantTypeStudent}) {
		t.Fatal("fold mutated its input state")
	}
}

func TestFoldIgnoresUnknownAndMalformedEvents(t *testing.T) {
	base := Fold(NewState(), availabilityEvent(t, event.TypeSlotParticipantMarkedAvailable, "STUD001", ParticipantTypeStudent))

	next := Fold(base, event.Event{Type: "slot.mystery", PayloadJSON: []byte(`{}`)})
	if len(next.Available) != 1 {
		t.Fatal("unknown event changed state")
	}

	next = Fold(base, event.Event{Type: event.TypeSlotBooked, PayloadJSON: []byte(`{}`)})
	if len(next.Bookings) != 0 {
		t.Fatal("booked event without payload changed state")
	}
}

func TestReplayRebuildsBookedState(t *testing.T) {
	events := []event.Event{
		availabilityEvent(t, event.TypeSlotParticipantMarkedAvailable, "STUD001", ParticipantTypeStudent),
		availabilityEvent(t, event.TypeSlotParticipantMarkedAvailable, "AIRC001", ParticipantTypeAircraft),
		availabilityEvent(t, event.TypeSlotParticipantMarkedAvailable, "INST001", ParticipantTypeInstructor),
		bookedEvent(t, event.TypeSlotBooked, "STUD001", ParticipantTypeStudent, "BOOK001"),
		bookedEvent(t, event.TypeSlotBooked, "AIRC001", ParticipantTypeAircraft, "BOOK001"),
		bookedEvent(t, event.TypeSlotBooked, "INST001", ParticipantTypeInstructor, "BOOK001"),
	}
	state := Replay(events)
	if len(state.Available) != 3 {
		t.Fatalf("available size = %d, want 3", len(state.Available))
	}
	if len(state.Bookings) != 3 {
		t.Fatalf("bookings size = %d, want 3", len(state.Bookings))
	}
	if got := state.BookingsFor("BOOK001"); len(got) != 3 {
		t.Fatalf("bookings for BOOK001 = %d, want 3", len(got))
	}

	canceled := append(events,
		bookedEvent(t, event.TypeSlotBookingCanceled, "STUD001", ParticipantTypeStudent, "BOOK001"),
		bookedEvent(t, event.TypeSlotBookingCanceled, "AIRC001", ParticipantTypeAircraft, "BOOK001"),
		bookedEvent(t, event.TypeSlotBookingCanceled, "INST001", ParticipantTypeInstructor, "BOOK001"),
	)
	state = Replay(canceled)
	if len(state.Bookings) != 0 {
		t.Fatalf("bookings size after cancel = %d, want 0", len(state.Bookings))
	}
}
