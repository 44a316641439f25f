package slot

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/airstriplabs/slotbook/internal/booking/domain/command"
	"github.com/airstriplabs/slotbook/internal/booking/domain/event"
)

func fixedNow() time.Time { return time.Unix(1700000000, 0).UTC() }

func mustPayload(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return raw
}

func markCmd(t *testing.T, participantID string, participantType ParticipantType) command.Command {
	return command.Command{
		StreamID: "SL001",
		Type:     command.TypeSlotMarkAvailable,
		PayloadJSON: mustPayload(t, AvailabilityPayload{
			ParticipantID:   participantID,
			ParticipantType: string(participantType),
		}),
	}
}

func bookCmd(t *testing.T, bookingID string) command.Command {
	return command.Command{
		StreamID: "SL001",
		Type:     command.TypeSlotBook,
		PayloadJSON: mustPayload(t, BookPayload{
			StudentID:    "STUD001",
			AircraftID:   "AIRC001",
			InstructorID: "INST001",
			BookingID:    bookingID,
		}),
	}
}

func applyDecision(state State, decision command.Decision) State {
	for _, evt := range decision.Events {
		state = Fold(state, evt)
	}
	return state
}

func markedState(t *testing.T, participants ...Participant) State {
	t.Helper()
	state := NewState()
	for _, p := range participants {
		decision := Decide(state, markCmd(t, p.ID, p.Type), fixedNow)
		if len(decision.Rejections) != 0 {
			t.Fatalf("mark %s rejected: %+v", p.ID, decision.Rejections)
		}
		state = applyDecision(state, decision)
	}
	return state
}

func allParties() []Participant {
	return []Participant{
		{ID: "STUD001", Type: ParticipantTypeStudent},
		{ID: "AIRC001", Type: ParticipantTypeAircraft},
		{ID: "INST001", Type: ParticipantTypeInstructor},
	}
}

func TestEmptyStateHasNoAvailabilityOrBookings(t *testing.T) {
	state := NewState()
	if len(state.Available) != 0 {
		t.Fatalf("available size = %d, want 0", len(state.Available))
	}
	if len(state.Bookings) != 0 {
		t.Fatalf("bookings size = %d, want 0", len(state.Bookings))
	}
}

func TestMarkAvailableEmitsEvent(t *testing.T) {
	decision := Decide(NewState(), markCmd(t, "STUD001", ParticipantTypeStudent), fixedNow)
	if len(decision.Rejections) != 0 {
		t.Fatalf("unexpected rejections: %+v", decision.Rejections)
	}
	if len(decision.Events) != 1 {
		t.Fatalf("events = %d, want 1", len(decision.Events))
	}
	evt := decision.Events[0]
	if evt.Type != event.TypeSlotParticipantMarkedAvailable {
		t.Fatalf("event type = %s, want %s", evt.Type, event.TypeSlotParticipantMarkedAvailable)
	}

	state := applyDecision(NewState(), decision)
	if !state.IsAvailable(Participant{ID: "STUD001", Type: ParticipantTypeStudent}) {
		t.Fatal("participant not marked available")
	}
}

func TestMarkTwiceKeepsOneEntry(t *testing.T) {
	state := markedState(t,
		Participant{ID: "STUD001", Type: ParticipantTypeStudent},
		Participant{ID: "STUD001", Type: ParticipantTypeStudent},
	)
	if len(state.Available) != 1 {
		t.Fatalf("available size = %d, want 1", len(state.Available))
	}
}

func TestUnmarkRemovesParticipant(t *testing.T) {
	state := markedState(t, Participant{ID: "STUD001", Type: ParticipantTypeStudent})

	unmark := command.Command{
		StreamID: "SL001",
		Type:     command.TypeSlotUnmarkAvailable,
		PayloadJSON: mustPayload(t, AvailabilityPayload{
			ParticipantID:   "STUD001",
			ParticipantType: string(ParticipantTypeStudent),
		}),
	}
	decision := Decide(state, unmark, fixedNow)
	if len(decision.Events) != 1 {
		t.Fatalf("events = %d, want 1", len(decision.Events))
	}
	state = applyDecision(state, decision)
	if state.IsAvailable(Participant{ID: "STUD001", Type: ParticipantTypeStudent}) {
		t.Fatal("participant still available after unmark")
	}
}

func TestUnmarkAbsentParticipantStillJournals(t *testing.T) {
	unmark := command.Command{
		StreamID: "SL001",
		Type:     command.TypeSlotUnmarkAvailable,
		PayloadJSON: mustPayload(t, AvailabilityPayload{
			ParticipantID:   "STUD001",
			ParticipantType: string(ParticipantTypeStudent),
		}),
	}
	decision := Decide(NewState(), unmark, fixedNow)
	if len(decision.Rejections) != 0 {
		t.Fatalf("unexpected rejections: %+v", decision.Rejections)
	}
	if len(decision.Events) != 1 {
		t.Fatalf("events = %d, want 1", len(decision.Events))
	}
	state := applyDecision(NewState(), decision)
	if len(state.Available) != 0 {
		t.Fatalf("available size = %d, want 0", len(state.Available))
	}
}

func TestBookRejectedWhenParticipantMissing(t *testing.T) {
	state := markedState(t, Participant{ID: "STUD001", Type: ParticipantTypeStudent})

	decision := Decide(state, bookCmd(t, "BOOK001"), fixedNow)
	if len(decision.Events) != 0 {
		t.Fatalf("events = %d, want 0", len(decision.Events))
	}
	if len(decision.Rejections) != 1 {
		t.Fatalf("rejections = %d, want 1", len(decision.Rejections))
	}
	rejection := decision.Rejections[0]
	if rejection.Code != RejectionCodeSlotNotBookable {
		t.Fatalf("code = %s, want %s", rejection.Code, RejectionCodeSlotNotBookable)
	}
	if rejection.Message != MessageSlotNotBookable {
		t.Fatalf("message = %q, want %q", rejection.Message, MessageSlotNotBookable)
	}
	if len(state.Bookings) != 0 {
		t.Fatalf("bookings size = %d, want 0", len(state.Bookings))
	}
}

func TestBookThenCancelFullLifecycle(t *testing.T) {
	state := markedState(t, allParties()...)

	bookDecision := Decide(state, bookCmd(t, "BOOK001"), fixedNow)
	if len(bookDecision.Rejections) != 0 {
		t.Fatalf("book rejected: %+v", bookDecision.Rejections)
	}
	if len(bookDecision.Events) != 3 {
		t.Fatalf("book events = %d, want 3", len(bookDecision.Events))
	}
	for _, evt := range bookDecision.Events {
		if evt.Type != event.TypeSlotBooked {
			t.Fatalf("event type = %s, want %s", evt.Type, event.TypeSlotBooked)
		}
		var payload BookingPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			t.Fatalf("unmarshal booked payload: %v", err)
		}
		if payload.BookingID != "BOOK001" {
			t.Fatalf("booking id = %q, want BOOK001", payload.BookingID)
		}
	}

	state = applyDecision(state, bookDecision)
	if len(state.Bookings) != 3 {
		t.Fatalf("bookings size = %d, want 3", len(state.Bookings))
	}
	if len(state.Available) != 3 {
		t.Fatalf("booking must not consume availability, size = %d", len(state.Available))
	}

	cancel := command.Command{
		StreamID:    "SL001",
		Type:        command.TypeSlotCancelBooking,
		PayloadJSON: mustPayload(t, CancelPayload{BookingID: "BOOK001"}),
	}
	cancelDecision := Decide(state, cancel, fixedNow)
	if len(cancelDecision.Rejections) != 0 {
		t.Fatalf("cancel rejected: %+v", cancelDecision.Rejections)
	}
	if len(cancelDecision.Events) != 3 {
		t.Fatalf("cancel events = %d, want 3", len(cancelDecision.Events))
	}

	state = applyDecision(state, cancelDecision)
	if len(state.Bookings) != 0 {
		t.Fatalf("bookings size = %d, want 0", len(state.Bookings))
	}
}

func TestCancelUnknownBookingRejected(t *testing.T) {
	cancel := command.Command{
		StreamID:    "SL001",
		Type:        command.TypeSlotCancelBooking,
		PayloadJSON: mustPayload(t, CancelPayload{BookingID: "unknown"}),
	}
	decision := Decide(NewState(), cancel, fixedNow)
	if len(decision.Events) != 0 {
		t.Fatalf("events = %d, want 0", len(decision.Events))
	}
	if len(decision.Rejections) != 1 {
		t.Fatalf("rejections = %d, want 1", len(decision.Rejections))
	}
	if decision.Rejections[0].Code != RejectionCodeBookingNotFound {
		t.Fatalf("code = %s, want %s", decision.Rejections[0].Code, RejectionCodeBookingNotFound)
	}
	if decision.Rejections[0].Message != MessageBookingNotFound {
		t.Fatalf("message = %q, want %q", decision.Rejections[0].Message, MessageBookingNotFound)
	}
}

func TestCancelLeavesOtherBookingsUntouched(t *testing.T) {
	state := markedState(t, allParties()...)
	state = applyDecision(state, Decide(state, bookCmd(t, "BOOK001"), fixedNow))

	second := command.Command{
		StreamID: "SL001",
		Type:     command.TypeSlotBook,
		PayloadJSON: mustPayload(t, BookPayload{
			StudentID:    "STUD001",
			AircraftID:   "AIRC001",
			InstructorID: "INST001",
			BookingID:    "BOOK002",
		}),
	}
	state = applyDecision(state, Decide(state, second, fixedNow))
	if len(state.Bookings) != 6 {
		t.Fatalf("bookings size = %d, want 6", len(state.Bookings))
	}

	cancel := command.Command{
		StreamID:    "SL001",
		Type:        command.TypeSlotCancelBooking,
		PayloadJSON: mustPayload(t, CancelPayload{BookingID: "BOOK001"}),
	}
	state = applyDecision(state, Decide(state, cancel, fixedNow))
	if len(state.Bookings) != 3 {
		t.Fatalf("bookings size = %d, want 3", len(state.Bookings))
	}
	for b := range state.Bookings {
		if b.BookingID != "BOOK002" {
			t.Fatalf("unexpected surviving booking id %q", b.BookingID)
		}
	}
}

func TestBookRejectsMissingIDs(t *testing.T) {
	cmd := command.Command{
		StreamID: "SL001",
		Type:     command.TypeSlotBook,
		PayloadJSON: mustPayload(t, BookPayload{
			StudentID: "STUD001",
			BookingID: "BOOK001",
		}),
	}
	decision := Decide(markedState(t, allParties()...), cmd, fixedNow)
	if len(decision.Rejections) != 1 {
		t.Fatalf("rejections = %d, want 1", len(decision.Rejections))
	}
}

func TestMarkRejectsInvalidType(t *testing.T) {
	cmd := command.Command{
		StreamID: "SL001",
		Type:     command.TypeSlotMarkAvailable,
		PayloadJSON: mustPayload(t, AvailabilityPayload{
			ParticipantID:   "STUD001",
			ParticipantType: "ROBOT",
		}),
	}
	decision := Decide(NewState(), cmd, fixedNow)
	if len(decision.Rejections) != 1 {
		t.Fatalf("rejections = %d, want 1", len(decision.Rejections))
	}
	if decision.Rejections[0].Code != rejectionCodeParticipantTypeInvalid {
		t.Fatalf("code = %s, want %s", decision.Rejections[0].Code, rejectionCodeParticipantTypeInvalid)
	}
}
