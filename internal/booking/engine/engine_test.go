package engine

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/airstriplabs/slotbook/internal/booking/domain/command"
	"github.com/airstriplabs/slotbook/internal/booking/domain/event"
	"github.com/airstriplabs/slotbook/internal/booking/domain/slot"
)

// memoryJournal assigns contiguous per-stream sequence numbers like the
// sqlite store does, without touching disk.
type memoryJournal struct {
	mu     sync.Mutex
	events map[string][]event.Event
}

func newMemoryJournal() *memoryJournal {
	return &memoryJournal{events: make(map[string][]event.Event)}
}

func (j *memoryJournal) ListEvents(ctx context.Context, streamID string, afterSeq int64, limit int) ([]event.Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []event.Event
	for _, evt := range j.events[streamID] {
		if evt.Seq <= afterSeq {
			continue
		}
		out = append(out, evt)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (j *memoryJournal) BatchAppendEvents(ctx context.Context, events []event.Event) ([]event.Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]event.Event, 0, len(events))
	for _, evt := range events {
		evt.Seq = int64(len(j.events[evt.StreamID])) + 1
		j.events[evt.StreamID] = append(j.events[evt.StreamID], evt)
		out = append(out, evt)
	}
	return out, nil
}

func newSlotHandler(t *testing.T, journal Journal) *Handler {
	t.Helper()
	commands := command.NewRegistry()
	if err := slot.RegisterCommands(commands); err != nil {
		t.Fatalf("RegisterCommands() error = %v", err)
	}
	events := event.NewRegistry()
	if err := slot.RegisterEvents(events); err != nil {
		t.Fatalf("RegisterEvents() error = %v", err)
	}
	now := func() time.Time { return time.Unix(1893456000, 0).UTC() }
	handler, err := New(commands, events, journal, SlotDecider{}, WithClock(now))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return handler
}

func markCommand(t *testing.T, slotID, participantID string, participantType slot.ParticipantType) command.Command {
	t.Helper()
	payload, err := json.Marshal(slot.AvailabilityPayload{
		SlotID:          slotID,
		ParticipantID:   participantID,
		ParticipantType: string(participantType),
	})
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	return command.Command{
		StreamID:    slotID,
		Type:        command.TypeSlotMarkAvailable,
		RequestID:   "req-" + participantID,
		PayloadJSON: payload,
	}
}

func bookCommand(t *testing.T, slotID, bookingID string) command.Command {
	t.Helper()
	payload, err := json.Marshal(slot.BookPayload{
		StudentID:    "STUD001",
		AircraftID:   "AIRC001",
		InstructorID: "INST001",
		BookingID:    bookingID,
	})
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	return command.Command{
		StreamID:    slotID,
		Type:        command.TypeSlotBook,
		RequestID:   "req-" + bookingID,
		PayloadJSON: payload,
	}
}

func TestExecuteAppendsAcceptedEvents(t *testing.T) {
	journal := newMemoryJournal()
	handler := newSlotHandler(t, journal)

	result, err := handler.Execute(context.Background(), markCommand(t, "2030-01-10T09", "STUD001", slot.ParticipantTypeStudent))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Decision.Rejections) != 0 {
		t.Fatalf("rejections = %v, want none", result.Decision.Rejections)
	}
	if len(result.Decision.Events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(result.Decision.Events))
	}
	if result.Decision.Events[0].Seq != 1 {
		t.Fatalf("event seq = %d, want 1", result.Decision.Events[0].Seq)
	}
	if result.LastSeq != 1 {
		t.Fatalf("result.LastSeq = %d, want 1", result.LastSeq)
	}
	state := result.State.(slot.State)
	if !state.IsAvailable(slot.Participant{ID: "STUD001", Type: slot.ParticipantTypeStudent}) {
		t.Fatal("participant not available in returned state")
	}
}

func TestExecuteRejectionAppendsNothing(t *testing.T) {
	journal := newMemoryJournal()
	handler := newSlotHandler(t, journal)

	result, err := handler.Execute(context.Background(), bookCommand(t, "2030-01-10T09", "BOOK001"))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Decision.Rejections) != 1 {
		t.Fatalf("len(rejections) = %d, want 1", len(result.Decision.Rejections))
	}
	if got := result.Decision.Rejections[0].Code; got != slot.RejectionCodeSlotNotBookable {
		t.Fatalf("rejection code = %q, want %q", got, slot.RejectionCodeSlotNotBookable)
	}
	if len(journal.events["2030-01-10T09"]) != 0 {
		t.Fatalf("journal has %d events, want 0", len(journal.events["2030-01-10T09"]))
	}
}

func TestExecuteBookingLifecycle(t *testing.T) {
	journal := newMemoryJournal()
	handler := newSlotHandler(t, journal)
	ctx := context.Background()

	participants := []struct {
		id  string
		typ slot.ParticipantType
	}{
		{"STUD001", slot.ParticipantTypeStudent},
		{"AIRC001", slot.ParticipantTypeAircraft},
		{"INST001", slot.ParticipantTypeInstructor},
	}
	for _, p := range participants {
		if _, err := handler.Execute(ctx, markCommand(t, "2030-01-10T09", p.id, p.typ)); err != nil {
			t.Fatalf("Execute(mark %s) error = %v", p.id, err)
		}
	}

	result, err := handler.Execute(ctx, bookCommand(t, "2030-01-10T09", "BOOK001"))
	if err != nil {
		t.Fatalf("Execute(book) error = %v", err)
	}
	if len(result.Decision.Events) != 3 {
		t.Fatalf("len(book events) = %d, want 3", len(result.Decision.Events))
	}
	state := result.State.(slot.State)
	if got := len(state.BookingsFor("BOOK001")); got != 3 {
		t.Fatalf("bookings for BOOK001 = %d, want 3", got)
	}
	if result.LastSeq != 6 {
		t.Fatalf("result.LastSeq = %d, want 6", result.LastSeq)
	}
}

func TestExecuteRejectsUnknownCommandType(t *testing.T) {
	handler := newSlotHandler(t, newMemoryJournal())

	_, err := handler.Execute(context.Background(), command.Command{
		StreamID: "2030-01-10T09",
		Type:     command.Type("slot.defragment"),
	})
	if err == nil {
		t.Fatal("Execute() error = nil, want validation error")
	}
}

func TestNewValidatesDependencies(t *testing.T) {
	commands := command.NewRegistry()
	events := event.NewRegistry()
	journal := newMemoryJournal()

	if _, err := New(nil, events, journal, SlotDecider{}); err != ErrCommandRegistryRequired {
		t.Fatalf("New() error = %v, want ErrCommandRegistryRequired", err)
	}
	if _, err := New(commands, nil, journal, SlotDecider{}); err != ErrEventRegistryRequired {
		t.Fatalf("New() error = %v, want ErrEventRegistryRequired", err)
	}
	if _, err := New(commands, events, nil, SlotDecider{}); err != ErrJournalRequired {
		t.Fatalf("New() error = %v, want ErrJournalRequired", err)
	}
	if _, err := New(commands, events, journal, nil); err != ErrDeciderRequired {
		t.Fatalf("New() error = %v, want ErrDeciderRequired", err)
	}
}

func TestExecuteSerializesWritersPerStream(t *testing.T) {
	journal := newMemoryJournal()
	handler := newSlotHandler(t, journal)
	ctx := context.Background()

	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := "STUD" + string(rune('A'+n))
			_, err := handler.Execute(ctx, markCommand(t, "2030-01-10T09", id, slot.ParticipantTypeStudent))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
	}

	events := journal.events["2030-01-10T09"]
	if len(events) != writers {
		t.Fatalf("journal has %d events, want %d", len(events), writers)
	}
	for i, evt := range events {
		if evt.Seq != int64(i+1) {
			t.Fatalf("events[%d].Seq = %d, want %d", i, evt.Seq, i+1)
		}
	}
}
