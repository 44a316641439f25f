package replay

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/airstriplabs/slotbook/internal/booking/domain/event"
)

type memoryEventStore struct {
	events map[string][]event.Event
}

func (s *memoryEventStore) ListEvents(ctx context.Context, streamID string, afterSeq int64, limit int) ([]event.Event, error) {
	var out []event.Event
	for _, evt := range s.events[streamID] {
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

func storeWithEvents(streamID string, seqs ...int64) *memoryEventStore {
	events := make([]event.Event, 0, len(seqs))
	for _, seq := range seqs {
		events = append(events, event.Event{
			StreamID:   streamID,
			Seq:        seq,
			Type:       event.TypeSlotParticipantMarkedAvailable,
			Timestamp:  time.Unix(1700000000, 0).UTC(),
			EntityType: event.EntityTypeSlot,
			EntityID:   streamID,
		})
	}
	return &memoryEventStore{events: map[string][]event.Event{streamID: events}}
}

func countApplier(state any, evt event.Event) any {
	return state.(int) + 1
}

func TestReplayAppliesAllEvents(t *testing.T) {
	store := storeWithEvents("2030-01-10T09", 1, 2, 3, 4, 5)

	result, err := Replay(context.Background(), store, countApplier, "2030-01-10T09", 0, Options{PageSize: 2})
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if result.Applied != 5 {
		t.Fatalf("result.Applied = %d, want 5", result.Applied)
	}
	if result.LastSeq != 5 {
		t.Fatalf("result.LastSeq = %d, want 5", result.LastSeq)
	}
	if got := result.State.(int); got != 5 {
		t.Fatalf("result.State = %d, want 5", got)
	}
}

func TestReplayEmptyStream(t *testing.T) {
	store := &memoryEventStore{events: map[string][]event.Event{}}

	result, err := Replay(context.Background(), store, countApplier, "2030-01-10T09", 0, Options{})
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if result.Applied != 0 {
		t.Fatalf("result.Applied = %d, want 0", result.Applied)
	}
}

func TestReplayDetectsSequenceGap(t *testing.T) {
	store := storeWithEvents("2030-01-10T09", 1, 2, 4)

	_, err := Replay(context.Background(), store, countApplier, "2030-01-10T09", 0, Options{})
	if err == nil {
		t.Fatal("Replay() error = nil, want sequence gap error")
	}
	if !strings.Contains(err.Error(), "expected 3 got 4") {
		t.Fatalf("Replay() error = %q, want sequence gap detail", err)
	}
}

func TestReplayRespectsAfterAndUntilSeq(t *testing.T) {
	store := storeWithEvents("2030-01-10T09", 1, 2, 3, 4, 5)

	result, err := Replay(context.Background(), store, countApplier, "2030-01-10T09", 0, Options{AfterSeq: 2, UntilSeq: 4})
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if result.Applied != 2 {
		t.Fatalf("result.Applied = %d, want 2", result.Applied)
	}
	if result.LastSeq != 4 {
		t.Fatalf("result.LastSeq = %d, want 4", result.LastSeq)
	}
}

func TestReplayValidatesInputs(t *testing.T) {
	store := storeWithEvents("2030-01-10T09", 1)

	if _, err := Replay(context.Background(), nil, countApplier, "2030-01-10T09", 0, Options{}); err != ErrEventStoreRequired {
		t.Fatalf("Replay() error = %v, want ErrEventStoreRequired", err)
	}
	if _, err := Replay(context.Background(), store, nil, "2030-01-10T09", 0, Options{}); err != ErrApplierRequired {
		t.Fatalf("Replay() error = %v, want ErrApplierRequired", err)
	}
	if _, err := Replay(context.Background(), store, countApplier, "  ", 0, Options{}); err != ErrStreamIDRequired {
		t.Fatalf("Replay() error = %v, want ErrStreamIDRequired", err)
	}
}
