package sqlite

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/airstriplabs/slotbook/internal/booking/domain/event"
	"github.com/airstriplabs/slotbook/internal/booking/domain/participantslot"
	"github.com/airstriplabs/slotbook/internal/booking/domain/slot"
)

func testRegistry(t *testing.T) *event.Registry {
	t.Helper()
	registry := event.NewRegistry()
	if err := slot.RegisterEvents(registry); err != nil {
		t.Fatalf("register slot events: %v", err)
	}
	if err := participantslot.RegisterEvents(registry); err != nil {
		t.Fatalf("register participant slot events: %v", err)
	}
	return registry
}

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "booking.db"), testRegistry(t), opts...)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func slotMarkedEvent(t *testing.T, slotID, participantID string, participantType slot.ParticipantType) event.Event {
	t.Helper()
	raw, err := json.Marshal(slot.AvailabilityPayload{
		SlotID:          slotID,
		ParticipantID:   participantID,
		ParticipantType: string(participantType),
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return event.Event{
		StreamID:    slotID,
		Type:        event.TypeSlotParticipantMarkedAvailable,
		Timestamp:   time.Unix(1700000000, 0).UTC(),
		EntityType:  event.EntityTypeSlot,
		EntityID:    slotID,
		PayloadJSON: raw,
	}
}

func participantSlotBookedEvent(t *testing.T, slotID, participantID, bookingID string) event.Event {
	t.Helper()
	raw, err := json.Marshal(participantslot.Payload{
		SlotID:          slotID,
		ParticipantID:   participantID,
		ParticipantType: "STUDENT",
		BookingID:       bookingID,
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	streamID := participantslot.StreamID(slotID, participantID)
	return event.Event{
		StreamID:    streamID,
		Type:        event.TypeParticipantSlotBooked,
		Timestamp:   time.Unix(1700000000, 0).UTC(),
		EntityType:  event.EntityTypeParticipantSlot,
		EntityID:    streamID,
		PayloadJSON: raw,
	}
}
