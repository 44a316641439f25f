// Package projection maintains the participant-centric read model. It folds
// slot-participant events into denormalized rows and tracks per-stream
// watermarks so redelivered or replayed events stay idempotent.
package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/airstriplabs/slotbook/internal/booking/domain/event"
	"github.com/airstriplabs/slotbook/internal/booking/domain/participantslot"
	"github.com/airstriplabs/slotbook/internal/booking/storage"
	"github.com/airstriplabs/slotbook/internal/platform/logger"
)

var (
	// ErrStoreRequired indicates missing persistence dependencies.
	ErrStoreRequired = errors.New("projection stores are required")
)

// eventStatus maps slot-participant event types onto the row status they
// set. Events outside this map are not projection inputs.
var eventStatus = map[event.Type]participantslot.Status{
	event.TypeParticipantSlotMarkedAvailable:   participantslot.StatusAvailable,
	event.TypeParticipantSlotUnmarkedAvailable: participantslot.StatusUnavailable,
	event.TypeParticipantSlotBooked:            participantslot.StatusBooked,
	event.TypeParticipantSlotCanceled:          participantslot.StatusCanceled,
}

// Applier folds slot-participant events into SlotRow records.
type Applier struct {
	rows       storage.SlotRowStore
	watermarks storage.WatermarkStore
	log        *logger.Logger
	now        func() time.Time
}

// NewApplier builds an Applier. The logger defaults to a no-op when nil.
func NewApplier(rows storage.SlotRowStore, watermarks storage.WatermarkStore, log *logger.Logger) (*Applier, error) {
	if rows == nil || watermarks == nil {
		return nil, ErrStoreRequired
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Applier{
		rows:       rows,
		watermarks: watermarks,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// Apply upserts the read-model row for one slot-participant event and
// advances the stream's watermark. Events at or below the watermark are
// skipped so redelivery cannot regress the row. Non-projection event types
// are acknowledged without effect.
func (a *Applier) Apply(ctx context.Context, evt event.Event) error {
	status, ok := eventStatus[evt.Type]
	if !ok {
		a.log.Debug("skipping non-projection event", "event_type", evt.Type, "stream_id", evt.StreamID)
		return nil
	}

	wm, err := a.watermarks.GetProjectionWatermark(ctx, evt.StreamID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("load watermark for %s: %w", evt.StreamID, err)
	}
	if evt.Seq <= wm.AppliedSeq {
		a.log.Debug("event already projected", "stream_id", evt.StreamID, "seq", evt.Seq, "applied_seq", wm.AppliedSeq)
		return nil
	}

	row, err := rowFromEvent(evt, status)
	if err != nil {
		return err
	}
	if err := a.rows.UpsertSlotRow(ctx, row); err != nil {
		return fmt.Errorf("upsert slot row %s/%s: %w", row.SlotID, row.ParticipantID, err)
	}

	wm.StreamID = evt.StreamID
	wm.AppliedSeq = evt.Seq
	wm.ExpectedNextSeq = evt.Seq + 1
	wm.UpdatedAt = a.now()
	if err := a.watermarks.SaveProjectionWatermark(ctx, wm); err != nil {
		return fmt.Errorf("save watermark for %s: %w", evt.StreamID, err)
	}
	return nil
}

// rowFromEvent derives the denormalized row an event produces.
func rowFromEvent(evt event.Event, status participantslot.Status) (storage.SlotRow, error) {
	var payload participantslot.Payload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return storage.SlotRow{}, fmt.Errorf("decode payload for %s seq %d: %w", evt.StreamID, evt.Seq, err)
	}
	if strings.TrimSpace(payload.SlotID) == "" || strings.TrimSpace(payload.ParticipantID) == "" {
		return storage.SlotRow{}, fmt.Errorf("event %s seq %d misses slot or participant id", evt.StreamID, evt.Seq)
	}
	// Booked and canceled rows keep the booking id they transitioned under;
	// only availability rows carry the sentinel.
	bookingID := payload.BookingID
	if status == participantslot.StatusAvailable || status == participantslot.StatusUnavailable {
		bookingID = storage.NotBookedSentinel
	}
	return storage.SlotRow{
		SlotID:          payload.SlotID,
		ParticipantID:   payload.ParticipantID,
		ParticipantType: payload.ParticipantType,
		Status:          status,
		BookingID:       bookingID,
		UpdatedAt:       evt.Timestamp,
	}, nil
}
