// Package storage defines the persistence boundaries for the booking write
// path and its projections.
package storage

import (
	"context"
	"time"

	"github.com/airstriplabs/slotbook/internal/booking/domain/event"
	"github.com/airstriplabs/slotbook/internal/booking/domain/participantslot"
	apperrors "github.com/airstriplabs/slotbook/internal/platform/errors"
)

// ErrNotFound indicates a requested persistence record is missing. Callers
// use this to differentiate legitimate "no such entity" states from transport
// or data corruption failures.
var ErrNotFound = apperrors.New(apperrors.CodeBookingNotFound, "record not found")

// NotBookedSentinel is the booking id stored on a slot row while the
// participant holds no booking for the slot.
const NotBookedSentinel = "NOT_BOOKED"

// SlotRow is the denormalized read-model row answering participant-centric
// queries. One row exists per (slot, participant) pair.
type SlotRow struct {
	SlotID          string
	ParticipantID   string
	ParticipantType string
	Status          participantslot.Status
	BookingID       string
	UpdatedAt       time.Time
}

// ProjectionWatermark records read-model progress through one stream's
// journal. ExpectedNextSeq lets operators spot sequence gaps.
type ProjectionWatermark struct {
	StreamID        string
	AppliedSeq      int64
	ExpectedNextSeq int64
	UpdatedAt       time.Time
}

// EventStore owns the event journal boundary that drives replay, propagation
// and projections.
type EventStore interface {
	// AppendEvent atomically appends one event and returns it with its
	// sequence assigned.
	AppendEvent(ctx context.Context, evt event.Event) (event.Event, error)
	// BatchAppendEvents atomically appends events to one stream. Sequence
	// numbers are allocated contiguously; on failure nothing is committed.
	BatchAppendEvents(ctx context.Context, events []event.Event) ([]event.Event, error)
	// ListEvents returns events ordered by sequence ascending.
	ListEvents(ctx context.Context, streamID string, afterSeq int64, limit int) ([]event.Event, error)
	// GetEventBySeq retrieves a specific event by sequence number.
	GetEventBySeq(ctx context.Context, streamID string, seq int64) (event.Event, error)
	// GetLatestEventSeq returns the latest sequence for a stream, zero when
	// the stream is empty.
	GetLatestEventSeq(ctx context.Context, streamID string) (int64, error)
	// ListStreamIDs returns all stream ids present in the journal.
	ListStreamIDs(ctx context.Context) ([]string, error)
}

// SlotRowStore owns the participant-centric read model.
type SlotRowStore interface {
	UpsertSlotRow(ctx context.Context, row SlotRow) error
	GetSlotRow(ctx context.Context, slotID, participantID string) (SlotRow, error)
	ListSlotRowsByParticipant(ctx context.Context, participantID string) ([]SlotRow, error)
	ListSlotRowsByParticipantAndStatus(ctx context.Context, participantID string, status participantslot.Status) ([]SlotRow, error)
	// DeleteAllSlotRows clears the read model ahead of a rebuild.
	DeleteAllSlotRows(ctx context.Context) error
}

// WatermarkStore tracks projection progress per stream.
type WatermarkStore interface {
	GetProjectionWatermark(ctx context.Context, streamID string) (ProjectionWatermark, error)
	SaveProjectionWatermark(ctx context.Context, wm ProjectionWatermark) error
	ListProjectionWatermarks(ctx context.Context) ([]ProjectionWatermark, error)
}
