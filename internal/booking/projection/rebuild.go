package projection

import (
	"context"
	"fmt"
	"time"

	"github.com/airstriplabs/slotbook/internal/booking/storage"
	"github.com/airstriplabs/slotbook/internal/platform/logger"
)

const rebuildPageSize = 200

// RebuildResult summarizes one read-model rebuild.
type RebuildResult struct {
	Streams int
	Applied int
}

// Rebuilder reconstructs the read model from the journal alone. It exists
// for recovery: the journal is the source of truth and the rows are
// disposable.
type Rebuilder struct {
	events     storage.EventStore
	rows       storage.SlotRowStore
	watermarks storage.WatermarkStore
	log        *logger.Logger
	now        func() time.Time
}

// NewRebuilder builds a Rebuilder. The logger defaults to a no-op when nil.
func NewRebuilder(events storage.EventStore, rows storage.SlotRowStore, watermarks storage.WatermarkStore, log *logger.Logger) (*Rebuilder, error) {
	if events == nil || rows == nil || watermarks == nil {
		return nil, ErrStoreRequired
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Rebuilder{
		events:     events,
		rows:       rows,
		watermarks: watermarks,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// Rebuild drops every row and refolds all slot-participant streams from the
// journal. Watermarks are rewritten to the replayed positions so the live
// applier resumes cleanly afterwards.
func (r *Rebuilder) Rebuild(ctx context.Context) (RebuildResult, error) {
	if err := r.rows.DeleteAllSlotRows(ctx); err != nil {
		return RebuildResult{}, fmt.Errorf("clear slot rows: %w", err)
	}

	streamIDs, err := r.events.ListStreamIDs(ctx)
	if err != nil {
		return RebuildResult{}, fmt.Errorf("list streams: %w", err)
	}

	var result RebuildResult
	for _, streamID := range streamIDs {
		applied, lastSeq, err := r.rebuildStream(ctx, streamID)
		if err != nil {
			return result, err
		}
		if applied == 0 {
			continue
		}
		result.Streams++
		result.Applied += applied
		wm := storage.ProjectionWatermark{
			StreamID:        streamID,
			AppliedSeq:      lastSeq,
			ExpectedNextSeq: lastSeq + 1,
			UpdatedAt:       r.now(),
		}
		if err := r.watermarks.SaveProjectionWatermark(ctx, wm); err != nil {
			return result, fmt.Errorf("save watermark for %s: %w", streamID, err)
		}
	}

	r.log.Info("read model rebuilt", "streams", result.Streams, "events_applied", result.Applied)
	return result, nil
}

func (r *Rebuilder) rebuildStream(ctx context.Context, streamID string) (applied int, lastSeq int64, err error) {
	for {
		events, err := r.events.ListEvents(ctx, streamID, lastSeq, rebuildPageSize)
		if err != nil {
			return applied, lastSeq, fmt.Errorf("list events for %s: %w", streamID, err)
		}
		if len(events) == 0 {
			return applied, lastSeq, nil
		}
		for _, evt := range events {
			lastSeq = evt.Seq
			status, ok := eventStatus[evt.Type]
			if !ok {
				continue
			}
			row, err := rowFromEvent(evt, status)
			if err != nil {
				return applied, lastSeq, err
			}
			if err := r.rows.UpsertSlotRow(ctx, row); err != nil {
				return applied, lastSeq, fmt.Errorf("upsert slot row %s/%s: %w", row.SlotID, row.ParticipantID, err)
			}
			applied++
		}
	}
}
