// Package replay rebuilds aggregate state by folding a stream's journal in
// order, detecting sequence gaps as it goes.
package replay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/airstriplabs/slotbook/internal/booking/domain/event"
)

const defaultPageSize = 200

var (
	// ErrEventStoreRequired indicates a missing event store.
	ErrEventStoreRequired = errors.New("event store is required")
	// ErrApplierRequired indicates a missing applier.
	ErrApplierRequired = errors.New("applier is required")
	// ErrStreamIDRequired indicates a missing stream id.
	ErrStreamIDRequired = errors.New("stream id is required")
)

// EventStore lists events for replay.
type EventStore interface {
	ListEvents(ctx context.Context, streamID string, afterSeq int64, limit int) ([]event.Event, error)
}

// Applier applies one event to state.
type Applier func(state any, evt event.Event) any

// Options configures replay behavior.
type Options struct {
	AfterSeq int64
	UntilSeq int64
	PageSize int
}

// Result captures replay outcomes.
type Result struct {
	State   any
	LastSeq int64
	Applied int
}

// Replay folds a stream's events in order starting from the provided state.
// A non-contiguous sequence aborts the replay: the journal's atomic batch
// append never commits gaps, so one appearing means corruption.
func Replay(ctx context.Context, store EventStore, apply Applier, streamID string, state any, options Options) (Result, error) {
	if store == nil {
		return Result{}, ErrEventStoreRequired
	}
	if apply == nil {
		return Result{}, ErrApplierRequired
	}
	streamID = strings.TrimSpace(streamID)
	if streamID == "" {
		return Result{}, ErrStreamIDRequired
	}

	pageSize := options.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	result := Result{State: state, LastSeq: options.AfterSeq}
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		events, err := store.ListEvents(ctx, streamID, result.LastSeq, pageSize)
		if err != nil {
			return result, err
		}
		if len(events) == 0 {
			return result, nil
		}
		for _, evt := range events {
			if options.UntilSeq > 0 && evt.Seq > options.UntilSeq {
				return result, nil
			}
			expectedSeq := result.LastSeq + 1
			if evt.Seq != expectedSeq {
				return result, fmt.Errorf("event sequence gap: expected %d got %d", expectedSeq, evt.Seq)
			}
			result.State = apply(result.State, evt)
			result.LastSeq = evt.Seq
			result.Applied++
		}
	}
}
