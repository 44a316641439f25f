package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/airstriplabs/slotbook/internal/booking/domain/event"
	"github.com/airstriplabs/slotbook/internal/booking/storage"
	"github.com/airstriplabs/slotbook/internal/booking/storage/integrity"
)

const eventColumns = `stream_id, seq, event_type, timestamp, request_id, entity_type, entity_id, payload_json, event_hash, prev_event_hash, chain_hash`

// AppendEvent atomically appends one event and returns it with its sequence
// and integrity fields set.
func (s *Store) AppendEvent(ctx context.Context, evt event.Event) (event.Event, error) {
	stored, err := s.BatchAppendEvents(ctx, []event.Event{evt})
	if err != nil {
		return event.Event{}, err
	}
	return stored[0], nil
}

// BatchAppendEvents atomically appends multiple events in a single
// transaction.
//
// All events must belong to the same stream. Sequence numbers are allocated
// contiguously, and chain hashes link each event to its predecessor,
// including the last previously stored event for the first item in the batch.
// On any failure nothing is committed, so partial batches are never
// observable.
func (s *Store) BatchAppendEvents(ctx context.Context, events []event.Event) ([]event.Event, error) {
	if len(events) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if s.eventRegistry == nil {
		return nil, fmt.Errorf("event registry is required")
	}

	// Validate all events before opening a transaction.
	validated := make([]event.Event, len(events))
	for i, evt := range events {
		v, err := s.eventRegistry.ValidateForAppend(evt)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		if v.Timestamp.IsZero() {
			v.Timestamp = time.Now().UTC()
		}
		v.Timestamp = v.Timestamp.UTC().Truncate(time.Millisecond)
		validated[i] = v
	}

	streamID := validated[0].StreamID
	for i, evt := range validated {
		if evt.StreamID != streamID {
			return nil, fmt.Errorf("event %d: stream mismatch %q vs %q", i, evt.StreamID, streamID)
		}
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO event_seq (stream_id, next_seq) VALUES (?, 1)",
		streamID,
	); err != nil {
		return nil, fmt.Errorf("init event seq: %w", err)
	}

	var baseSeq int64
	if err := tx.QueryRowContext(ctx,
		"SELECT next_seq FROM event_seq WHERE stream_id = ?",
		streamID,
	).Scan(&baseSeq); err != nil {
		return nil, fmt.Errorf("get event seq: %w", err)
	}

	// Load previous chain hash for linking the first event in the batch.
	prevChainHash := ""
	if baseSeq > 1 {
		if err := tx.QueryRowContext(ctx,
			"SELECT chain_hash FROM events WHERE stream_id = ? AND seq = ?",
			streamID, baseSeq-1,
		).Scan(&prevChainHash); err != nil {
			return nil, fmt.Errorf("load previous event: %w", err)
		}
	}

	stored := make([]event.Event, len(validated))
	for i, evt := range validated {
		evt.Seq = baseSeq + int64(i)

		hash, err := integrity.EventHash(evt)
		if err != nil {
			return nil, fmt.Errorf("event %d hash: %w", i, err)
		}
		evt.Hash = hash

		chainHash, err := integrity.ChainHash(evt, prevChainHash)
		if err != nil {
			return nil, fmt.Errorf("event %d chain hash: %w", i, err)
		}
		evt.PrevHash = prevChainHash
		evt.ChainHash = chainHash

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO events ("+eventColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			evt.StreamID,
			evt.Seq,
			string(evt.Type),
			toMillis(evt.Timestamp),
			evt.RequestID,
			evt.EntityType,
			evt.EntityID,
			evt.PayloadJSON,
			evt.Hash,
			evt.PrevHash,
			evt.ChainHash,
		); err != nil {
			if isConstraintError(err) {
				return nil, fmt.Errorf("append event %d: sequence conflict: %w", i, err)
			}
			return nil, fmt.Errorf("append event %d: %w", i, err)
		}

		if err := s.enqueueOutboxForEvent(ctx, tx, evt); err != nil {
			return nil, err
		}

		prevChainHash = chainHash
		stored[i] = evt
	}

	nextSeq := baseSeq + int64(len(validated))
	if _, err := tx.ExecContext(ctx,
		"UPDATE event_seq SET next_seq = ? WHERE stream_id = ?",
		nextSeq, streamID,
	); err != nil {
		return nil, fmt.Errorf("update event seq: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return stored, nil
}

// enqueueOutboxForEvent routes a just-appended event into the outbox feeding
// its downstream consumer. Slot events feed propagation, participant-slot
// events feed the read-model projection. Enqueueing happens inside the append
// transaction so an event and its delivery obligation commit together.
func (s *Store) enqueueOutboxForEvent(ctx context.Context, tx *sql.Tx, evt event.Event) error {
	switch evt.EntityType {
	case event.EntityTypeSlot:
		if !s.propagationOutboxEnabled {
			return nil
		}
		return enqueueOutboxRow(ctx, tx, propagationOutboxTable, evt)
	case event.EntityTypeParticipantSlot:
		if !s.projectionApplyOutboxEnabled {
			return nil
		}
		return enqueueOutboxRow(ctx, tx, projectionApplyOutboxTable, evt)
	}
	return nil
}

// ListEvents returns events for a stream ordered by sequence ascending,
// starting after afterSeq.
func (s *Store) ListEvents(ctx context.Context, streamID string, afterSeq int64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	streamID = strings.TrimSpace(streamID)
	if streamID == "" {
		return nil, fmt.Errorf("stream id is required")
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE stream_id = ? AND seq > ? ORDER BY seq ASC LIMIT ?",
		streamID, afterSeq, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

// GetEventBySeq retrieves a specific event by sequence number.
func (s *Store) GetEventBySeq(ctx context.Context, streamID string, seq int64) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if s == nil || s.sqlDB == nil {
		return event.Event{}, fmt.Errorf("storage is not configured")
	}
	streamID = strings.TrimSpace(streamID)
	if streamID == "" {
		return event.Event{}, fmt.Errorf("stream id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE stream_id = ? AND seq = ?",
		streamID, seq,
	)
	evt, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return event.Event{}, storage.ErrNotFound
	}
	if err != nil {
		return event.Event{}, err
	}
	return evt, nil
}

// GetLatestEventSeq returns the latest event sequence for a stream, zero when
// the stream has no events.
func (s *Store) GetLatestEventSeq(ctx context.Context, streamID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	streamID = strings.TrimSpace(streamID)
	if streamID == "" {
		return 0, fmt.Errorf("stream id is required")
	}

	var seq sql.NullInt64
	err := s.sqlDB.QueryRowContext(ctx,
		"SELECT MAX(seq) FROM events WHERE stream_id = ?",
		streamID,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("get latest event seq: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

// ListStreamIDs returns all stream ids present in the journal.
func (s *Store) ListStreamIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, "SELECT DISTINCT stream_id FROM events ORDER BY stream_id")
	if err != nil {
		return nil, fmt.Errorf("list stream ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stream id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// VerifyEventIntegrity validates sequence contiguity and the hash chain for
// every stream in the journal.
func (s *Store) VerifyEventIntegrity(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	streamIDs, err := s.ListStreamIDs(ctx)
	if err != nil {
		return err
	}
	for _, streamID := range streamIDs {
		if err := s.verifyStreamEvents(ctx, streamID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) verifyStreamEvents(ctx context.Context, streamID string) error {
	var lastSeq int64
	prevChainHash := ""
	for {
		events, err := s.ListEvents(ctx, streamID, lastSeq, 200)
		if err != nil {
			return fmt.Errorf("list events stream_id=%s: %w", streamID, err)
		}
		if len(events) == 0 {
			return nil
		}
		for _, evt := range events {
			if evt.Seq != lastSeq+1 {
				return fmt.Errorf("event sequence gap stream_id=%s expected=%d got=%d", streamID, lastSeq+1, evt.Seq)
			}
			if evt.Seq == 1 && evt.PrevHash != "" {
				return fmt.Errorf("first event prev hash must be empty stream_id=%s", streamID)
			}
			if evt.Seq > 1 && evt.PrevHash != prevChainHash {
				return fmt.Errorf("prev hash mismatch stream_id=%s seq=%d", streamID, evt.Seq)
			}

			hash, err := integrity.EventHash(evt)
			if err != nil {
				return fmt.Errorf("compute event hash stream_id=%s seq=%d: %w", streamID, evt.Seq, err)
			}
			if hash != evt.Hash {
				return fmt.Errorf("event hash mismatch stream_id=%s seq=%d", streamID, evt.Seq)
			}

			chainHash, err := integrity.ChainHash(evt, prevChainHash)
			if err != nil {
				return fmt.Errorf("compute chain hash stream_id=%s seq=%d: %w", streamID, evt.Seq, err)
			}
			if chainHash != evt.ChainHash {
				return fmt.Errorf("chain hash mismatch stream_id=%s seq=%d", streamID, evt.Seq)
			}

			prevChainHash = evt.ChainHash
			lastSeq = evt.Seq
		}
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (event.Event, error) {
	var (
		evt       event.Event
		eventType string
		timestamp int64
	)
	if err := row.Scan(
		&evt.StreamID,
		&evt.Seq,
		&eventType,
		&timestamp,
		&evt.RequestID,
		&evt.EntityType,
		&evt.EntityID,
		&evt.PayloadJSON,
		&evt.Hash,
		&evt.PrevHash,
		&evt.ChainHash,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return event.Event{}, err
		}
		return event.Event{}, fmt.Errorf("scan event: %w", err)
	}
	evt.Type = event.Type(eventType)
	evt.Timestamp = fromMillis(timestamp)
	return evt, nil
}
