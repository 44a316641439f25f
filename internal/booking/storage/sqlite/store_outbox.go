package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/airstriplabs/slotbook/internal/booking/domain/event"
)

// Outbox table names. Both share the same schema and lifecycle; they differ
// only in which consumer drains them.
const (
	propagationOutboxTable     = "propagation_outbox"
	projectionApplyOutboxTable = "projection_apply_outbox"
)

const (
	outboxDeadLetterThreshold = 8
	outboxProcessingLease     = 2 * time.Minute
)

type outboxRow struct {
	StreamID     string
	Seq          int64
	EventType    string
	AttemptCount int
}

// OutboxSummary reports queue depth by status and the oldest retry-eligible
// row.
type OutboxSummary struct {
	PendingCount        int
	ProcessingCount     int
	FailedCount         int
	DeadCount           int
	OldestPendingStream string
	OldestPendingSeq    int64
	OldestPendingDueAt  time.Time
}

// OutboxEntry describes one outbox row for inspection tooling.
type OutboxEntry struct {
	StreamID      string
	Seq           int64
	EventType     event.Type
	Status        string
	AttemptCount  int
	NextAttemptAt time.Time
	LastError     string
	UpdatedAt     time.Time
}

func enqueueOutboxRow(ctx context.Context, tx *sql.Tx, table string, evt event.Event) error {
	enqueuedAt := toMillis(time.Now().UTC())
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO `+table+` (
		     stream_id, seq, event_type, status, attempt_count, next_attempt_at, last_error, updated_at
		 ) VALUES (?, ?, ?, 'pending', 0, ?, '', ?)
		 ON CONFLICT(stream_id, seq) DO NOTHING`,
		evt.StreamID,
		evt.Seq,
		string(evt.Type),
		enqueuedAt,
		enqueuedAt,
	); err != nil {
		return fmt.Errorf("enqueue %s: %w", table, err)
	}
	return nil
}

// ProcessPropagationOutbox claims due propagation rows and hands the stored
// slot events to the callback. Successful rows are removed.
func (s *Store) ProcessPropagationOutbox(ctx context.Context, now time.Time, limit int, apply func(context.Context, event.Event) error) (int, error) {
	return s.processOutbox(ctx, propagationOutboxTable, now, limit, apply)
}

// ProcessProjectionApplyOutbox claims due projection rows and hands the
// stored participant-slot events to the callback. Successful rows are
// removed.
func (s *Store) ProcessProjectionApplyOutbox(ctx context.Context, now time.Time, limit int, apply func(context.Context, event.Event) error) (int, error) {
	return s.processOutbox(ctx, projectionApplyOutboxTable, now, limit, apply)
}

func (s *Store) processOutbox(ctx context.Context, table string, now time.Time, limit int, apply func(context.Context, event.Event) error) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	if apply == nil {
		return 0, fmt.Errorf("outbox apply callback is required")
	}
	if limit <= 0 {
		return 0, nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	// The claim transaction contends with appends from the other process
	// role, so it retries through busy errors instead of failing the pass.
	var rows []outboxRow
	if err := withBusyRetry(ctx, func() error {
		claimed, claimErr := s.claimOutboxDue(ctx, table, now, limit)
		if claimErr != nil {
			return claimErr
		}
		rows = claimed
		return nil
	}); err != nil {
		return 0, err
	}

	processed := 0
	for _, row := range rows {
		storedEvent, loadErr := s.GetEventBySeq(ctx, row.StreamID, row.Seq)
		if loadErr != nil {
			attempt := row.AttemptCount + 1
			nextAttempt := now.Add(outboxRetryBackoff(attempt))
			if err := s.markOutboxRetry(ctx, table, row, now, attempt, nextAttempt, fmt.Sprintf("load event: %v", loadErr)); err != nil {
				return processed, err
			}
			processed++
			continue
		}

		if applyErr := apply(ctx, storedEvent); applyErr != nil {
			attempt := row.AttemptCount + 1
			nextAttempt := now.Add(outboxRetryBackoff(attempt))
			if err := s.markOutboxRetry(ctx, table, row, now, attempt, nextAttempt, applyErr.Error()); err != nil {
				return processed, err
			}
			processed++
			continue
		}

		if err := s.completeOutboxRow(ctx, table, row); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

// claimOutboxDue claims up to limit due rows with a processing lease. A row
// is never claimed while an earlier-seq row for the same stream is still
// queued, so delivery stays ordered per source stream.
func (s *Store) claimOutboxDue(ctx context.Context, table string, now time.Time, limit int) ([]outboxRow, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin outbox claim tx: %w", err)
	}
	defer tx.Rollback()

	staleBefore := now.Add(-outboxProcessingLease)
	rows, err := tx.QueryContext(ctx,
		`SELECT stream_id, seq, event_type, attempt_count
		 FROM `+table+` o
		 WHERE (
		     (status IN ('pending', 'failed') AND next_attempt_at <= ?)
		     OR (status = 'processing' AND updated_at <= ?)
		 )
		 AND NOT EXISTS (
		     SELECT 1 FROM `+table+` p
		     WHERE p.stream_id = o.stream_id AND p.seq < o.seq
		 )
		 ORDER BY next_attempt_at, seq
		 LIMIT ?`,
		toMillis(now),
		toMillis(staleBefore),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due outbox rows: %w", err)
	}
	defer rows.Close()

	candidates := make([]outboxRow, 0, limit)
	for rows.Next() {
		var row outboxRow
		if err := rows.Scan(&row.StreamID, &row.Seq, &row.EventType, &row.AttemptCount); err != nil {
			return nil, fmt.Errorf("scan due outbox row: %w", err)
		}
		candidates = append(candidates, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due outbox rows: %w", err)
	}

	claimed := make([]outboxRow, 0, len(candidates))
	for _, candidate := range candidates {
		result, err := tx.ExecContext(ctx,
			`UPDATE `+table+`
			 SET status = 'processing', updated_at = ?
			 WHERE stream_id = ? AND seq = ?
			   AND (
			       (status IN ('pending', 'failed') AND next_attempt_at <= ?)
			       OR (status = 'processing' AND updated_at <= ?)
			   )`,
			toMillis(now),
			candidate.StreamID,
			candidate.Seq,
			toMillis(now),
			toMillis(staleBefore),
		)
		if err != nil {
			return nil, fmt.Errorf("claim outbox row %s/%d: %w", candidate.StreamID, candidate.Seq, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("claim outbox row rows affected %s/%d: %w", candidate.StreamID, candidate.Seq, err)
		}
		if affected == 1 {
			claimed = append(claimed, candidate)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit outbox claim tx: %w", err)
	}
	return claimed, nil
}

func (s *Store) markOutboxRetry(ctx context.Context, table string, row outboxRow, now time.Time, attempt int, nextAttempt time.Time, lastError string) error {
	status := "failed"
	if attempt >= outboxDeadLetterThreshold {
		status = "dead"
	}
	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE `+table+`
		 SET status = ?, attempt_count = ?, next_attempt_at = ?, last_error = ?, updated_at = ?
		 WHERE stream_id = ? AND seq = ? AND status = 'processing'`,
		status,
		attempt,
		toMillis(nextAttempt),
		lastError,
		toMillis(now),
		row.StreamID,
		row.Seq,
	)
	if err != nil {
		return fmt.Errorf("mark outbox retry for row %s/%d: %w", row.StreamID, row.Seq, err)
	}
	return ensureOutboxSingleRow(result, row, "mark outbox retry for row", "updated")
}

func (s *Store) completeOutboxRow(ctx context.Context, table string, row outboxRow) error {
	result, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM `+table+` WHERE stream_id = ? AND seq = ? AND status = 'processing'`,
		row.StreamID,
		row.Seq,
	)
	if err != nil {
		return fmt.Errorf("complete outbox row %s/%d: %w", row.StreamID, row.Seq, err)
	}
	return ensureOutboxSingleRow(result, row, "complete outbox row", "deleted")
}

func ensureOutboxSingleRow(result sql.Result, row outboxRow, operation, verb string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected %s/%d: %w", operation, row.StreamID, row.Seq, err)
	}
	if affected != 1 {
		return fmt.Errorf("%s %s/%d: expected 1 row %s, got %d", operation, row.StreamID, row.Seq, verb, affected)
	}
	return nil
}

// GetPropagationOutboxSummary returns propagation queue depth by status.
func (s *Store) GetPropagationOutboxSummary(ctx context.Context) (OutboxSummary, error) {
	return s.outboxSummary(ctx, propagationOutboxTable)
}

// GetProjectionApplyOutboxSummary returns projection queue depth by status.
func (s *Store) GetProjectionApplyOutboxSummary(ctx context.Context) (OutboxSummary, error) {
	return s.outboxSummary(ctx, projectionApplyOutboxTable)
}

func (s *Store) outboxSummary(ctx context.Context, table string) (OutboxSummary, error) {
	if err := ctx.Err(); err != nil {
		return OutboxSummary{}, err
	}
	if s == nil || s.sqlDB == nil {
		return OutboxSummary{}, fmt.Errorf("storage is not configured")
	}

	summary := OutboxSummary{}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM `+table+` GROUP BY status`,
	)
	if err != nil {
		return OutboxSummary{}, fmt.Errorf("query outbox summary counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return OutboxSummary{}, fmt.Errorf("scan outbox summary count: %w", err)
		}
		switch strings.ToLower(strings.TrimSpace(status)) {
		case "pending":
			summary.PendingCount = count
		case "processing":
			summary.ProcessingCount = count
		case "failed":
			summary.FailedCount = count
		case "dead":
			summary.DeadCount = count
		}
	}
	if err := rows.Err(); err != nil {
		return OutboxSummary{}, fmt.Errorf("iterate outbox summary counts: %w", err)
	}

	var (
		streamID    string
		seq         int64
		nextAttempt int64
	)
	err = s.sqlDB.QueryRowContext(ctx,
		`SELECT stream_id, seq, next_attempt_at
		 FROM `+table+`
		 WHERE status IN ('pending', 'failed')
		 ORDER BY next_attempt_at ASC, seq ASC
		 LIMIT 1`,
	).Scan(&streamID, &seq, &nextAttempt)
	if err == nil {
		summary.OldestPendingStream = streamID
		summary.OldestPendingSeq = seq
		summary.OldestPendingDueAt = fromMillis(nextAttempt)
		return summary, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return summary, nil
	}
	return OutboxSummary{}, fmt.Errorf("query oldest pending outbox row: %w", err)
}

// ListPropagationOutboxRows lists propagation rows optionally filtered by
// status.
func (s *Store) ListPropagationOutboxRows(ctx context.Context, status string, limit int) ([]OutboxEntry, error) {
	return s.listOutboxRows(ctx, propagationOutboxTable, status, limit)
}

// ListProjectionApplyOutboxRows lists projection rows optionally filtered by
// status.
func (s *Store) ListProjectionApplyOutboxRows(ctx context.Context, status string, limit int) ([]OutboxEntry, error) {
	return s.listOutboxRows(ctx, projectionApplyOutboxTable, status, limit)
}

func (s *Store) listOutboxRows(ctx context.Context, table, status string, limit int) ([]OutboxEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return []OutboxEntry{}, nil
	}

	normalizedStatus, err := normalizeOutboxStatus(status)
	if err != nil {
		return nil, err
	}

	query := `SELECT stream_id, seq, event_type, status, attempt_count, next_attempt_at, last_error, updated_at
	 FROM ` + table
	args := []any{}
	if normalizedStatus != "" {
		query += " WHERE status = ?"
		args = append(args, normalizedStatus)
	}
	query += " ORDER BY next_attempt_at ASC, seq ASC LIMIT ?"
	args = append(args, limit)

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list outbox rows: %w", err)
	}
	defer rows.Close()

	entries := make([]OutboxEntry, 0, limit)
	for rows.Next() {
		var (
			entry       OutboxEntry
			eventType   string
			nextAttempt int64
			updatedAt   int64
			lastError   sql.NullString
		)
		if err := rows.Scan(
			&entry.StreamID,
			&entry.Seq,
			&eventType,
			&entry.Status,
			&entry.AttemptCount,
			&nextAttempt,
			&lastError,
			&updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		entry.EventType = event.Type(eventType)
		entry.NextAttemptAt = fromMillis(nextAttempt)
		entry.UpdatedAt = fromMillis(updatedAt)
		if lastError.Valid {
			entry.LastError = lastError.String
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}
	return entries, nil
}

func normalizeOutboxStatus(status string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(status))
	if normalized == "" {
		return "", nil
	}
	switch normalized {
	case "pending", "processing", "failed", "dead":
		return normalized, nil
	default:
		return "", fmt.Errorf("invalid outbox status %q", status)
	}
}

// RequeuePropagationOutboxDeadRows transitions up to limit dead propagation
// rows back to pending in deterministic retry order.
func (s *Store) RequeuePropagationOutboxDeadRows(ctx context.Context, limit int, now time.Time) (int, error) {
	return s.requeueOutboxDeadRows(ctx, propagationOutboxTable, limit, now)
}

// RequeueProjectionApplyOutboxDeadRows transitions up to limit dead
// projection rows back to pending in deterministic retry order.
func (s *Store) RequeueProjectionApplyOutboxDeadRows(ctx context.Context, limit int, now time.Time) (int, error) {
	return s.requeueOutboxDeadRows(ctx, projectionApplyOutboxTable, limit, now)
}

func (s *Store) requeueOutboxDeadRows(ctx context.Context, table string, limit int, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return 0, fmt.Errorf("outbox requeue limit must be greater than zero")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	result, err := s.sqlDB.ExecContext(ctx,
		`WITH to_requeue AS (
		     SELECT stream_id, seq
		     FROM `+table+`
		     WHERE status = 'dead'
		     ORDER BY next_attempt_at ASC, seq ASC
		     LIMIT ?
		 )
		 UPDATE `+table+`
		 SET status = 'pending', attempt_count = 0, next_attempt_at = ?, last_error = '', updated_at = ?
		 WHERE status = 'dead'
		   AND EXISTS (
		       SELECT 1 FROM to_requeue
		       WHERE to_requeue.stream_id = `+table+`.stream_id
		         AND to_requeue.seq = `+table+`.seq
		   )`,
		limit,
		toMillis(now),
		toMillis(now),
	)
	if err != nil {
		return 0, fmt.Errorf("requeue dead outbox rows: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("requeue dead outbox rows affected: %w", err)
	}
	return int(affected), nil
}

func outboxRetryBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	backoff := time.Second << (attempt - 1)
	if backoff > 5*time.Minute {
		return 5 * time.Minute
	}
	return backoff
}
