package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/airstriplabs/slotbook/internal/booking/storage"
)

// GetProjectionWatermark returns the watermark for a stream. Returns
// storage.ErrNotFound when no watermark exists.
func (s *Store) GetProjectionWatermark(ctx context.Context, streamID string) (storage.ProjectionWatermark, error) {
	streamID = strings.TrimSpace(streamID)
	if streamID == "" {
		return storage.ProjectionWatermark{}, fmt.Errorf("stream id is required")
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT stream_id, applied_seq, expected_next_seq, updated_at FROM projection_watermarks WHERE stream_id = ?`,
		streamID,
	)
	var wm storage.ProjectionWatermark
	var updatedAtMillis int64
	err := row.Scan(&wm.StreamID, &wm.AppliedSeq, &wm.ExpectedNextSeq, &updatedAtMillis)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ProjectionWatermark{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.ProjectionWatermark{}, fmt.Errorf("get projection watermark: %w", err)
	}
	wm.UpdatedAt = fromMillis(updatedAtMillis)
	return wm, nil
}

// SaveProjectionWatermark upserts the watermark for a stream.
func (s *Store) SaveProjectionWatermark(ctx context.Context, wm storage.ProjectionWatermark) error {
	wm.StreamID = strings.TrimSpace(wm.StreamID)
	if wm.StreamID == "" {
		return fmt.Errorf("stream id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO projection_watermarks (stream_id, applied_seq, expected_next_seq, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (stream_id) DO UPDATE SET
		     applied_seq = excluded.applied_seq,
		     expected_next_seq = excluded.expected_next_seq,
		     updated_at = excluded.updated_at`,
		wm.StreamID,
		wm.AppliedSeq,
		wm.ExpectedNextSeq,
		toMillis(wm.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save projection watermark: %w", err)
	}
	return nil
}

// ListProjectionWatermarks returns all watermarks ordered by stream id.
func (s *Store) ListProjectionWatermarks(ctx context.Context) ([]storage.ProjectionWatermark, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT stream_id, applied_seq, expected_next_seq, updated_at FROM projection_watermarks ORDER BY stream_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list projection watermarks: %w", err)
	}
	defer rows.Close()

	var watermarks []storage.ProjectionWatermark
	for rows.Next() {
		var wm storage.ProjectionWatermark
		var updatedAtMillis int64
		if err := rows.Scan(&wm.StreamID, &wm.AppliedSeq, &wm.ExpectedNextSeq, &updatedAtMillis); err != nil {
			return nil, fmt.Errorf("scan projection watermark: %w", err)
		}
		wm.UpdatedAt = fromMillis(updatedAtMillis)
		watermarks = append(watermarks, wm)
	}
	return watermarks, rows.Err()
}
