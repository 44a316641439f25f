package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/airstriplabs/slotbook/internal/booking/domain/participantslot"
	"github.com/airstriplabs/slotbook/internal/booking/storage"
)

const slotRowColumns = `slot_id, participant_id, participant_type, status, booking_id, updated_at`

// UpsertSlotRow writes the read-model row for a (slot, participant) pair.
// The booking id falls back to the not-booked sentinel when empty.
func (s *Store) UpsertSlotRow(ctx context.Context, row storage.SlotRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	row.SlotID = strings.TrimSpace(row.SlotID)
	row.ParticipantID = strings.TrimSpace(row.ParticipantID)
	if row.SlotID == "" || row.ParticipantID == "" {
		return fmt.Errorf("slot id and participant id are required")
	}
	if row.BookingID == "" {
		row.BookingID = storage.NotBookedSentinel
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO participant_slot_rows (`+slotRowColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (slot_id, participant_id) DO UPDATE SET
		     participant_type = excluded.participant_type,
		     status = excluded.status,
		     booking_id = excluded.booking_id,
		     updated_at = excluded.updated_at`,
		row.SlotID,
		row.ParticipantID,
		row.ParticipantType,
		string(row.Status),
		row.BookingID,
		toMillis(row.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert slot row: %w", err)
	}
	return nil
}

// GetSlotRow returns the row for one (slot, participant) pair.
func (s *Store) GetSlotRow(ctx context.Context, slotID, participantID string) (storage.SlotRow, error) {
	if err := ctx.Err(); err != nil {
		return storage.SlotRow{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.SlotRow{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+slotRowColumns+` FROM participant_slot_rows WHERE slot_id = ? AND participant_id = ?`,
		strings.TrimSpace(slotID),
		strings.TrimSpace(participantID),
	)
	record, err := scanSlotRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.SlotRow{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.SlotRow{}, err
	}
	return record, nil
}

// ListSlotRowsByParticipant returns all rows for a participant ordered by
// slot id.
func (s *Store) ListSlotRowsByParticipant(ctx context.Context, participantID string) ([]storage.SlotRow, error) {
	return s.listSlotRows(ctx, participantID, "")
}

// ListSlotRowsByParticipantAndStatus returns a participant's rows filtered by
// status.
func (s *Store) ListSlotRowsByParticipantAndStatus(ctx context.Context, participantID string, status participantslot.Status) ([]storage.SlotRow, error) {
	return s.listSlotRows(ctx, participantID, string(status))
}

func (s *Store) listSlotRows(ctx context.Context, participantID, status string) ([]storage.SlotRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return nil, fmt.Errorf("participant id is required")
	}

	var (
		rows *sql.Rows
		err  error
	)
	if status == "" {
		rows, err = s.sqlDB.QueryContext(ctx,
			`SELECT `+slotRowColumns+` FROM participant_slot_rows WHERE participant_id = ? ORDER BY slot_id`,
			participantID,
		)
	} else {
		rows, err = s.sqlDB.QueryContext(ctx,
			`SELECT `+slotRowColumns+` FROM participant_slot_rows WHERE participant_id = ? AND status = ? ORDER BY slot_id`,
			participantID,
			status,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("list slot rows: %w", err)
	}
	defer rows.Close()

	records := []storage.SlotRow{}
	for rows.Next() {
		record, err := scanSlotRow(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// DeleteAllSlotRows clears the read model ahead of a rebuild from the
// journal.
func (s *Store) DeleteAllSlotRows(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if _, err := s.sqlDB.ExecContext(ctx, "DELETE FROM participant_slot_rows"); err != nil {
		return fmt.Errorf("delete slot rows: %w", err)
	}
	return nil
}

func scanSlotRow(row rowScanner) (storage.SlotRow, error) {
	var (
		record    storage.SlotRow
		status    string
		updatedAt int64
	)
	if err := row.Scan(
		&record.SlotID,
		&record.ParticipantID,
		&record.ParticipantType,
		&status,
		&record.BookingID,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.SlotRow{}, err
		}
		return storage.SlotRow{}, fmt.Errorf("scan slot row: %w", err)
	}
	record.Status = participantslot.Status(status)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}
