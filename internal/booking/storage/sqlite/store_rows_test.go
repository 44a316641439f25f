package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/airstriplabs/slotbook/internal/booking/domain/participantslot"
	"github.com/airstriplabs/slotbook/internal/booking/storage"
)

func TestUpsertSlotRowDefaultsSentinel(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.UpsertSlotRow(ctx, storage.SlotRow{
		SlotID:          "SL001",
		ParticipantID:   "STUD001",
		ParticipantType: "STUDENT",
		Status:          participantslot.StatusAvailable,
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	row, err := store.GetSlotRow(ctx, "SL001", "STUD001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row.BookingID != storage.NotBookedSentinel {
		t.Fatalf("booking id = %q, want %q", row.BookingID, storage.NotBookedSentinel)
	}
	if row.Status != participantslot.StatusAvailable {
		t.Fatalf("status = %s, want AVAILABLE", row.Status)
	}
}

func TestUpsertSlotRowOverwrites(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := storage.SlotRow{
		SlotID:          "SL001",
		ParticipantID:   "STUD001",
		ParticipantType: "STUDENT",
		Status:          participantslot.StatusAvailable,
		UpdatedAt:       time.Unix(1700000000, 0).UTC(),
	}
	if err := store.UpsertSlotRow(ctx, base); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	base.Status = participantslot.StatusBooked
	base.BookingID = "BOOK001"
	base.UpdatedAt = base.UpdatedAt.Add(time.Minute)
	if err := store.UpsertSlotRow(ctx, base); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	row, err := store.GetSlotRow(ctx, "SL001", "STUD001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row.Status != participantslot.StatusBooked || row.BookingID != "BOOK001" {
		t.Fatalf("row = %+v, want BOOKED/BOOK001", row)
	}
}

func TestListSlotRowsByParticipantAndStatus(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rows := []storage.SlotRow{
		{SlotID: "SL001", ParticipantID: "STUD001", ParticipantType: "STUDENT", Status: participantslot.StatusBooked, BookingID: "BOOK001"},
		{SlotID: "SL002", ParticipantID: "STUD001", ParticipantType: "STUDENT", Status: participantslot.StatusAvailable},
		{SlotID: "SL003", ParticipantID: "INST001", ParticipantType: "INSTRUCTOR", Status: participantslot.StatusBooked, BookingID: "BOOK002"},
	}
	for _, row := range rows {
		if err := store.UpsertSlotRow(ctx, row); err != nil {
			t.Fatalf("upsert %s: %v", row.SlotID, err)
		}
	}

	all, err := store.ListSlotRowsByParticipant(ctx, "STUD001")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("rows = %d, want 2", len(all))
	}
	if all[0].SlotID != "SL001" || all[1].SlotID != "SL002" {
		t.Fatalf("rows not ordered by slot: %+v", all)
	}

	booked, err := store.ListSlotRowsByParticipantAndStatus(ctx, "STUD001", participantslot.StatusBooked)
	if err != nil {
		t.Fatalf("list booked: %v", err)
	}
	if len(booked) != 1 || booked[0].BookingID != "BOOK001" {
		t.Fatalf("booked rows = %+v, want single BOOK001", booked)
	}

	none, err := store.ListSlotRowsByParticipantAndStatus(ctx, "STUD001", participantslot.StatusCanceled)
	if err != nil {
		t.Fatalf("list canceled: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("canceled rows = %d, want 0", len(none))
	}
}

func TestGetSlotRowNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.GetSlotRow(context.Background(), "SL001", "STUD001")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteAllSlotRows(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.UpsertSlotRow(ctx, storage.SlotRow{
		SlotID:        "SL001",
		ParticipantID: "STUD001",
		Status:        participantslot.StatusAvailable,
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.DeleteAllSlotRows(ctx); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	rows, err := store.ListSlotRowsByParticipant(ctx, "STUD001")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("rows = %d, want 0 after delete", len(rows))
	}
}
