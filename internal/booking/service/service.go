// Package service exposes the booking use cases to transport layers. It
// translates caller input into commands, executes them through the command
// pipeline, and maps domain rejections onto coded errors.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/airstriplabs/slotbook/internal/booking/domain/command"
	"github.com/airstriplabs/slotbook/internal/booking/domain/participantslot"
	"github.com/airstriplabs/slotbook/internal/booking/domain/replay"
	"github.com/airstriplabs/slotbook/internal/booking/domain/slot"
	"github.com/airstriplabs/slotbook/internal/booking/engine"
	"github.com/airstriplabs/slotbook/internal/booking/storage"
	apperrors "github.com/airstriplabs/slotbook/internal/platform/errors"
	"github.com/airstriplabs/slotbook/internal/platform/logger"
)

// ErrDependenciesRequired indicates missing service dependencies.
var ErrDependenciesRequired = errors.New("service dependencies are required")

// rejectionCode maps domain rejection codes onto the service error codes
// transports key off. Unmapped codes degrade to CodeUnknown.
var rejectionCode = map[string]apperrors.Code{
	slot.RejectionCodeSlotNotBookable: apperrors.CodeSlotNotBookable,
	slot.RejectionCodeBookingNotFound: apperrors.CodeBookingNotFound,
	"SLOT_PARTICIPANT_ID_REQUIRED":    apperrors.CodeParticipantIDEmpty,
	"SLOT_PARTICIPANT_TYPE_INVALID":   apperrors.CodeParticipantTypeBad,
	"SLOT_BOOKING_ID_REQUIRED":        apperrors.CodeBookingIDRequired,
}

// ParticipantView is one party in a slot view.
type ParticipantView struct {
	ParticipantID   string `json:"participant_id"`
	ParticipantType string `json:"participant_type"`
}

// BookingView is one booked party in a slot view.
type BookingView struct {
	ParticipantID   string `json:"participant_id"`
	ParticipantType string `json:"participant_type"`
	BookingID       string `json:"booking_id"`
}

// SlotView is the authoritative state of one timeslot.
type SlotView struct {
	SlotID    string            `json:"slot_id"`
	Available []ParticipantView `json:"available"`
	Bookings  []BookingView     `json:"bookings"`
}

// Service wires the slot command handler and the read model behind one
// use-case surface.
type Service struct {
	slots        *engine.Handler
	events       storage.EventStore
	rows         storage.SlotRowStore
	log          *logger.Logger
	newBookingID func() string
}

// Option configures a Service.
type Option func(*Service)

// WithBookingIDGenerator overrides booking id generation, primarily for
// tests.
func WithBookingIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newBookingID = gen
		}
	}
}

// New builds a Service. The logger defaults to a no-op when nil.
func New(slots *engine.Handler, events storage.EventStore, rows storage.SlotRowStore, log *logger.Logger, opts ...Option) (*Service, error) {
	if slots == nil || events == nil || rows == nil {
		return nil, ErrDependenciesRequired
	}
	if log == nil {
		log = logger.NewNop()
	}
	s := &Service{
		slots:        slots,
		events:       events,
		rows:         rows,
		log:          log,
		newBookingID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// MarkAvailable records a participant as available for a slot.
func (s *Service) MarkAvailable(ctx context.Context, slotID, participantID, participantType string) error {
	return s.executeAvailability(ctx, command.TypeSlotMarkAvailable, slotID, participantID, participantType)
}

// UnmarkAvailable withdraws a participant's availability for a slot. The
// withdrawal is journaled even when the participant was never marked.
func (s *Service) UnmarkAvailable(ctx context.Context, slotID, participantID, participantType string) error {
	return s.executeAvailability(ctx, command.TypeSlotUnmarkAvailable, slotID, participantID, participantType)
}

func (s *Service) executeAvailability(ctx context.Context, cmdType command.Type, slotID, participantID, participantType string) error {
	slotID = strings.TrimSpace(slotID)
	if slotID == "" {
		return apperrors.New(apperrors.CodeSlotIDRequired, "slot id is required")
	}
	payload, err := json.Marshal(slot.AvailabilityPayload{
		SlotID:          slotID,
		ParticipantID:   participantID,
		ParticipantType: participantType,
	})
	if err != nil {
		return fmt.Errorf("encode availability payload: %w", err)
	}
	_, err = s.execute(ctx, command.Command{
		StreamID:    slotID,
		Type:        cmdType,
		RequestID:   uuid.NewString(),
		PayloadJSON: payload,
	})
	return err
}

// BookSlot books a slot for a student, aircraft and instructor. It succeeds
// only when all three are currently available. Callers may supply a booking
// id; when absent one is generated. The effective id is returned.
func (s *Service) BookSlot(ctx context.Context, slotID, studentID, aircraftID, instructorID, bookingID string) (string, error) {
	slotID = strings.TrimSpace(slotID)
	if slotID == "" {
		return "", apperrors.New(apperrors.CodeSlotIDRequired, "slot id is required")
	}
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		bookingID = s.newBookingID()
	}
	payload, err := json.Marshal(slot.BookPayload{
		StudentID:    studentID,
		AircraftID:   aircraftID,
		InstructorID: instructorID,
		BookingID:    bookingID,
	})
	if err != nil {
		return "", fmt.Errorf("encode book payload: %w", err)
	}
	result, err := s.execute(ctx, command.Command{
		StreamID:    slotID,
		Type:        command.TypeSlotBook,
		RequestID:   uuid.NewString(),
		PayloadJSON: payload,
	})
	if err != nil {
		return "", err
	}
	s.log.Info("slot booked", "slot_id", slotID, "booking_id", bookingID, "events", len(result.Decision.Events))
	return bookingID, nil
}

// CancelBooking cancels every booked party of one booking on a slot.
func (s *Service) CancelBooking(ctx context.Context, slotID, bookingID string) error {
	slotID = strings.TrimSpace(slotID)
	if slotID == "" {
		return apperrors.New(apperrors.CodeSlotIDRequired, "slot id is required")
	}
	payload, err := json.Marshal(slot.CancelPayload{BookingID: bookingID})
	if err != nil {
		return fmt.Errorf("encode cancel payload: %w", err)
	}
	result, err := s.execute(ctx, command.Command{
		StreamID:    slotID,
		Type:        command.TypeSlotCancelBooking,
		RequestID:   uuid.NewString(),
		PayloadJSON: payload,
	})
	if err != nil {
		return err
	}
	s.log.Info("booking canceled", "slot_id", slotID, "booking_id", bookingID, "events", len(result.Decision.Events))
	return nil
}

// execute runs one slot command and converts rejections into coded errors.
func (s *Service) execute(ctx context.Context, cmd command.Command) (engine.Result, error) {
	result, err := s.slots.Execute(ctx, cmd)
	if err != nil {
		return engine.Result{}, apperrors.Wrap(apperrors.CodeStorageUnavailable, "command execution failed", err)
	}
	if len(result.Decision.Rejections) > 0 {
		rejection := result.Decision.Rejections[0]
		code, ok := rejectionCode[rejection.Code]
		if !ok {
			code = apperrors.CodeUnknown
		}
		return engine.Result{}, apperrors.New(code, rejection.Message)
	}
	return result, nil
}

// GetSlot replays the authoritative slot state and returns a stable view of
// its available participants and active bookings.
func (s *Service) GetSlot(ctx context.Context, slotID string) (SlotView, error) {
	slotID = strings.TrimSpace(slotID)
	if slotID == "" {
		return SlotView{}, apperrors.New(apperrors.CodeSlotIDRequired, "slot id is required")
	}

	decider := engine.SlotDecider{}
	replayed, err := replay.Replay(ctx, s.events, decider.Apply, slotID, decider.InitialState(), replay.Options{})
	if err != nil {
		return SlotView{}, apperrors.Wrap(apperrors.CodeStorageUnavailable, "replay slot failed", err)
	}

	state := replayed.State.(slot.State)
	view := SlotView{
		SlotID:    slotID,
		Available: make([]ParticipantView, 0, len(state.Available)),
		Bookings:  make([]BookingView, 0, len(state.Bookings)),
	}
	for participant := range state.Available {
		view.Available = append(view.Available, ParticipantView{
			ParticipantID:   participant.ID,
			ParticipantType: string(participant.Type),
		})
	}
	for booking := range state.Bookings {
		view.Bookings = append(view.Bookings, BookingView{
			ParticipantID:   booking.Participant.ID,
			ParticipantType: string(booking.Participant.Type),
			BookingID:       booking.BookingID,
		})
	}
	sortParticipantViews(view.Available)
	sortBookingViews(view.Bookings)
	return view, nil
}

// ListSlotsByParticipant returns every read-model row for a participant.
func (s *Service) ListSlotsByParticipant(ctx context.Context, participantID string) ([]storage.SlotRow, error) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return nil, apperrors.New(apperrors.CodeParticipantIDEmpty, "participant id is required")
	}
	rows, err := s.rows.ListSlotRowsByParticipant(ctx, participantID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageUnavailable, "list slots failed", err)
	}
	return rows, nil
}

// ListSlotsByParticipantAndStatus returns a participant's rows filtered by
// status label.
func (s *Service) ListSlotsByParticipantAndStatus(ctx context.Context, participantID, statusLabel string) ([]storage.SlotRow, error) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return nil, apperrors.New(apperrors.CodeParticipantIDEmpty, "participant id is required")
	}
	status, ok := participantslot.ParseStatus(statusLabel)
	if !ok {
		return nil, apperrors.New(apperrors.CodeSlotStatusInvalid, fmt.Sprintf("unknown slot status %q", statusLabel))
	}
	rows, err := s.rows.ListSlotRowsByParticipantAndStatus(ctx, participantID, status)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageUnavailable, "list slots failed", err)
	}
	return rows, nil
}

func sortParticipantViews(views []ParticipantView) {
	sort.Slice(views, func(i, j int) bool {
		if views[i].ParticipantType != views[j].ParticipantType {
			return views[i].ParticipantType < views[j].ParticipantType
		}
		return views[i].ParticipantID < views[j].ParticipantID
	})
}

func sortBookingViews(views []BookingView) {
	sort.Slice(views, func(i, j int) bool {
		if views[i].BookingID != views[j].BookingID {
			return views[i].BookingID < views[j].BookingID
		}
		if views[i].ParticipantType != views[j].ParticipantType {
			return views[i].ParticipantType < views[j].ParticipantType
		}
		return views[i].ParticipantID < views[j].ParticipantID
	})
}
