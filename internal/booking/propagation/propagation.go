// Package propagation fans slot events out to per (slot, participant)
// streams. Each slot event names exactly one participant, so propagation is a
// one-to-one translation into a participant_slot command executed through the
// regular command pipeline.
package propagation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/airstriplabs/slotbook/internal/booking/domain/command"
	"github.com/airstriplabs/slotbook/internal/booking/domain/event"
	"github.com/airstriplabs/slotbook/internal/booking/domain/participantslot"
	"github.com/airstriplabs/slotbook/internal/booking/domain/slot"
	"github.com/airstriplabs/slotbook/internal/booking/engine"
	"github.com/airstriplabs/slotbook/internal/platform/logger"
)

// ErrHandlerRequired indicates a missing participant-slot command handler.
var ErrHandlerRequired = errors.New("participant-slot handler is required")

// eventToCommand maps slot event types onto the participant_slot command
// each one propagates as.
var eventToCommand = map[event.Type]command.Type{
	event.TypeSlotParticipantMarkedAvailable:   command.TypeParticipantSlotMarkAvailable,
	event.TypeSlotParticipantUnmarkedAvailable: command.TypeParticipantSlotUnmarkAvailable,
	event.TypeSlotBooked:                       command.TypeParticipantSlotBook,
	event.TypeSlotBookingCanceled:              command.TypeParticipantSlotCancel,
}

// Propagator translates slot events into participant_slot commands.
type Propagator struct {
	handler *engine.Handler
	log     *logger.Logger
}

// New builds a Propagator around the participant-slot command handler. The
// logger defaults to a no-op when nil.
func New(handler *engine.Handler, log *logger.Logger) (*Propagator, error) {
	if handler == nil {
		return nil, ErrHandlerRequired
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Propagator{handler: handler, log: log}, nil
}

// Propagate executes the participant_slot command derived from one slot
// event. Event types with no propagation mapping are acknowledged without
// effect. A domain rejection is returned as an error so the caller's retry
// policy decides its fate.
func (p *Propagator) Propagate(ctx context.Context, evt event.Event) error {
	cmdType, ok := eventToCommand[evt.Type]
	if !ok {
		p.log.Debug("skipping non-propagating event", "event_type", evt.Type, "stream_id", evt.StreamID)
		return nil
	}

	// Booking payloads are a superset of availability payloads, so one
	// decode covers every propagating event type.
	var payload slot.BookingPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return fmt.Errorf("decode payload for %s seq %d: %w", evt.StreamID, evt.Seq, err)
	}
	if strings.TrimSpace(payload.SlotID) == "" || strings.TrimSpace(payload.ParticipantID) == "" {
		return fmt.Errorf("event %s seq %d misses slot or participant id", evt.StreamID, evt.Seq)
	}

	cmdPayload, err := json.Marshal(participantslot.Payload{
		SlotID:          payload.SlotID,
		ParticipantID:   payload.ParticipantID,
		ParticipantType: payload.ParticipantType,
		BookingID:       payload.BookingID,
	})
	if err != nil {
		return fmt.Errorf("encode command payload: %w", err)
	}

	result, err := p.handler.Execute(ctx, command.Command{
		StreamID:    participantslot.StreamID(payload.SlotID, payload.ParticipantID),
		Type:        cmdType,
		RequestID:   evt.RequestID,
		PayloadJSON: cmdPayload,
	})
	if err != nil {
		return fmt.Errorf("execute %s for %s: %w", cmdType, evt.StreamID, err)
	}
	if len(result.Decision.Rejections) > 0 {
		rejection := result.Decision.Rejections[0]
		return fmt.Errorf("propagation rejected: %s: %s", rejection.Code, rejection.Message)
	}

	p.log.Debug("slot event propagated",
		"event_type", evt.Type,
		"slot_id", payload.SlotID,
		"participant_id", payload.ParticipantID,
		"command_type", cmdType,
	)
	return nil
}
