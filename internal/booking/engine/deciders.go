package engine

import (
	"time"

	"github.com/airstriplabs/slotbook/internal/booking/domain/command"
	"github.com/airstriplabs/slotbook/internal/booking/domain/event"
	"github.com/airstriplabs/slotbook/internal/booking/domain/participantslot"
	"github.com/airstriplabs/slotbook/internal/booking/domain/slot"
)

// SlotDecider adapts the slot aggregate to the engine.
type SlotDecider struct{}

func (SlotDecider) InitialState() any {
	return slot.NewState()
}

func (SlotDecider) Apply(state any, evt event.Event) any {
	return slot.Fold(state.(slot.State), evt)
}

func (SlotDecider) Decide(state any, cmd command.Command, now func() time.Time) command.Decision {
	return slot.Decide(state.(slot.State), cmd, now)
}

// ParticipantSlotDecider adapts the slot-participant aggregate to the engine.
type ParticipantSlotDecider struct{}

func (ParticipantSlotDecider) InitialState() any {
	return participantslot.State{}
}

func (ParticipantSlotDecider) Apply(state any, evt event.Event) any {
	return participantslot.Fold(state.(participantslot.State), evt)
}

func (ParticipantSlotDecider) Decide(state any, cmd command.Command, now func() time.Time) command.Decision {
	return participantslot.Decide(state.(participantslot.State), cmd, now)
}
