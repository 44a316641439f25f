// Package engine runs the command pipeline: validate the command, rebuild the
// stream's state from its journal, decide, then atomically append the
// resulting events. A per-stream lock serializes writers so concurrent
// commands against one stream never interleave their read-decide-append
// cycles.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/airstriplabs/slotbook/internal/booking/domain/command"
	"github.com/airstriplabs/slotbook/internal/booking/domain/event"
	"github.com/airstriplabs/slotbook/internal/booking/domain/replay"
)

var (
	// ErrCommandRegistryRequired indicates a missing command registry.
	ErrCommandRegistryRequired = errors.New("command registry is required")
	// ErrEventRegistryRequired indicates a missing event registry.
	ErrEventRegistryRequired = errors.New("event registry is required")
	// ErrJournalRequired indicates a missing journal.
	ErrJournalRequired = errors.New("journal is required")
	// ErrDeciderRequired indicates a missing decider.
	ErrDeciderRequired = errors.New("decider is required")
)

// Journal is the event persistence surface the engine depends on.
type Journal interface {
	ListEvents(ctx context.Context, streamID string, afterSeq int64, limit int) ([]event.Event, error)
	BatchAppendEvents(ctx context.Context, events []event.Event) ([]event.Event, error)
}

// Decider binds one aggregate's pure state machine to the engine.
type Decider interface {
	// InitialState returns the aggregate's empty state.
	InitialState() any
	// Apply folds one event into state without mutating the input.
	Apply(state any, evt event.Event) any
	// Decide evaluates a command against state and returns events or
	// rejections, never both.
	Decide(state any, cmd command.Command, now func() time.Time) command.Decision
}

// Result is the outcome of one command execution.
type Result struct {
	// Decision holds the accepted events (with sequences assigned) or the
	// rejections explaining why nothing was journaled.
	Decision command.Decision
	// State is the aggregate state after applying any accepted events.
	State any
	// LastSeq is the stream's latest sequence after execution.
	LastSeq int64
}

// Handler executes commands for one aggregate type.
type Handler struct {
	commands *command.Registry
	events   *event.Registry
	journal  Journal
	decider  Decider
	now      func() time.Time
	locks    *streamLocks
}

// Option configures a Handler.
type Option func(*Handler)

// WithClock overrides the handler clock, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// New builds a Handler. All dependencies are required.
func New(commands *command.Registry, events *event.Registry, journal Journal, decider Decider, opts ...Option) (*Handler, error) {
	if commands == nil {
		return nil, ErrCommandRegistryRequired
	}
	if events == nil {
		return nil, ErrEventRegistryRequired
	}
	if journal == nil {
		return nil, ErrJournalRequired
	}
	if decider == nil {
		return nil, ErrDeciderRequired
	}
	h := &Handler{
		commands: commands,
		events:   events,
		journal:  journal,
		decider:  decider,
		now:      func() time.Time { return time.Now().UTC() },
		locks:    newStreamLocks(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Execute runs one command end to end. Rejections are a valid outcome and do
// not produce an error; errors mean validation or persistence failed.
func (h *Handler) Execute(ctx context.Context, cmd command.Command) (Result, error) {
	cmd, err := h.commands.ValidateForDecision(cmd)
	if err != nil {
		return Result{}, err
	}

	unlock := h.locks.lock(cmd.StreamID)
	defer unlock()

	replayed, err := replay.Replay(ctx, h.journal, h.decider.Apply, cmd.StreamID, h.decider.InitialState(), replay.Options{})
	if err != nil {
		return Result{}, err
	}

	state := replayed.State
	decision := h.decider.Decide(state, cmd, h.now)
	if len(decision.Rejections) > 0 || len(decision.Events) == 0 {
		return Result{Decision: decision, State: state, LastSeq: replayed.LastSeq}, nil
	}

	for i, evt := range decision.Events {
		validated, err := h.events.ValidateForAppend(evt)
		if err != nil {
			return Result{}, err
		}
		decision.Events[i] = validated
	}

	appended, err := h.journal.BatchAppendEvents(ctx, decision.Events)
	if err != nil {
		return Result{}, err
	}

	lastSeq := replayed.LastSeq
	for _, evt := range appended {
		state = h.decider.Apply(state, evt)
		lastSeq = evt.Seq
	}
	decision.Events = appended

	return Result{Decision: decision, State: state, LastSeq: lastSeq}, nil
}
