// Package game defines the contract between the session engine and the
// pluggable game implementations, plus the registry that constructs them.
// The engine never looks inside a game's state beyond the State interface;
// each implementation owns its own typed state struct.
package game

import (
	"context"
	"time"
)

// State is the engine-facing view of a game's otherwise opaque state.
// Implementations return fresh values from Process; the engine never
// patches state in place.
type State interface {
	// Participants returns the ordered, unique user IDs taking part.
	Participants() []string

	// Active reports whether the game is still running. A state with
	// Active() == false has reached its terminal phase.
	Active() bool
}

// Action is a transient player request. Only its effect on the state is
// persisted, never the action itself.
type Action struct {
	UserID  string
	Type    string
	Payload string // free-form, interpreted by the game implementation
	At      time.Time
}

// StartOptions carries everything a game needs to initialize.
type StartOptions struct {
	HostID    string
	ChannelID string
	Params    map[string]string // variant-specific options
}

// StepResult is what Start and Process hand back to the engine:
// the replacement state, declarative side effects for the engine to
// execute, and whether the request was accepted. Message carries a short
// human-readable reason on rejection and an optional confirmation on
// success.
type StepResult struct {
	State   State
	Effects []Effect
	OK      bool
	Message string
}

// EndCheck is the result of CheckEnd.
type EndCheck struct {
	ShouldEnd bool
	WinnerID  string
	Reason    string
}

// Game is the state-machine contract every game variant implements.
//
// Process and Validate must agree: whenever Validate accepts an action,
// Process must not reject it for a phase or actor mismatch. Foreseeable
// invalid actions (wrong phase, wrong player, malformed guess) come back
// as OK == false with a message, never as an error; errors are reserved
// for programmer mistakes and I/O failures.
type Game interface {
	// Type returns the registry identifier (e.g. "guess", "duel").
	Type() string

	// Name returns the display name.
	Name() string

	// Description returns a one-line description shown in game lists.
	Description() string

	// Start builds a complete initial state for the given options and may
	// emit setup effects such as an inactivity timeout.
	Start(ctx context.Context, opts StartOptions) (*StepResult, error)

	// Process applies an action to the current state and returns the
	// replacement state. It must not mutate cur. Some variants perform
	// I/O here (e.g. an external guess validator), hence the context.
	Process(ctx context.Context, cur State, act Action) (*StepResult, error)

	// Validate reports whether Process would accept the action in the
	// current phase for the current actor. Side-effect free.
	Validate(cur State, act Action) bool

	// CheckEnd reports whether the game has reached an end condition.
	// Side-effect free, callable at any time.
	CheckEnd(cur State) EndCheck

	// AvailableActions lists the action types currently legal, in
	// display order.
	AvailableActions(cur State) []string

	// DisplayState renders a plain-text summary for logs and fallback
	// rendering.
	DisplayState(cur State) string

	// DecodeState rebuilds this variant's typed state from the JSON blob
	// the engine persisted.
	DecodeState(data []byte) (State, error)
}

// SystemMover is implemented by variants where the bot itself takes
// moves. The engine calls SystemMove when a scheduled delayed move fires.
type SystemMover interface {
	SystemMove(ctx context.Context, cur State) (*StepResult, error)
}

// Rejected is a convenience constructor for the common refusal path:
// unchanged state, no effects, a short reason.
func Rejected(cur State, message string) *StepResult {
	return &StepResult{State: cur, OK: false, Message: message}
}
