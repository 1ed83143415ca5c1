// Package guess implements the number-guessing game.
// The host starts a game, anyone in the channel can join, and players
// take free-for-all guesses until someone hits the target number.
package guess

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"chat-game-bot/internal/game"
)

// GameType is the registry identifier for this variant.
const GameType = "guess"

// Phases of a guessing game. Transitions are monotonic: PLAYING moves to
// GAME_OVER and only an explicit replay re-initializes.
const (
	PhasePlaying  = "PLAYING"
	PhaseGameOver = "GAME_OVER"
)

// Action types accepted by this variant.
const (
	ActionGuess  = "guess"
	ActionJoin   = "join"
	ActionReplay = "replay"
	ActionQuit   = "quit"
)

const (
	defaultUpperBound = 100
	inactivityTimeout = 5 * time.Minute
)

// State holds the full game state. Exported fields only, so the engine
// can persist it as JSON and DecodeState can rebuild it.
type State struct {
	Phase    string   `json:"phase"`
	Players  []string `json:"players"`
	Target   int      `json:"target"`
	Upper    int      `json:"upper"`
	Attempts int      `json:"attempts"`
	WinnerID string   `json:"winner_id,omitempty"`
}

// Participants returns the ordered player list.
func (s *State) Participants() []string { return s.Players }

// Active reports whether the game is still running.
func (s *State) Active() bool { return s.Phase != PhaseGameOver }

func (s *State) clone() *State {
	cp := *s
	cp.Players = append([]string(nil), s.Players...)
	return &cp
}

func (s *State) hasPlayer(userID string) bool {
	for _, p := range s.Players {
		if p == userID {
			return true
		}
	}
	return false
}

// Guess is the game implementation.
type Guess struct{}

// New creates a fresh instance.
func New() *Guess { return &Guess{} }

// Type returns the registry identifier.
func (g *Guess) Type() string { return GameType }

// Name returns the display name.
func (g *Guess) Name() string { return "Number Guessing" }

// Description returns a one-line description.
func (g *Guess) Description() string {
	return "Guess the hidden number. Higher/lower hints after every try, first hit wins."
}

// Start initializes a game hosted by opts.HostID. The optional "upper"
// param sets the guessing range.
func (g *Guess) Start(ctx context.Context, opts game.StartOptions) (*game.StepResult, error) {
	upper := defaultUpperBound
	if v, ok := opts.Params["upper"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 2 {
			return &game.StepResult{OK: false, Message: fmt.Sprintf("invalid upper bound %q", v)}, nil
		}
		upper = n
	}

	st := &State{
		Phase:   PhasePlaying,
		Players: []string{opts.HostID},
		Target:  rand.Intn(upper) + 1,
		Upper:   upper,
	}

	return &game.StepResult{
		State: st,
		OK:    true,
		Effects: []game.Effect{
			game.SendMessage{Content: fmt.Sprintf("Number guessing started! Pick a number between 1 and %d.", upper)},
			game.ScheduleTimeout{Duration: inactivityTimeout},
		},
	}, nil
}

// Validate reports whether Process would accept the action.
func (g *Guess) Validate(cur game.State, act game.Action) bool {
	s, ok := cur.(*State)
	if !ok {
		return false
	}

	switch s.Phase {
	case PhasePlaying:
		switch act.Type {
		case ActionQuit:
			return true
		case ActionJoin:
			return !s.hasPlayer(act.UserID)
		case ActionGuess:
			n, err := strconv.Atoi(strings.TrimSpace(act.Payload))
			return err == nil && n >= 1 && n <= s.Upper
		}
	case PhaseGameOver:
		return act.Type == ActionReplay || act.Type == ActionQuit
	}
	return false
}

// Process applies one action and returns the replacement state.
func (g *Guess) Process(ctx context.Context, cur game.State, act game.Action) (*game.StepResult, error) {
	s, ok := cur.(*State)
	if !ok {
		return nil, fmt.Errorf("guess: unexpected state type %T", cur)
	}

	switch act.Type {
	case ActionQuit:
		next := s.clone()
		next.Phase = PhaseGameOver
		return &game.StepResult{
			State:   next,
			OK:      true,
			Effects: []game.Effect{game.EndGame{Reason: "quit"}},
		}, nil

	case ActionJoin:
		if s.Phase != PhasePlaying {
			return game.Rejected(s, "the game is over, nobody can join now"), nil
		}
		if s.hasPlayer(act.UserID) {
			return game.Rejected(s, "you are already playing"), nil
		}
		next := s.clone()
		next.Players = append(next.Players, act.UserID)
		return &game.StepResult{
			State: next,
			OK:    true,
			Effects: []game.Effect{
				game.UpdateParticipants{Participants: next.Players},
				game.SendMessage{Content: "A new challenger joined the game."},
			},
		}, nil

	case ActionGuess:
		if s.Phase != PhasePlaying {
			return game.Rejected(s, "the game is over, start a new one to keep guessing"), nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(act.Payload))
		if err != nil || n < 1 || n > s.Upper {
			return game.Rejected(s, fmt.Sprintf("guesses must be a number between 1 and %d", s.Upper)), nil
		}

		next := s.clone()
		next.Attempts++
		if !next.hasPlayer(act.UserID) {
			// Guessing implicitly joins.
			next.Players = append(next.Players, act.UserID)
		}

		switch {
		case n == next.Target:
			next.Phase = PhaseGameOver
			next.WinnerID = act.UserID
			return &game.StepResult{
				State: next,
				OK:    true,
				Effects: []game.Effect{
					game.SendMessage{Content: fmt.Sprintf("%d is correct after %d attempts!", n, next.Attempts)},
					game.EndGame{Reason: "guessed", WinnerID: act.UserID},
				},
			}, nil
		case n < next.Target:
			return &game.StepResult{
				State:   next,
				OK:      true,
				Message: "higher",
				Effects: []game.Effect{
					game.SendMessage{Content: fmt.Sprintf("%d is too low.", n)},
					game.ScheduleTimeout{Duration: inactivityTimeout},
				},
			}, nil
		default:
			return &game.StepResult{
				State:   next,
				OK:      true,
				Message: "lower",
				Effects: []game.Effect{
					game.SendMessage{Content: fmt.Sprintf("%d is too high.", n)},
					game.ScheduleTimeout{Duration: inactivityTimeout},
				},
			}, nil
		}

	case ActionReplay:
		if s.Phase != PhaseGameOver {
			return game.Rejected(s, "finish the current round before starting a new one"), nil
		}
		next := &State{
			Phase:   PhasePlaying,
			Players: append([]string(nil), s.Players...),
			Target:  rand.Intn(s.Upper) + 1,
			Upper:   s.Upper,
		}
		return &game.StepResult{
			State: next,
			OK:    true,
			Effects: []game.Effect{
				game.SendMessage{Content: fmt.Sprintf("New round! Pick a number between 1 and %d.", s.Upper)},
				game.ScheduleTimeout{Duration: inactivityTimeout},
			},
		}, nil

	default:
		return game.Rejected(s, fmt.Sprintf("unknown action %q", act.Type)), nil
	}
}

// CheckEnd reports whether the game reached an end condition.
func (g *Guess) CheckEnd(cur game.State) game.EndCheck {
	s, ok := cur.(*State)
	if !ok || s.Phase != PhaseGameOver {
		return game.EndCheck{}
	}
	if s.WinnerID != "" {
		return game.EndCheck{ShouldEnd: true, WinnerID: s.WinnerID, Reason: "guessed"}
	}
	return game.EndCheck{ShouldEnd: true, Reason: "quit"}
}

// AvailableActions lists the currently legal action types in display order.
func (g *Guess) AvailableActions(cur game.State) []string {
	s, ok := cur.(*State)
	if !ok {
		return nil
	}
	if s.Phase == PhaseGameOver {
		return []string{ActionReplay, ActionQuit}
	}
	return []string{ActionGuess, ActionJoin, ActionQuit}
}

// DisplayState renders a plain-text summary.
func (g *Guess) DisplayState(cur game.State) string {
	s, ok := cur.(*State)
	if !ok {
		return ""
	}
	if s.Phase == PhaseGameOver {
		if s.WinnerID != "" {
			return fmt.Sprintf("Game over: %s found the number in %d attempts.", s.WinnerID, s.Attempts)
		}
		return "Game over."
	}
	return fmt.Sprintf("Guess a number between 1 and %d. %d attempts so far, %d players.",
		s.Upper, s.Attempts, len(s.Players))
}

// DecodeState rebuilds the typed state from its persisted JSON form.
func (g *Guess) DecodeState(data []byte) (game.State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("guess: decode state: %w", err)
	}
	return &s, nil
}
