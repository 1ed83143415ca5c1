// Package word implements a cooperative word-puzzle game: the channel
// guesses a hidden word letter by letter before the miss budget runs out.
package word

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"chat-game-bot/internal/game"
)

// GameType is the registry identifier for this variant.
const GameType = "word"

// Phases.
const (
	PhasePlaying  = "PLAYING"
	PhaseGameOver = "GAME_OVER"
)

// Action types accepted by this variant.
const (
	ActionLetter = "letter"
	ActionSolve  = "solve"
	ActionJoin   = "join"
	ActionReplay = "replay"
	ActionQuit   = "quit"
)

const (
	maxMisses         = 6
	inactivityTimeout = 5 * time.Minute
)

// words is the built-in fallback list; a deployment wanting themed words
// swaps it via the "word" start param.
var words = []string{
	"gopher", "channel", "session", "puzzle", "effect",
	"timeout", "registry", "machine", "factory", "telegram",
}

// State holds the puzzle state.
type State struct {
	Phase   string   `json:"phase"`
	Players []string `json:"players"`
	Word    string   `json:"word"`
	Guessed string   `json:"guessed"` // letters tried so far, in order
	Misses  int      `json:"misses"`
	Solved  bool     `json:"solved"`
}

// Participants returns the ordered player list.
func (s *State) Participants() []string { return s.Players }

// Active reports whether the puzzle is still running.
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

func (s *State) tried(letter string) bool {
	return strings.Contains(s.Guessed, letter)
}

// masked renders the word with unguessed letters hidden.
func (s *State) masked() string {
	var b strings.Builder
	for _, r := range s.Word {
		if s.tried(string(r)) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func (s *State) revealed() bool {
	for _, r := range s.Word {
		if !s.tried(string(r)) {
			return false
		}
	}
	return true
}

// Word is the game implementation.
type Word struct{}

// New creates a fresh instance.
func New() *Word { return &Word{} }

// Type returns the registry identifier.
func (w *Word) Type() string { return GameType }

// Name returns the display name.
func (w *Word) Name() string { return "Word Puzzle" }

// Description returns a one-line description.
func (w *Word) Description() string {
	return "Uncover the hidden word letter by letter before six misses."
}

// Start initializes a puzzle. The optional "word" param overrides the
// built-in list, which lets an external word provider feed the game.
func (w *Word) Start(ctx context.Context, opts game.StartOptions) (*game.StepResult, error) {
	target := words[rand.Intn(len(words))]
	if v, ok := opts.Params["word"]; ok {
		v = strings.ToLower(strings.TrimSpace(v))
		if len(v) < 2 || strings.ContainsFunc(v, func(r rune) bool { return r < 'a' || r > 'z' }) {
			return &game.StepResult{OK: false, Message: fmt.Sprintf("invalid word %q", v)}, nil
		}
		target = v
	}

	st := &State{
		Phase:   PhasePlaying,
		Players: []string{opts.HostID},
		Word:    target,
	}

	return &game.StepResult{
		State: st,
		OK:    true,
		Effects: []game.Effect{
			game.SendMessage{Content: fmt.Sprintf("Word puzzle started: %s (%d letters, %d misses allowed).",
				st.masked(), len(target), maxMisses)},
			game.ScheduleTimeout{Duration: inactivityTimeout},
		},
	}, nil
}

// Validate reports whether Process would accept the action.
func (w *Word) Validate(cur game.State, act game.Action) bool {
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
		case ActionLetter:
			l := strings.ToLower(strings.TrimSpace(act.Payload))
			return len(l) == 1 && l[0] >= 'a' && l[0] <= 'z' && !s.tried(l)
		case ActionSolve:
			return strings.TrimSpace(act.Payload) != ""
		}
	case PhaseGameOver:
		return act.Type == ActionReplay || act.Type == ActionQuit
	}
	return false
}

// Process applies one action.
func (w *Word) Process(ctx context.Context, cur game.State, act game.Action) (*game.StepResult, error) {
	s, ok := cur.(*State)
	if !ok {
		return nil, fmt.Errorf("word: unexpected state type %T", cur)
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
			return game.Rejected(s, "the puzzle is over"), nil
		}
		if s.hasPlayer(act.UserID) {
			return game.Rejected(s, "you are already playing"), nil
		}
		next := s.clone()
		next.Players = append(next.Players, act.UserID)
		return &game.StepResult{
			State:   next,
			OK:      true,
			Effects: []game.Effect{game.UpdateParticipants{Participants: next.Players}},
		}, nil

	case ActionLetter:
		if s.Phase != PhasePlaying {
			return game.Rejected(s, "the puzzle is over"), nil
		}
		l := strings.ToLower(strings.TrimSpace(act.Payload))
		if len(l) != 1 || l[0] < 'a' || l[0] > 'z' {
			return game.Rejected(s, "guess a single letter a-z"), nil
		}
		if s.tried(l) {
			return game.Rejected(s, fmt.Sprintf("%q was already tried", l)), nil
		}

		next := s.clone()
		next.Guessed += l
		if !next.hasPlayer(act.UserID) {
			next.Players = append(next.Players, act.UserID)
		}
		if !strings.Contains(next.Word, l) {
			next.Misses++
		}
		return w.afterGuess(next, act.UserID)

	case ActionSolve:
		if s.Phase != PhasePlaying {
			return game.Rejected(s, "the puzzle is over"), nil
		}
		attempt := strings.ToLower(strings.TrimSpace(act.Payload))
		if attempt == "" {
			return game.Rejected(s, "solve with the full word"), nil
		}

		next := s.clone()
		if !next.hasPlayer(act.UserID) {
			next.Players = append(next.Players, act.UserID)
		}
		if attempt != next.Word {
			next.Misses++
			return w.afterGuess(next, act.UserID)
		}
		next.Solved = true
		next.Phase = PhaseGameOver
		return &game.StepResult{
			State: next,
			OK:    true,
			Effects: []game.Effect{
				game.SendMessage{Content: fmt.Sprintf("Solved! The word was %q.", next.Word)},
				game.EndGame{Reason: "solved", WinnerID: act.UserID},
			},
		}, nil

	case ActionReplay:
		if s.Phase != PhaseGameOver {
			return game.Rejected(s, "finish the current puzzle first"), nil
		}
		next := &State{
			Phase:   PhasePlaying,
			Players: append([]string(nil), s.Players...),
			Word:    words[rand.Intn(len(words))],
		}
		return &game.StepResult{
			State: next,
			OK:    true,
			Effects: []game.Effect{
				game.SendMessage{Content: fmt.Sprintf("New puzzle: %s", next.masked())},
				game.ScheduleTimeout{Duration: inactivityTimeout},
			},
		}, nil

	default:
		return game.Rejected(s, fmt.Sprintf("unknown action %q", act.Type)), nil
	}
}

// afterGuess finishes a letter/solve attempt: announce progress and end
// the puzzle when it is revealed or the miss budget is spent.
func (w *Word) afterGuess(next *State, userID string) (*game.StepResult, error) {
	switch {
	case next.revealed():
		next.Solved = true
		next.Phase = PhaseGameOver
		return &game.StepResult{
			State: next,
			OK:    true,
			Effects: []game.Effect{
				game.SendMessage{Content: fmt.Sprintf("Solved! The word was %q.", next.Word)},
				game.EndGame{Reason: "solved", WinnerID: userID},
			},
		}, nil
	case next.Misses >= maxMisses:
		next.Phase = PhaseGameOver
		return &game.StepResult{
			State: next,
			OK:    true,
			Effects: []game.Effect{
				game.SendMessage{Content: fmt.Sprintf("Out of misses. The word was %q.", next.Word)},
				game.EndGame{Reason: "out of misses"},
			},
		}, nil
	default:
		return &game.StepResult{
			State: next,
			OK:    true,
			Effects: []game.Effect{
				game.SendMessage{Content: fmt.Sprintf("%s (%d/%d misses)", next.masked(), next.Misses, maxMisses)},
				game.UpdateParticipants{Participants: next.Players},
				game.ScheduleTimeout{Duration: inactivityTimeout},
			},
		}, nil
	}
}

// CheckEnd reports whether the puzzle reached an end condition.
func (w *Word) CheckEnd(cur game.State) game.EndCheck {
	s, ok := cur.(*State)
	if !ok || s.Phase != PhaseGameOver {
		return game.EndCheck{}
	}
	if s.Solved {
		return game.EndCheck{ShouldEnd: true, Reason: "solved"}
	}
	if s.Misses >= maxMisses {
		return game.EndCheck{ShouldEnd: true, Reason: "out of misses"}
	}
	return game.EndCheck{ShouldEnd: true, Reason: "quit"}
}

// AvailableActions lists the currently legal action types.
func (w *Word) AvailableActions(cur game.State) []string {
	s, ok := cur.(*State)
	if !ok {
		return nil
	}
	if s.Phase == PhaseGameOver {
		return []string{ActionReplay, ActionQuit}
	}
	return []string{ActionLetter, ActionSolve, ActionJoin, ActionQuit}
}

// DisplayState renders a plain-text summary.
func (w *Word) DisplayState(cur game.State) string {
	s, ok := cur.(*State)
	if !ok {
		return ""
	}
	if s.Phase == PhaseGameOver {
		if s.Solved {
			return fmt.Sprintf("Puzzle solved: %q.", s.Word)
		}
		return fmt.Sprintf("Puzzle over, the word was %q.", s.Word)
	}
	return fmt.Sprintf("%s (%d/%d misses, tried: %s)", s.masked(), s.Misses, maxMisses, s.Guessed)
}

// DecodeState rebuilds the typed state from its persisted JSON form.
func (w *Word) DecodeState(data []byte) (game.State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("word: decode state: %w", err)
	}
	return &s, nil
}
