// Package duel implements rock-paper-scissors against the bot.
// The player throws, then the bot's counter-throw arrives as a scheduled
// delayed move, which is what gives the game its back-and-forth feel in
// chat instead of an instant result.
package duel

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
const GameType = "duel"

// Phases. PhaseThrow awaits the player, PhaseResolve awaits the bot's
// scheduled move.
const (
	PhaseThrow    = "THROW"
	PhaseResolve  = "RESOLVE"
	PhaseGameOver = "GAME_OVER"
)

// Action types accepted by this variant.
const (
	ActionThrow  = "throw"
	ActionReplay = "replay"
	ActionQuit   = "quit"
)

const (
	defaultWinsNeeded = 3
	botMoveDelay      = 2 * time.Second
	inactivityTimeout = 3 * time.Minute
)

var throws = []string{"rock", "paper", "scissors"}

// beats maps each throw to the throw it defeats.
var beats = map[string]string{
	"rock":     "scissors",
	"paper":    "rock",
	"scissors": "paper",
}

// State holds the duel state.
type State struct {
	Phase        string   `json:"phase"`
	Players      []string `json:"players"` // exactly the one human player
	PendingThrow string   `json:"pending_throw,omitempty"`
	PlayerScore  int      `json:"player_score"`
	BotScore     int      `json:"bot_score"`
	Rounds       int      `json:"rounds"`
	WinsNeeded   int      `json:"wins_needed"`
	WinnerID     string   `json:"winner_id,omitempty"` // player ID or "bot"
}

// Participants returns the player list.
func (s *State) Participants() []string { return s.Players }

// Active reports whether the duel is still running.
func (s *State) Active() bool { return s.Phase != PhaseGameOver }

func (s *State) clone() *State {
	cp := *s
	cp.Players = append([]string(nil), s.Players...)
	return &cp
}

func (s *State) player() string {
	if len(s.Players) == 0 {
		return ""
	}
	return s.Players[0]
}

// Duel is the game implementation.
type Duel struct{}

// New creates a fresh instance.
func New() *Duel { return &Duel{} }

// Type returns the registry identifier.
func (d *Duel) Type() string { return GameType }

// Name returns the display name.
func (d *Duel) Name() string { return "Rock Paper Scissors Duel" }

// Description returns a one-line description.
func (d *Duel) Description() string {
	return "Rock-paper-scissors against the bot, first to three round wins."
}

// Start initializes a duel for the host. The optional "wins" param sets
// the number of round wins needed.
func (d *Duel) Start(ctx context.Context, opts game.StartOptions) (*game.StepResult, error) {
	wins := defaultWinsNeeded
	if v, ok := opts.Params["wins"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return &game.StepResult{OK: false, Message: fmt.Sprintf("invalid wins target %q", v)}, nil
		}
		wins = n
	}

	st := &State{
		Phase:      PhaseThrow,
		Players:    []string{opts.HostID},
		WinsNeeded: wins,
	}

	return &game.StepResult{
		State: st,
		OK:    true,
		Effects: []game.Effect{
			game.SendMessage{Content: fmt.Sprintf("Duel on! First to %d wins. Throw rock, paper or scissors.", wins)},
			game.ScheduleTimeout{Duration: inactivityTimeout},
		},
	}, nil
}

// Validate reports whether Process would accept the action.
func (d *Duel) Validate(cur game.State, act game.Action) bool {
	s, ok := cur.(*State)
	if !ok {
		return false
	}

	switch s.Phase {
	case PhaseThrow:
		if act.Type == ActionQuit {
			return true
		}
		if act.Type != ActionThrow || act.UserID != s.player() {
			return false
		}
		_, valid := beats[strings.ToLower(strings.TrimSpace(act.Payload))]
		return valid
	case PhaseResolve:
		return act.Type == ActionQuit
	case PhaseGameOver:
		return act.Type == ActionReplay || act.Type == ActionQuit
	}
	return false
}

// Process applies one player action.
func (d *Duel) Process(ctx context.Context, cur game.State, act game.Action) (*game.StepResult, error) {
	s, ok := cur.(*State)
	if !ok {
		return nil, fmt.Errorf("duel: unexpected state type %T", cur)
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

	case ActionThrow:
		if s.Phase != PhaseThrow {
			if s.Phase == PhaseResolve {
				return game.Rejected(s, "waiting for the bot's throw"), nil
			}
			return game.Rejected(s, "the duel is over"), nil
		}
		if act.UserID != s.player() {
			return game.Rejected(s, "this duel is not yours"), nil
		}
		throw := strings.ToLower(strings.TrimSpace(act.Payload))
		if _, valid := beats[throw]; !valid {
			return game.Rejected(s, "throw rock, paper or scissors"), nil
		}

		next := s.clone()
		next.Phase = PhaseResolve
		next.PendingThrow = throw
		return &game.StepResult{
			State: next,
			OK:    true,
			Effects: []game.Effect{
				game.SendMessage{Content: fmt.Sprintf("You threw %s. The bot is thinking...", throw)},
				game.ScheduleMove{Delay: botMoveDelay},
				game.ScheduleTimeout{Duration: inactivityTimeout},
			},
		}, nil

	case ActionReplay:
		if s.Phase != PhaseGameOver {
			return game.Rejected(s, "the duel is still running"), nil
		}
		next := &State{
			Phase:      PhaseThrow,
			Players:    append([]string(nil), s.Players...),
			WinsNeeded: s.WinsNeeded,
		}
		return &game.StepResult{
			State: next,
			OK:    true,
			Effects: []game.Effect{
				game.SendMessage{Content: "Rematch! Throw rock, paper or scissors."},
				game.ScheduleTimeout{Duration: inactivityTimeout},
			},
		}, nil

	default:
		return game.Rejected(s, fmt.Sprintf("unknown action %q", act.Type)), nil
	}
}

// SystemMove resolves the pending round with the bot's throw.
func (d *Duel) SystemMove(ctx context.Context, cur game.State) (*game.StepResult, error) {
	s, ok := cur.(*State)
	if !ok {
		return nil, fmt.Errorf("duel: unexpected state type %T", cur)
	}
	if s.Phase != PhaseResolve || s.PendingThrow == "" {
		// A stale timer fired after the game moved on; nothing to do.
		return &game.StepResult{State: s, OK: true}, nil
	}

	botThrow := throws[rand.Intn(len(throws))]
	next := s.clone()
	next.Rounds++
	next.PendingThrow = ""
	next.Phase = PhaseThrow

	var outcome string
	switch {
	case beats[s.PendingThrow] == botThrow:
		next.PlayerScore++
		outcome = "you win the round"
	case beats[botThrow] == s.PendingThrow:
		next.BotScore++
		outcome = "the bot wins the round"
	default:
		outcome = "a draw"
	}

	effects := []game.Effect{
		game.SendMessage{Content: fmt.Sprintf("The bot threw %s: %s! Score %d:%d.",
			botThrow, outcome, next.PlayerScore, next.BotScore)},
	}

	switch {
	case next.PlayerScore >= next.WinsNeeded:
		next.Phase = PhaseGameOver
		next.WinnerID = next.player()
		effects = append(effects, game.EndGame{Reason: "won", WinnerID: next.WinnerID})
	case next.BotScore >= next.WinsNeeded:
		next.Phase = PhaseGameOver
		next.WinnerID = "bot"
		effects = append(effects, game.EndGame{Reason: "lost", WinnerID: "bot"})
	default:
		effects = append(effects, game.ScheduleTimeout{Duration: inactivityTimeout})
	}

	return &game.StepResult{State: next, OK: true, Effects: effects}, nil
}

// CheckEnd reports whether the duel reached an end condition.
func (d *Duel) CheckEnd(cur game.State) game.EndCheck {
	s, ok := cur.(*State)
	if !ok || s.Phase != PhaseGameOver {
		return game.EndCheck{}
	}
	switch s.WinnerID {
	case "":
		return game.EndCheck{ShouldEnd: true, Reason: "quit"}
	case "bot":
		return game.EndCheck{ShouldEnd: true, WinnerID: "bot", Reason: "lost"}
	default:
		return game.EndCheck{ShouldEnd: true, WinnerID: s.WinnerID, Reason: "won"}
	}
}

// AvailableActions lists the currently legal action types.
func (d *Duel) AvailableActions(cur game.State) []string {
	s, ok := cur.(*State)
	if !ok {
		return nil
	}
	switch s.Phase {
	case PhaseThrow:
		return []string{ActionThrow, ActionQuit}
	case PhaseResolve:
		return []string{ActionQuit}
	default:
		return []string{ActionReplay, ActionQuit}
	}
}

// DisplayState renders a plain-text summary.
func (d *Duel) DisplayState(cur game.State) string {
	s, ok := cur.(*State)
	if !ok {
		return ""
	}
	switch s.Phase {
	case PhaseResolve:
		return fmt.Sprintf("Waiting for the bot's throw. Score %d:%d after %d rounds.",
			s.PlayerScore, s.BotScore, s.Rounds)
	case PhaseGameOver:
		return fmt.Sprintf("Duel over, %s won %d:%d.", s.WinnerID, s.PlayerScore, s.BotScore)
	default:
		return fmt.Sprintf("Your throw. Score %d:%d after %d rounds, first to %d.",
			s.PlayerScore, s.BotScore, s.Rounds, s.WinsNeeded)
	}
}

// DecodeState rebuilds the typed state from its persisted JSON form.
func (d *Duel) DecodeState(data []byte) (game.State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("duel: decode state: %w", err)
	}
	return &s, nil
}
