package word

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"chat-game-bot/internal/game"
)

func mustStart(t *testing.T, target string) *State {
	t.Helper()
	params := map[string]string{}
	if target != "" {
		params["word"] = target
	}
	res, err := New().Start(context.Background(), game.StartOptions{
		HostID: "u1",
		Params: params,
	})
	require.NoError(t, err)
	require.True(t, res.OK)
	return res.State.(*State)
}

func TestStartMasksTheWord(t *testing.T) {
	st := mustStart(t, "gopher")

	assert.Equal(t, PhasePlaying, st.Phase)
	assert.Equal(t, "______", st.masked())
	assert.Equal(t, []string{"u1"}, st.Participants())
}

func TestStartRejectsInvalidWord(t *testing.T) {
	res, err := New().Start(context.Background(), game.StartOptions{
		HostID: "u1",
		Params: map[string]string{"word": "x!"},
	})
	require.NoError(t, err)
	assert.False(t, res.OK)
}

func TestCorrectLettersRevealTheWord(t *testing.T) {
	g := New()
	cur := game.State(mustStart(t, "go"))

	for _, l := range []string{"g", "o"} {
		res, err := g.Process(context.Background(), cur, game.Action{
			UserID: "u1", Type: ActionLetter, Payload: l,
		})
		require.NoError(t, err)
		require.True(t, res.OK)
		cur = res.State
	}

	st := cur.(*State)
	assert.Equal(t, PhaseGameOver, st.Phase)
	assert.True(t, st.Solved)
	assert.Zero(t, st.Misses)
}

func TestMissBudgetEndsTheGame(t *testing.T) {
	g := New()
	cur := game.State(mustStart(t, "go"))

	wrong := []string{"a", "b", "c", "d", "e", "f"}
	require.Len(t, wrong, maxMisses)

	for i, l := range wrong {
		res, err := g.Process(context.Background(), cur, game.Action{
			UserID: "u1", Type: ActionLetter, Payload: l,
		})
		require.NoError(t, err)
		require.True(t, res.OK)
		cur = res.State

		st := cur.(*State)
		assert.Equal(t, i+1, st.Misses)
	}

	st := cur.(*State)
	assert.Equal(t, PhaseGameOver, st.Phase)
	assert.False(t, st.Solved)

	end := g.CheckEnd(st)
	assert.True(t, end.ShouldEnd)
	assert.Equal(t, "out of misses", end.Reason)
}

func TestRepeatedLetterIsRejected(t *testing.T) {
	g := New()
	st := mustStart(t, "gopher")

	res, err := g.Process(context.Background(), st, game.Action{
		UserID: "u1", Type: ActionLetter, Payload: "g",
	})
	require.NoError(t, err)
	require.True(t, res.OK)

	res, err = g.Process(context.Background(), res.State, game.Action{
		UserID: "u1", Type: ActionLetter, Payload: "g",
	})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Contains(t, res.Message, "already")
}

func TestSolveEndsOrCounts(t *testing.T) {
	g := New()
	st := mustStart(t, "gopher")

	res, err := g.Process(context.Background(), st, game.Action{
		UserID: "u2", Type: ActionSolve, Payload: "badger",
	})
	require.NoError(t, err)
	require.True(t, res.OK)
	next := res.State.(*State)
	assert.Equal(t, 1, next.Misses)
	assert.Contains(t, next.Players, "u2", "solving implicitly joins")

	res, err = g.Process(context.Background(), next, game.Action{
		UserID: "u2", Type: ActionSolve, Payload: "GOPHER",
	})
	require.NoError(t, err)
	require.True(t, res.OK)
	final := res.State.(*State)
	assert.True(t, final.Solved)
	assert.Equal(t, PhaseGameOver, final.Phase)
}

func TestDecodeStateRoundTrip(t *testing.T) {
	g := New()
	st := mustStart(t, "gopher")
	st.Guessed = "ae"
	st.Misses = 2

	data, err := json.Marshal(st)
	require.NoError(t, err)
	decoded, err := g.DecodeState(data)
	require.NoError(t, err)
	assert.Equal(t, st, decoded)
}

// TestValidateProcessAgreementProperty checks Validate and Process agree.
func TestValidateProcessAgreementProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		g := New()

		st := &State{
			Phase:   rapid.SampledFrom([]string{PhasePlaying, PhaseGameOver}).Draw(t, "phase"),
			Players: []string{"u1"},
			Word:    rapid.SampledFrom(words).Draw(t, "word"),
			Guessed: rapid.SampledFrom([]string{"", "a", "ae", "xyz"}).Draw(t, "guessed"),
		}

		act := game.Action{
			UserID: rapid.SampledFrom([]string{"u1", "u2"}).Draw(t, "userID"),
			Type: rapid.SampledFrom([]string{
				ActionLetter, ActionSolve, ActionJoin, ActionReplay, ActionQuit, "bogus",
			}).Draw(t, "actionType"),
			Payload: rapid.SampledFrom([]string{"", "a", "z", "zz", "gopher", "!"}).Draw(t, "payload"),
		}

		if g.Validate(st, act) {
			res, err := g.Process(context.Background(), st, act)
			if err != nil {
				t.Fatalf("Process errored on validated action %+v: %v", act, err)
			}
			if !res.OK {
				t.Fatalf("Process rejected validated action %+v: %s", act, res.Message)
			}
		}
	})
}

func TestDisplayStateShowsProgress(t *testing.T) {
	g := New()
	st := mustStart(t, "gopher")
	st.Guessed = "go"

	display := g.DisplayState(st)
	assert.True(t, strings.HasPrefix(display, "go____"), display)
}
