package guess

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"chat-game-bot/internal/game"
)

func mustStart(t *testing.T, params map[string]string) *State {
	t.Helper()
	res, err := New().Start(context.Background(), game.StartOptions{
		HostID:    "u1",
		ChannelID: "c1",
		Params:    params,
	})
	require.NoError(t, err)
	require.True(t, res.OK)
	return res.State.(*State)
}

func TestStartInitializesCompleteState(t *testing.T) {
	st := mustStart(t, nil)

	assert.Equal(t, PhasePlaying, st.Phase)
	assert.Equal(t, []string{"u1"}, st.Participants())
	assert.True(t, st.Active())
	assert.GreaterOrEqual(t, st.Target, 1)
	assert.LessOrEqual(t, st.Target, defaultUpperBound)
}

func TestStartSchedulesInactivityTimeout(t *testing.T) {
	res, err := New().Start(context.Background(), game.StartOptions{HostID: "u1"})
	require.NoError(t, err)

	var found bool
	for _, eff := range res.Effects {
		if _, ok := eff.(game.ScheduleTimeout); ok {
			found = true
		}
	}
	assert.True(t, found, "start must arm an inactivity timeout")
}

func TestStartRejectsBadUpperBound(t *testing.T) {
	res, err := New().Start(context.Background(), game.StartOptions{
		HostID: "u1",
		Params: map[string]string{"upper": "one"},
	})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.NotEmpty(t, res.Message)
}

func TestCorrectGuessEndsGame(t *testing.T) {
	g := New()
	st := mustStart(t, nil)

	res, err := g.Process(context.Background(), st, game.Action{
		UserID: "u1", Type: ActionGuess, Payload: strconv.Itoa(st.Target),
	})
	require.NoError(t, err)
	require.True(t, res.OK)

	next := res.State.(*State)
	assert.Equal(t, PhaseGameOver, next.Phase)
	assert.Equal(t, "u1", next.WinnerID)
	assert.False(t, next.Active())

	end := g.CheckEnd(next)
	assert.True(t, end.ShouldEnd)
	assert.Equal(t, "u1", end.WinnerID)

	var hasEnd bool
	for _, eff := range res.Effects {
		if e, ok := eff.(game.EndGame); ok {
			hasEnd = true
			assert.Equal(t, "u1", e.WinnerID)
		}
	}
	assert.True(t, hasEnd, "a winning guess must emit an end-game effect")
}

func TestWrongGuessGivesDirectionHint(t *testing.T) {
	g := New()
	st := mustStart(t, map[string]string{"upper": "10"})
	st.Target = 5

	res, err := g.Process(context.Background(), st, game.Action{
		UserID: "u1", Type: ActionGuess, Payload: "3",
	})
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Equal(t, "higher", res.Message)

	res, err = g.Process(context.Background(), st, game.Action{
		UserID: "u1", Type: ActionGuess, Payload: "8",
	})
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Equal(t, "lower", res.Message)
}

func TestProcessDoesNotMutateInput(t *testing.T) {
	g := New()
	st := mustStart(t, nil)
	st.Target = 50

	before := *st
	_, err := g.Process(context.Background(), st, game.Action{
		UserID: "u2", Type: ActionGuess, Payload: "10",
	})
	require.NoError(t, err)

	assert.Equal(t, before.Attempts, st.Attempts)
	assert.Equal(t, before.Players, st.Players)
	assert.Equal(t, before.Phase, st.Phase)
}

func TestGuessImplicitlyJoins(t *testing.T) {
	g := New()
	st := mustStart(t, nil)
	st.Target = 50

	res, err := g.Process(context.Background(), st, game.Action{
		UserID: "u2", Type: ActionGuess, Payload: "10",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, res.State.Participants())
}

func TestJoinUpdatesParticipants(t *testing.T) {
	g := New()
	st := mustStart(t, nil)

	res, err := g.Process(context.Background(), st, game.Action{UserID: "u2", Type: ActionJoin})
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Equal(t, []string{"u1", "u2"}, res.State.Participants())

	var updated bool
	for _, eff := range res.Effects {
		if e, ok := eff.(game.UpdateParticipants); ok {
			updated = true
			assert.Equal(t, []string{"u1", "u2"}, e.Participants)
		}
	}
	assert.True(t, updated)

	// Joining twice is an expected rejection.
	res, err = g.Process(context.Background(), res.State, game.Action{UserID: "u2", Type: ActionJoin})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.NotEmpty(t, res.Message)
}

func TestGameOverOnlyAllowsReplayAndQuit(t *testing.T) {
	g := New()
	st := mustStart(t, nil)
	st.Phase = PhaseGameOver

	assert.Equal(t, []string{ActionReplay, ActionQuit}, g.AvailableActions(st))

	res, err := g.Process(context.Background(), st, game.Action{
		UserID: "u1", Type: ActionGuess, Payload: "1",
	})
	require.NoError(t, err)
	assert.False(t, res.OK)

	res, err = g.Process(context.Background(), st, game.Action{UserID: "u1", Type: ActionReplay})
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Equal(t, PhasePlaying, res.State.(*State).Phase)
	assert.Equal(t, []string{"u1"}, res.State.Participants(), "replay keeps the players")
}

func TestQuitEmitsEndGame(t *testing.T) {
	g := New()
	st := mustStart(t, nil)

	res, err := g.Process(context.Background(), st, game.Action{UserID: "u1", Type: ActionQuit})
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.False(t, res.State.(*State).Active())
	require.Len(t, res.Effects, 1)
	assert.IsType(t, game.EndGame{}, res.Effects[0])
}

func TestDecodeStateRoundTrip(t *testing.T) {
	g := New()
	st := mustStart(t, nil)
	st.Attempts = 3

	data, err := json.Marshal(st)
	require.NoError(t, err)

	decoded, err := g.DecodeState(data)
	require.NoError(t, err)
	assert.Equal(t, st, decoded)

	_, err = g.DecodeState([]byte("not json"))
	assert.Error(t, err)
}

// TestValidateProcessAgreementProperty checks that whenever Validate
// accepts an action, Process does not reject it.
func TestValidateProcessAgreementProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		g := New()

		st := &State{
			Phase:   rapid.SampledFrom([]string{PhasePlaying, PhaseGameOver}).Draw(t, "phase"),
			Players: []string{"u1"},
			Target:  rapid.IntRange(1, 100).Draw(t, "target"),
			Upper:   100,
		}

		actionType := rapid.SampledFrom([]string{
			ActionGuess, ActionJoin, ActionReplay, ActionQuit, "bogus",
		}).Draw(t, "actionType")
		payload := rapid.SampledFrom([]string{
			"", "0", "1", "50", "100", "101", "abc",
		}).Draw(t, "payload")
		userID := rapid.SampledFrom([]string{"u1", "u2"}).Draw(t, "userID")

		act := game.Action{UserID: userID, Type: actionType, Payload: payload}

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

// TestGuessConvergesProperty plays binary search against a random target
// and checks the hints always converge to a win.
func TestGuessConvergesProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		g := New()
		upper := rapid.IntRange(2, 500).Draw(t, "upper")

		res, err := g.Start(context.Background(), game.StartOptions{
			HostID: "u1",
			Params: map[string]string{"upper": strconv.Itoa(upper)},
		})
		if err != nil || !res.OK {
			t.Fatalf("start failed: %v %s", err, res.Message)
		}

		cur := res.State
		lo, hi := 1, upper
		for i := 0; i < 16; i++ {
			mid := (lo + hi) / 2
			step, err := g.Process(context.Background(), cur, game.Action{
				UserID: "u1", Type: ActionGuess, Payload: fmt.Sprint(mid),
			})
			if err != nil || !step.OK {
				t.Fatalf("guess failed: %v %s", err, step.Message)
			}
			cur = step.State
			switch step.Message {
			case "higher":
				lo = mid + 1
			case "lower":
				hi = mid - 1
			default:
				if cur.Active() {
					t.Fatalf("winning guess left the game active")
				}
				return
			}
		}
		t.Fatalf("binary search did not converge within 16 guesses for upper=%d", upper)
	})
}
