package game

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubGame is a minimal Game used to exercise the registry.
type stubGame struct {
	gameType string
	scratch  int // would leak between sessions if instances were shared
}

func (g *stubGame) Type() string        { return g.gameType }
func (g *stubGame) Name() string        { return "Stub" }
func (g *stubGame) Description() string { return "stub game" }
func (g *stubGame) Start(ctx context.Context, opts StartOptions) (*StepResult, error) {
	return &StepResult{OK: true}, nil
}
func (g *stubGame) Process(ctx context.Context, cur State, act Action) (*StepResult, error) {
	return &StepResult{State: cur, OK: true}, nil
}
func (g *stubGame) Validate(cur State, act Action) bool    { return true }
func (g *stubGame) CheckEnd(cur State) EndCheck            { return EndCheck{} }
func (g *stubGame) AvailableActions(cur State) []string    { return nil }
func (g *stubGame) DisplayState(cur State) string          { return "" }
func (g *stubGame) DecodeState(data []byte) (State, error) { return nil, nil }

func TestRegistryCreateReturnsFreshInstances(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("stub", func() Game { return &stubGame{gameType: "stub"} }))

	first := r.Create("stub")
	second := r.Create("stub")
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.NotSame(t, first, second, "each Create call must return a new instance")

	// Scratch state on one instance must not be visible on another.
	first.(*stubGame).scratch = 42
	assert.Zero(t, second.(*stubGame).scratch)
}

func TestRegistryCreateUnknownType(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.Create("nope"), "unknown types return nil, not an error")
}

func TestRegistryRejectsDuplicatesAndNilFactories(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("stub", func() Game { return &stubGame{gameType: "stub"} }))

	assert.Error(t, r.Register("stub", func() Game { return &stubGame{gameType: "stub"} }))
	assert.Error(t, r.Register("other", nil))
	assert.Error(t, r.Register("", func() Game { return &stubGame{} }))
}

func TestRegistryTypesAndCount(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("a", func() Game { return &stubGame{gameType: "a"} }))
	require.NoError(t, r.Register("b", func() Game { return &stubGame{gameType: "b"} }))

	assert.Equal(t, 2, r.Count())
	assert.ElementsMatch(t, []string{"a", "b"}, r.Types())
}
