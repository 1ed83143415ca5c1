// Tests use testcontainers-go to spin up a PostgreSQL container and are
// skipped when Docker is unavailable.
package repository

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"chat-game-bot/internal/model"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupTestDB creates a PostgreSQL container, runs migrations and returns
// a connection pool. Skips the test if Docker is not available.
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	err = Migrate(ctx, pool)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool, cleanup
}

func newSession(channelID string) *model.GameSession {
	return &model.GameSession{
		ID:           uuid.NewString(),
		ChannelID:    channelID,
		GameType:     "guess",
		GameData:     []byte(`{"phase":"PLAYING"}`),
		Participants: []string{"u1"},
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestPostgresStore_CreateSession(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPostgresStore(pool)
	ctx := context.Background()

	gs := newSession("chan1")
	require.NoError(t, store.CreateSession(ctx, gs))

	// Session is retrievable by ID and as the channel's active session.
	got, err := store.Session(ctx, gs.ID)
	require.NoError(t, err)
	assert.Equal(t, gs.ID, got.ID)
	assert.Equal(t, "guess", got.GameType)
	assert.JSONEq(t, `{"phase":"PLAYING"}`, string(got.GameData))
	assert.Equal(t, []string{"u1"}, got.Participants)
	assert.True(t, got.IsActive)
	assert.Nil(t, got.EndedAt)

	active, err := store.ActiveSession(ctx, "chan1")
	require.NoError(t, err)
	assert.Equal(t, gs.ID, active.ID)

	// The channel now routes to GAME mode.
	cm, err := store.ChannelMode(ctx, "chan1")
	require.NoError(t, err)
	assert.Equal(t, model.ModeGame, cm.Mode)
	require.NotNil(t, cm.ActiveSessionID)
	assert.Equal(t, gs.ID, *cm.ActiveSessionID)
}

func TestPostgresStore_CreateSession_ChannelBusy(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPostgresStore(pool)
	ctx := context.Background()

	first := newSession("chan1")
	require.NoError(t, store.CreateSession(ctx, first))

	second := newSession("chan1")
	err := store.CreateSession(ctx, second)
	assert.ErrorIs(t, err, ErrChannelBusy)

	// The rejected session must not exist: the transaction rolled back.
	_, err = store.Session(ctx, second.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// The first session is untouched.
	active, err := store.ActiveSession(ctx, "chan1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, active.ID)
}

func TestPostgresStore_ChannelMode_UnknownChannel(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPostgresStore(pool)

	cm, err := store.ChannelMode(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Equal(t, model.ModeNormal, cm.Mode)
	assert.Nil(t, cm.ActiveSessionID)
}

func TestPostgresStore_SaveSessionState(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPostgresStore(pool)
	ctx := context.Background()

	gs := newSession("chan1")
	require.NoError(t, store.CreateSession(ctx, gs))

	newData := []byte(`{"phase":"PLAYING","attempts":3}`)
	require.NoError(t, store.SaveSessionState(ctx, gs.ID, newData, []string{"u1", "u2"}))

	got, err := store.Session(ctx, gs.ID)
	require.NoError(t, err)
	assert.JSONEq(t, string(newData), string(got.GameData))
	assert.Equal(t, []string{"u1", "u2"}, got.Participants)

	// Unknown session IDs are reported, not silently ignored.
	err = store.SaveSessionState(ctx, uuid.NewString(), newData, nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestPostgresStore_SetParticipants(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPostgresStore(pool)
	ctx := context.Background()

	gs := newSession("chan1")
	require.NoError(t, store.CreateSession(ctx, gs))

	require.NoError(t, store.SetParticipants(ctx, gs.ID, []string{"u1", "u2", "u3"}))

	got, err := store.Session(ctx, gs.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2", "u3"}, got.Participants)
	assert.JSONEq(t, `{"phase":"PLAYING"}`, string(got.GameData), "state blob must be untouched")
}

func TestPostgresStore_SetLastMessageRef(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPostgresStore(pool)
	ctx := context.Background()

	gs := newSession("chan1")
	require.NoError(t, store.CreateSession(ctx, gs))

	require.NoError(t, store.SetLastMessageRef(ctx, gs.ID, "chan1:42"))

	got, err := store.Session(ctx, gs.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessageRef)
	assert.Equal(t, "chan1:42", *got.LastMessageRef)

	err = store.SetLastMessageRef(ctx, uuid.NewString(), "x:1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestPostgresStore_EndSession(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPostgresStore(pool)
	ctx := context.Background()

	gs := newSession("chan1")
	require.NoError(t, store.CreateSession(ctx, gs))

	endedAt := time.Now().UTC().Truncate(time.Millisecond)
	stopped, err := store.EndSession(ctx, "chan1", endedAt)
	require.NoError(t, err)
	assert.True(t, stopped)

	// Session deactivated with the end timestamp.
	got, err := store.Session(ctx, gs.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	require.NotNil(t, got.EndedAt)
	assert.WithinDuration(t, endedAt, *got.EndedAt, time.Second)

	// Channel back to NORMAL with no pointer.
	cm, err := store.ChannelMode(ctx, "chan1")
	require.NoError(t, err)
	assert.Equal(t, model.ModeNormal, cm.Mode)
	assert.Nil(t, cm.ActiveSessionID)

	_, err = store.ActiveSession(ctx, "chan1")
	assert.ErrorIs(t, err, ErrNoActiveSession)

	// Ending again is a no-op, not an error.
	stopped, err = store.EndSession(ctx, "chan1", time.Now())
	require.NoError(t, err)
	assert.False(t, stopped)
}

func TestPostgresStore_EndSession_NeverStarted(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPostgresStore(pool)

	stopped, err := store.EndSession(context.Background(), "never-seen", time.Now())
	require.NoError(t, err)
	assert.False(t, stopped)
}

func TestPostgresStore_RestartAfterEndIsAllowed(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPostgresStore(pool)
	ctx := context.Background()

	first := newSession("chan1")
	require.NoError(t, store.CreateSession(ctx, first))

	_, err := store.EndSession(ctx, "chan1", time.Now())
	require.NoError(t, err)

	// A fresh session on the same channel succeeds once the old one ended.
	second := newSession("chan1")
	require.NoError(t, store.CreateSession(ctx, second))

	active, err := store.ActiveSession(ctx, "chan1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	// Both sessions remain in history.
	_, err = store.Session(ctx, first.ID)
	require.NoError(t, err)
}

func TestPostgresStore_GameChannels(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPostgresStore(pool)
	ctx := context.Background()

	require.NoError(t, store.CreateSession(ctx, newSession("chan1")))
	require.NoError(t, store.CreateSession(ctx, newSession("chan2")))
	require.NoError(t, store.CreateSession(ctx, newSession("chan3")))

	_, err := store.EndSession(ctx, "chan3", time.Now())
	require.NoError(t, err)

	channels, err := store.GameChannels(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"chan1", "chan2"}, channels)
}
