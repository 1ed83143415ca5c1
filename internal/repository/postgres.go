package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chat-game-bot/internal/model"
)

// PostgresStore implements Store on PostgreSQL via pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore instance.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the engine's tables. Called from main at startup and
// from integration tests.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS game_sessions (
			id TEXT PRIMARY KEY,
			channel_id TEXT NOT NULL,
			game_type TEXT NOT NULL,
			game_data JSONB NOT NULL,
			participants TEXT[] NOT NULL DEFAULT '{}',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			ended_at TIMESTAMPTZ,
			last_message_ref TEXT
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_game_sessions_one_active
			ON game_sessions(channel_id) WHERE is_active;
		CREATE INDEX IF NOT EXISTS idx_game_sessions_channel_time
			ON game_sessions(channel_id, created_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("migrate game_sessions: %w", err)
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS channel_modes (
			channel_id TEXT PRIMARY KEY,
			mode TEXT NOT NULL DEFAULT 'NORMAL',
			active_session_id TEXT REFERENCES game_sessions(id)
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate channel_modes: %w", err)
	}

	return nil
}

// ChannelMode returns the channel's routing record.
func (s *PostgresStore) ChannelMode(ctx context.Context, channelID string) (*model.ChannelMode, error) {
	const query = `
		SELECT channel_id, mode, active_session_id
		FROM channel_modes
		WHERE channel_id = $1
	`

	var cm model.ChannelMode
	err := s.pool.QueryRow(ctx, query, channelID).Scan(&cm.ChannelID, &cm.Mode, &cm.ActiveSessionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return &model.ChannelMode{ChannelID: channelID, Mode: model.ModeNormal}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel mode: %w", err)
	}

	return &cm, nil
}

const sessionColumns = `
	id, channel_id, game_type, game_data, participants,
	is_active, created_at, ended_at, last_message_ref
`

func scanSession(row pgx.Row) (*model.GameSession, error) {
	var gs model.GameSession
	err := row.Scan(
		&gs.ID,
		&gs.ChannelID,
		&gs.GameType,
		&gs.GameData,
		&gs.Participants,
		&gs.IsActive,
		&gs.CreatedAt,
		&gs.EndedAt,
		&gs.LastMessageRef,
	)
	if err != nil {
		return nil, err
	}
	return &gs, nil
}

// Session returns a session by ID.
func (s *PostgresStore) Session(ctx context.Context, sessionID string) (*model.GameSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM game_sessions WHERE id = $1`

	gs, err := scanSession(s.pool.QueryRow(ctx, query, sessionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return gs, nil
}

// ActiveSession returns the channel's active session.
func (s *PostgresStore) ActiveSession(ctx context.Context, channelID string) (*model.GameSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM game_sessions WHERE channel_id = $1 AND is_active`

	gs, err := scanSession(s.pool.QueryRow(ctx, query, channelID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoActiveSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}

	return gs, nil
}

// CreateSession atomically inserts the session and flips the channel to
// GAME mode. Both writes share one transaction.
func (s *PostgresStore) CreateSession(ctx context.Context, gs *model.GameSession) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertSession = `
		INSERT INTO game_sessions
			(id, channel_id, game_type, game_data, participants, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)
	`
	if _, err := tx.Exec(ctx, insertSession,
		gs.ID, gs.ChannelID, gs.GameType, gs.GameData, gs.Participants, gs.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	// The WHERE clause refuses the upsert when the channel already holds
	// an active pointer, which keeps the one-active-game invariant inside
	// the transaction rather than only in the manager's pre-check.
	const claimChannel = `
		INSERT INTO channel_modes (channel_id, mode, active_session_id)
		VALUES ($1, 'GAME', $2)
		ON CONFLICT (channel_id) DO UPDATE
			SET mode = 'GAME', active_session_id = EXCLUDED.active_session_id
			WHERE channel_modes.active_session_id IS NULL
	`
	tag, err := tx.Exec(ctx, claimChannel, gs.ChannelID, gs.ID)
	if err != nil {
		return fmt.Errorf("failed to claim channel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrChannelBusy
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit session creation: %w", err)
	}

	return nil
}

// SaveSessionState replaces the state blob and participant list.
func (s *PostgresStore) SaveSessionState(ctx context.Context, sessionID string, gameData []byte, participants []string) error {
	const query = `
		UPDATE game_sessions
		SET game_data = $2, participants = $3
		WHERE id = $1
	`

	tag, err := s.pool.Exec(ctx, query, sessionID, gameData, participants)
	if err != nil {
		return fmt.Errorf("failed to save session state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}

	return nil
}

// SetParticipants replaces only the participant list.
func (s *PostgresStore) SetParticipants(ctx context.Context, sessionID string, participants []string) error {
	const query = `UPDATE game_sessions SET participants = $2 WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, sessionID, participants)
	if err != nil {
		return fmt.Errorf("failed to set participants: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}

	return nil
}

// SetLastMessageRef records the message currently showing the game.
func (s *PostgresStore) SetLastMessageRef(ctx context.Context, sessionID, ref string) error {
	const query = `UPDATE game_sessions SET last_message_ref = $2 WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, sessionID, ref)
	if err != nil {
		return fmt.Errorf("failed to set last message ref: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}

	return nil
}

// EndSession atomically deactivates the channel's session and resets the
// channel to NORMAL. Returns false when there was nothing to stop.
func (s *PostgresStore) EndSession(ctx context.Context, channelID string, endedAt time.Time) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	const lockChannel = `
		SELECT active_session_id
		FROM channel_modes
		WHERE channel_id = $1 AND mode = 'GAME'
		FOR UPDATE
	`
	var sessionID *string
	err = tx.QueryRow(ctx, lockChannel, channelID).Scan(&sessionID)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && sessionID == nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to lock channel: %w", err)
	}

	const endSession = `
		UPDATE game_sessions
		SET is_active = FALSE, ended_at = $2
		WHERE id = $1 AND is_active
	`
	if _, err := tx.Exec(ctx, endSession, *sessionID, endedAt); err != nil {
		return false, fmt.Errorf("failed to end session: %w", err)
	}

	const releaseChannel = `
		UPDATE channel_modes
		SET mode = 'NORMAL', active_session_id = NULL
		WHERE channel_id = $1
	`
	if _, err := tx.Exec(ctx, releaseChannel, channelID); err != nil {
		return false, fmt.Errorf("failed to release channel: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit session end: %w", err)
	}

	return true, nil
}

// GameChannels lists every channel currently in GAME mode.
func (s *PostgresStore) GameChannels(ctx context.Context) ([]string, error) {
	const query = `SELECT channel_id FROM channel_modes WHERE mode = 'GAME'`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list game channels: %w", err)
	}
	defer rows.Close()

	var channels []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan channel id: %w", err)
		}
		channels = append(channels, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating game channels: %w", err)
	}

	return channels, nil
}
