// Package repository provides the persistence layer for channel modes
// and game sessions. Two backends implement the same Store interface:
// PostgreSQL (pgx) and Redis. The game manager is the only caller that
// mutates these records.
package repository

import (
	"context"
	"errors"
	"time"

	"chat-game-bot/internal/model"
)

// Store errors. ErrChannelBusy and ErrNoActiveSession are expected
// outcomes the manager branches on; everything else is infrastructure.
var (
	// ErrChannelBusy means the channel already points at an active session.
	ErrChannelBusy = errors.New("channel already has an active game")
	// ErrSessionNotFound means no session exists under the given ID.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNoActiveSession means the channel has no active session.
	ErrNoActiveSession = errors.New("no active session for channel")
)

// Store is the persistence contract the game manager depends on.
//
// CreateSession and EndSession are the two transactional boundaries: each
// touches both the session row and the channel-mode row, and both writes
// commit or roll back together. A channel pointing at a missing session,
// or a GAME-mode channel with no session, must never be observable.
type Store interface {
	// ChannelMode returns the channel's routing record. Channels never
	// seen before come back as ModeNormal with no session pointer.
	ChannelMode(ctx context.Context, channelID string) (*model.ChannelMode, error)

	// Session returns a session by ID, active or not.
	// Returns ErrSessionNotFound if it does not exist.
	Session(ctx context.Context, sessionID string) (*model.GameSession, error)

	// ActiveSession returns the channel's active session, or
	// ErrNoActiveSession.
	ActiveSession(ctx context.Context, channelID string) (*model.GameSession, error)

	// CreateSession atomically inserts the session row and points the
	// channel at it in GAME mode. Returns ErrChannelBusy without writing
	// anything if the channel already hosts an active session.
	CreateSession(ctx context.Context, s *model.GameSession) error

	// SaveSessionState replaces the session's state blob and participant
	// list. Last write wins; stale writes after a stop are tolerated.
	SaveSessionState(ctx context.Context, sessionID string, gameData []byte, participants []string) error

	// SetParticipants replaces only the participant list.
	SetParticipants(ctx context.Context, sessionID string, participants []string) error

	// SetLastMessageRef records which delivered message currently
	// represents the live game view, for later edits.
	SetLastMessageRef(ctx context.Context, sessionID, ref string) error

	// EndSession atomically marks the channel's active session inactive
	// (stamping endedAt) and resets the channel to NORMAL. Returns false
	// with no error when there was nothing to stop.
	EndSession(ctx context.Context, channelID string, endedAt time.Time) (bool, error)

	// GameChannels lists every channel currently in GAME mode. Used by
	// the startup sweep that stops sessions orphaned by a restart.
	GameChannels(ctx context.Context) ([]string, error)
}
