// Package model defines the persisted records of the game session engine.
package model

import "time"

// Mode describes how the bot treats messages in a channel.
type Mode string

const (
	// ModeNormal routes messages to the regular chat flows.
	ModeNormal Mode = "NORMAL"
	// ModeGame routes messages to the active game session.
	ModeGame Mode = "GAME"
)

// ChannelMode is the per-channel routing record.
// Invariant: Mode == ModeGame exactly when ActiveSessionID points at a
// session whose IsActive flag is set. Only the game manager mutates it.
type ChannelMode struct {
	ChannelID       string  `db:"channel_id" json:"channel_id"`
	Mode            Mode    `db:"mode" json:"mode"`
	ActiveSessionID *string `db:"active_session_id" json:"active_session_id,omitempty"`
}

// InGame reports whether the channel currently points at a session.
func (c *ChannelMode) InGame() bool {
	return c != nil && c.Mode == ModeGame && c.ActiveSessionID != nil
}

// GameSession is one persisted run of a game inside a channel.
// Sessions are marked inactive on stop, never deleted, so history stays
// available for auditing and cleanup jobs.
type GameSession struct {
	ID             string     `db:"id" json:"id"`
	ChannelID      string     `db:"channel_id" json:"channel_id"`
	GameType       string     `db:"game_type" json:"game_type"`
	GameData       []byte     `db:"game_data" json:"game_data"` // JSON blob owned by the game implementation
	Participants   []string   `db:"participants" json:"participants"`
	IsActive       bool       `db:"is_active" json:"is_active"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	EndedAt        *time.Time `db:"ended_at" json:"ended_at,omitempty"`
	LastMessageRef *string    `db:"last_message_ref" json:"last_message_ref,omitempty"`
}

// Stop reasons recorded when a session ends.
const (
	StopReasonManual     = "manual"
	StopReasonInactivity = "inactivity"
	StopReasonRestart    = "process restarted"
	StopReasonFinished   = "finished"
)
