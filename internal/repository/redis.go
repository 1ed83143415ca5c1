package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"chat-game-bot/internal/model"
)

// Key layout for the Redis backend.
const (
	channelKeyPrefix = "game:channel:"
	sessionKeyPrefix = "game:session:"
	gameChannelsKey  = "game:channels"
)

// txRetries bounds the optimistic WATCH retry loop.
const txRetries = 5

// RedisStore implements Store on Redis. The two-record transactions use
// WATCH on the channel key plus a TxPipeline, retried on contention.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a new RedisStore instance.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func channelKey(channelID string) string { return channelKeyPrefix + channelID }
func sessionKey(sessionID string) string { return sessionKeyPrefix + sessionID }

func (s *RedisStore) getChannelMode(ctx context.Context, c redis.Cmdable, channelID string) (*model.ChannelMode, error) {
	raw, err := c.Get(ctx, channelKey(channelID)).Result()
	if errors.Is(err, redis.Nil) {
		return &model.ChannelMode{ChannelID: channelID, Mode: model.ModeNormal}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel mode: %w", err)
	}

	var cm model.ChannelMode
	if err := json.Unmarshal([]byte(raw), &cm); err != nil {
		return nil, fmt.Errorf("failed to decode channel mode: %w", err)
	}
	return &cm, nil
}

func (s *RedisStore) getSession(ctx context.Context, c redis.Cmdable, sessionID string) (*model.GameSession, error) {
	raw, err := c.Get(ctx, sessionKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var gs model.GameSession
	if err := json.Unmarshal([]byte(raw), &gs); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &gs, nil
}

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode record: %w", err)
	}
	return string(b), nil
}

// ChannelMode returns the channel's routing record.
func (s *RedisStore) ChannelMode(ctx context.Context, channelID string) (*model.ChannelMode, error) {
	return s.getChannelMode(ctx, s.rdb, channelID)
}

// Session returns a session by ID.
func (s *RedisStore) Session(ctx context.Context, sessionID string) (*model.GameSession, error) {
	return s.getSession(ctx, s.rdb, sessionID)
}

// ActiveSession returns the channel's active session.
func (s *RedisStore) ActiveSession(ctx context.Context, channelID string) (*model.GameSession, error) {
	cm, err := s.ChannelMode(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if !cm.InGame() {
		return nil, ErrNoActiveSession
	}

	gs, err := s.getSession(ctx, s.rdb, *cm.ActiveSessionID)
	if errors.Is(err, ErrSessionNotFound) || (err == nil && !gs.IsActive) {
		return nil, ErrNoActiveSession
	}
	if err != nil {
		return nil, err
	}
	return gs, nil
}

// CreateSession atomically stores the session and points the channel at
// it. WATCH on the channel key makes the busy check and the two writes
// one atomic step.
func (s *RedisStore) CreateSession(ctx context.Context, gs *model.GameSession) error {
	txn := func(tx *redis.Tx) error {
		cm, err := s.getChannelMode(ctx, tx, gs.ChannelID)
		if err != nil {
			return err
		}
		if cm.InGame() {
			return ErrChannelBusy
		}

		sessionVal, err := encode(gs)
		if err != nil {
			return err
		}
		channelVal, err := encode(&model.ChannelMode{
			ChannelID:       gs.ChannelID,
			Mode:            model.ModeGame,
			ActiveSessionID: &gs.ID,
		})
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, sessionKey(gs.ID), sessionVal, 0)
			pipe.Set(ctx, channelKey(gs.ChannelID), channelVal, 0)
			pipe.SAdd(ctx, gameChannelsKey, gs.ChannelID)
			return nil
		})
		return err
	}

	return s.retryTx(ctx, txn, channelKey(gs.ChannelID))
}

// EndSession atomically deactivates the session and resets the channel.
func (s *RedisStore) EndSession(ctx context.Context, channelID string, endedAt time.Time) (bool, error) {
	stopped := false

	txn := func(tx *redis.Tx) error {
		stopped = false

		cm, err := s.getChannelMode(ctx, tx, channelID)
		if err != nil {
			return err
		}
		if !cm.InGame() {
			return nil
		}

		gs, err := s.getSession(ctx, tx, *cm.ActiveSessionID)
		if errors.Is(err, ErrSessionNotFound) {
			// Should not happen given the transactional create, but a
			// dangling pointer must still be releasable.
			gs = nil
		} else if err != nil {
			return err
		}

		var sessionVal string
		if gs != nil {
			gs.IsActive = false
			gs.EndedAt = &endedAt
			if sessionVal, err = encode(gs); err != nil {
				return err
			}
		}
		channelVal, err := encode(&model.ChannelMode{ChannelID: channelID, Mode: model.ModeNormal})
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if gs != nil {
				pipe.Set(ctx, sessionKey(gs.ID), sessionVal, 0)
			}
			pipe.Set(ctx, channelKey(channelID), channelVal, 0)
			pipe.SRem(ctx, gameChannelsKey, channelID)
			return nil
		})
		if err != nil {
			return err
		}
		stopped = true
		return nil
	}

	if err := s.retryTx(ctx, txn, channelKey(channelID)); err != nil {
		return false, err
	}
	return stopped, nil
}

// updateSession applies fn to the session under WATCH and writes it back.
func (s *RedisStore) updateSession(ctx context.Context, sessionID string, fn func(*model.GameSession)) error {
	txn := func(tx *redis.Tx) error {
		gs, err := s.getSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}

		fn(gs)
		val, err := encode(gs)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, sessionKey(sessionID), val, 0)
			return nil
		})
		return err
	}

	return s.retryTx(ctx, txn, sessionKey(sessionID))
}

// SaveSessionState replaces the state blob and participant list.
func (s *RedisStore) SaveSessionState(ctx context.Context, sessionID string, gameData []byte, participants []string) error {
	return s.updateSession(ctx, sessionID, func(gs *model.GameSession) {
		gs.GameData = gameData
		gs.Participants = participants
	})
}

// SetParticipants replaces only the participant list.
func (s *RedisStore) SetParticipants(ctx context.Context, sessionID string, participants []string) error {
	return s.updateSession(ctx, sessionID, func(gs *model.GameSession) {
		gs.Participants = participants
	})
}

// SetLastMessageRef records the message currently showing the game.
func (s *RedisStore) SetLastMessageRef(ctx context.Context, sessionID, ref string) error {
	return s.updateSession(ctx, sessionID, func(gs *model.GameSession) {
		gs.LastMessageRef = &ref
	})
}

// GameChannels lists every channel currently in GAME mode.
func (s *RedisStore) GameChannels(ctx context.Context) ([]string, error) {
	channels, err := s.rdb.SMembers(ctx, gameChannelsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list game channels: %w", err)
	}
	return channels, nil
}

// retryTx runs an optimistic WATCH transaction, retrying on contention.
func (s *RedisStore) retryTx(ctx context.Context, txn func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < txRetries; i++ {
		err := s.rdb.Watch(ctx, txn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("transaction contention on %v after %d retries", keys, txRetries)
}
