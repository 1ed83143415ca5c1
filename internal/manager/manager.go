// Package manager implements the game session engine's orchestrator.
// It is the only component that mutates persisted session and channel
// records, and the only one that knows how to execute the declarative
// effects game implementations return.
package manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"chat-game-bot/internal/game"
	"chat-game-bot/internal/model"
	"chat-game-bot/internal/pkg/lock"
	"chat-game-bot/internal/repository"
)

// genericErrMsg is what callers see for infrastructure failures.
// Internal detail stays in the logs.
const genericErrMsg = "an error occurred, please try again later"

// Sender is the transport collaborator that delivers content to a
// channel's user-facing surface. Failures are logged and non-fatal.
type Sender interface {
	Send(ctx context.Context, channelID, content string) error
}

// UpdateFunc is the optional callback invoked after a scheduled delayed
// move completes, so the transport can re-render without polling.
type UpdateFunc func(channelID string, res *Result)

// Result is the caller-visible outcome of a manager operation.
// OK == false with a Message is an expected rejection, not a fault.
type Result struct {
	OK      bool
	Message string
	Effects []game.Effect
	State   game.State
}

// ChannelGameState is the read-only projection used for routing.
type ChannelGameState struct {
	InGame           bool
	GameType         string
	SessionID        string
	State            game.State
	Display          string
	AvailableActions []string
}

// Config holds the engine timings.
type Config struct {
	// EndGameDelay is the deferral window between an end-game effect
	// being returned and the session actually stopping, so the caller
	// can render the final state first. Best effort: a slow renderer
	// can still lose the race.
	EndGameDelay time.Duration

	// DefaultInactivityTimeout applies when a game schedules a timeout
	// without its own duration.
	DefaultInactivityTimeout time.Duration

	// LockTimeout bounds how long an operation waits on its channel lock.
	LockTimeout time.Duration
}

// DefaultConfig returns the engine's default timings.
func DefaultConfig() Config {
	return Config{
		EndGameDelay:             100 * time.Millisecond,
		DefaultInactivityTimeout: 5 * time.Minute,
		LockTimeout:              10 * time.Second,
	}
}

// Manager owns session lifecycle, action dispatch and effect execution.
// All dependencies are injected; it holds no global state.
type Manager struct {
	store    repository.Store
	registry *game.Registry
	sched    Scheduler
	sender   Sender
	locks    *lock.ChannelLock
	cfg      Config
	onUpdate UpdateFunc
}

// New creates a Manager. sender may be nil when no transport is wired
// (message effects are then dropped with a log line).
func New(store repository.Store, registry *game.Registry, sched Scheduler, sender Sender, cfg Config) *Manager {
	if cfg.EndGameDelay <= 0 {
		cfg.EndGameDelay = DefaultConfig().EndGameDelay
	}
	if cfg.DefaultInactivityTimeout <= 0 {
		cfg.DefaultInactivityTimeout = DefaultConfig().DefaultInactivityTimeout
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultConfig().LockTimeout
	}
	return &Manager{
		store:    store,
		registry: registry,
		sched:    sched,
		sender:   sender,
		locks:    lock.NewChannelLock(),
		cfg:      cfg,
	}
}

// SetUpdateCallback registers the game-update notification callback.
// Must be called before the manager starts receiving traffic.
func (m *Manager) SetUpdateCallback(fn UpdateFunc) {
	m.onUpdate = fn
}

// SetSender wires the transport collaborator after construction. The bot
// needs the manager to build its handlers, so the sender arrives late.
// Must be called before the manager starts receiving traffic.
func (m *Manager) SetSender(sender Sender) {
	m.sender = sender
}

func failure(message string) *Result {
	return &Result{OK: false, Message: message}
}

// StartGame starts a game of gameType in the channel, hosted by hostID.
// At-most-one-active-game-per-channel is enforced here, not inside any
// game implementation.
func (m *Manager) StartGame(ctx context.Context, channelID, gameType, hostID string, params map[string]string) *Result {
	if err := m.locks.LockWithTimeout(ctx, channelID, m.cfg.LockTimeout); err != nil {
		log.Error().Err(err).Str("channel_id", channelID).Msg("Failed to acquire channel lock")
		return failure(genericErrMsg)
	}
	defer m.locks.Unlock(channelID)

	cm, err := m.store.ChannelMode(ctx, channelID)
	if err != nil {
		log.Error().Err(err).Str("channel_id", channelID).Msg("Failed to read channel mode")
		return failure(genericErrMsg)
	}
	if cm.InGame() {
		return failure("a game is already active in this channel")
	}

	impl := m.registry.Create(gameType)
	if impl == nil {
		return failure(fmt.Sprintf("unknown game type %q", gameType))
	}

	step, err := impl.Start(ctx, game.StartOptions{
		HostID:    hostID,
		ChannelID: channelID,
		Params:    params,
	})
	if err != nil {
		log.Error().Err(err).Str("game_type", gameType).Msg("Game start failed")
		return failure(genericErrMsg)
	}
	if !step.OK {
		return failure(step.Message)
	}

	data, err := json.Marshal(step.State)
	if err != nil {
		log.Error().Err(err).Str("game_type", gameType).Msg("Failed to encode initial state")
		return failure(genericErrMsg)
	}

	session := &model.GameSession{
		ID:           uuid.NewString(),
		ChannelID:    channelID,
		GameType:     gameType,
		GameData:     data,
		Participants: step.State.Participants(),
		IsActive:     true,
		CreatedAt:    time.Now(),
	}
	if err := m.store.CreateSession(ctx, session); err != nil {
		if errors.Is(err, repository.ErrChannelBusy) {
			return failure("a game is already active in this channel")
		}
		log.Error().Err(err).Str("channel_id", channelID).Msg("Failed to persist new session")
		return failure(genericErrMsg)
	}

	log.Info().
		Str("channel_id", channelID).
		Str("session_id", session.ID).
		Str("game_type", gameType).
		Str("host_id", hostID).
		Msg("Game started")

	m.executeEffects(ctx, channelID, session.ID, step.Effects)

	return &Result{
		OK:      true,
		Message: fmt.Sprintf("Started %s.", impl.Name()),
		Effects: step.Effects,
		State:   step.State,
	}
}

// HandleAction dispatches a player action to the channel's active game,
// persists the resulting state unconditionally, and executes the
// returned effects. End-game effects are deferred (see executeEffects);
// everything else runs before this call returns, in returned order.
func (m *Manager) HandleAction(ctx context.Context, channelID string, act game.Action) *Result {
	if err := m.locks.LockWithTimeout(ctx, channelID, m.cfg.LockTimeout); err != nil {
		log.Error().Err(err).Str("channel_id", channelID).Msg("Failed to acquire channel lock")
		return failure(genericErrMsg)
	}
	defer m.locks.Unlock(channelID)

	return m.handleActionLocked(ctx, channelID, act)
}

func (m *Manager) handleActionLocked(ctx context.Context, channelID string, act game.Action) *Result {
	session, err := m.store.ActiveSession(ctx, channelID)
	if errors.Is(err, repository.ErrNoActiveSession) {
		return failure("no active game in this channel")
	}
	if err != nil {
		log.Error().Err(err).Str("channel_id", channelID).Msg("Failed to load active session")
		return failure(genericErrMsg)
	}

	impl := m.registry.Create(session.GameType)
	if impl == nil {
		// The stored type is no longer registered. Fatal for this
		// session, but the session itself is left untouched.
		log.Error().
			Str("channel_id", channelID).
			Str("game_type", session.GameType).
			Msg("Stored game type is no longer registered")
		return failure(fmt.Sprintf("game type %q is no longer available", session.GameType))
	}

	state, err := impl.DecodeState(session.GameData)
	if err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("Failed to decode game state")
		return failure(genericErrMsg)
	}

	if act.At.IsZero() {
		act.At = time.Now()
	}

	step, err := impl.Process(ctx, state, act)
	if err != nil {
		log.Error().Err(err).
			Str("session_id", session.ID).
			Str("action", act.Type).
			Msg("Game action processing failed")
		return failure(genericErrMsg)
	}

	// Persist even rejected outcomes: an implementation may legitimately
	// record a rejected-but-state-affecting attempt.
	data, err := json.Marshal(step.State)
	if err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("Failed to encode game state")
		return failure(genericErrMsg)
	}
	if err := m.store.SaveSessionState(ctx, session.ID, data, step.State.Participants()); err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("Failed to persist game state")
		return failure(genericErrMsg)
	}

	m.executeEffects(ctx, channelID, session.ID, step.Effects)

	return &Result{
		OK:      step.OK,
		Message: step.Message,
		Effects: step.Effects,
		State:   step.State,
	}
}

// StopGame ends the channel's active game. Idempotent: stopping an
// already-stopped channel is a no-op failure, not a fault.
func (m *Manager) StopGame(ctx context.Context, channelID, reason string) *Result {
	if err := m.locks.LockWithTimeout(ctx, channelID, m.cfg.LockTimeout); err != nil {
		log.Error().Err(err).Str("channel_id", channelID).Msg("Failed to acquire channel lock")
		return failure(genericErrMsg)
	}
	defer m.locks.Unlock(channelID)

	m.sched.CancelChannel(channelID)

	stopped, err := m.store.EndSession(ctx, channelID, time.Now())
	if err != nil {
		log.Error().Err(err).Str("channel_id", channelID).Msg("Failed to end session")
		return failure(genericErrMsg)
	}
	if !stopped {
		return failure("no active game to stop")
	}

	log.Info().
		Str("channel_id", channelID).
		Str("reason", reason).
		Msg("Game stopped")

	m.notify(ctx, channelID, fmt.Sprintf("Game over (%s).", reason))

	return &Result{OK: true, Message: fmt.Sprintf("Game stopped (%s).", reason)}
}

// ChannelState is the read-only projection the transport layer uses to
// decide routing.
func (m *Manager) ChannelState(ctx context.Context, channelID string) (*ChannelGameState, error) {
	session, err := m.store.ActiveSession(ctx, channelID)
	if errors.Is(err, repository.ErrNoActiveSession) {
		return &ChannelGameState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active session: %w", err)
	}

	out := &ChannelGameState{
		InGame:    true,
		GameType:  session.GameType,
		SessionID: session.ID,
	}

	impl := m.registry.Create(session.GameType)
	if impl == nil {
		return out, nil
	}
	state, err := impl.DecodeState(session.GameData)
	if err != nil {
		return nil, fmt.Errorf("failed to decode game state: %w", err)
	}

	out.State = state
	out.Display = impl.DisplayState(state)
	out.AvailableActions = impl.AvailableActions(state)
	return out, nil
}

// StoreGameMessageID lets the transport record which delivered message
// currently represents the live game view, for later edits.
func (m *Manager) StoreGameMessageID(ctx context.Context, channelID, messageRef string) error {
	session, err := m.store.ActiveSession(ctx, channelID)
	if err != nil {
		return err
	}
	return m.store.SetLastMessageRef(ctx, session.ID, messageRef)
}

// CleanupStaleGames stops every channel still marked GAME. Run at
// startup: in-memory timers did not survive the restart, so any session
// depending on one is treated as abandoned. Returns how many were
// stopped.
func (m *Manager) CleanupStaleGames(ctx context.Context) int {
	channels, err := m.store.GameChannels(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list stale game channels")
		return 0
	}

	stopped := 0
	for _, channelID := range channels {
		if res := m.StopGame(ctx, channelID, model.StopReasonRestart); res.OK {
			stopped++
		}
	}

	if stopped > 0 {
		log.Info().Int("count", stopped).Msg("Stale games cleaned up")
	}
	return stopped
}

// executeEffects runs the effects of one transition. Every kind executes
// synchronously in returned order except end-game, which is deferred by
// cfg.EndGameDelay so the caller can render the pre-teardown state
// first. Each effect is independent: a failure is logged and the rest
// still run, and nothing rolls back the already-persisted state.
func (m *Manager) executeEffects(ctx context.Context, channelID, sessionID string, effects []game.Effect) {
	var deferred []game.EndGame

	for _, eff := range effects {
		switch e := eff.(type) {
		case game.SendMessage:
			m.notify(ctx, channelID, e.Content)

		case game.EndGame:
			deferred = append(deferred, e)

		case game.ScheduleTimeout:
			d := e.Duration
			if d <= 0 {
				d = m.cfg.DefaultInactivityTimeout
			}
			m.sched.Arm(TimerInactivity, channelID, d, func() {
				m.onInactivity(channelID)
			})

		case game.ScheduleMove:
			m.sched.Arm(TimerDelayedMove, channelID, e.Delay, func() {
				m.onDelayedMove(channelID)
			})

		case game.UpdateParticipants:
			if err := m.store.SetParticipants(ctx, sessionID, e.Participants); err != nil {
				log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to update participants")
			}

		default:
			log.Warn().Str("channel_id", channelID).Msgf("Unknown effect type %T", eff)
		}
	}

	for _, e := range deferred {
		reason := e.Reason
		if reason == "" {
			reason = model.StopReasonFinished
		}
		m.sched.After(m.cfg.EndGameDelay, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if res := m.StopGame(ctx, channelID, reason); !res.OK {
				log.Debug().
					Str("channel_id", channelID).
					Str("message", res.Message).
					Msg("Deferred end-game was a no-op")
			}
		})
	}
}

// notify hands content to the transport collaborator, best effort.
func (m *Manager) notify(ctx context.Context, channelID, content string) {
	if m.sender == nil {
		log.Debug().Str("channel_id", channelID).Str("content", content).Msg("No sender wired, dropping message")
		return
	}
	if err := m.sender.Send(ctx, channelID, content); err != nil {
		log.Error().Err(err).Str("channel_id", channelID).Msg("Failed to deliver message")
	}
}

// onInactivity fires when a channel's inactivity timer expires.
func (m *Manager) onInactivity(channelID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log.Info().Str("channel_id", channelID).Msg("Inactivity timeout fired")
	m.StopGame(ctx, channelID, model.StopReasonInactivity)
}

// onDelayedMove fires when a scheduled system move comes due: invoke the
// variant's SystemMove hook, persist its result, execute its effects and
// notify the transport through the registered callback.
func (m *Manager) onDelayedMove(channelID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := m.locks.LockWithTimeout(ctx, channelID, m.cfg.LockTimeout); err != nil {
		log.Error().Err(err).Str("channel_id", channelID).Msg("Delayed move could not acquire channel lock")
		return
	}
	defer m.locks.Unlock(channelID)

	session, err := m.store.ActiveSession(ctx, channelID)
	if errors.Is(err, repository.ErrNoActiveSession) {
		// The game ended between scheduling and firing.
		return
	}
	if err != nil {
		log.Error().Err(err).Str("channel_id", channelID).Msg("Failed to load session for delayed move")
		return
	}

	impl := m.registry.Create(session.GameType)
	if impl == nil {
		log.Error().Str("game_type", session.GameType).Msg("Delayed move for unregistered game type")
		return
	}
	mover, ok := impl.(game.SystemMover)
	if !ok {
		log.Error().Str("game_type", session.GameType).Msg("Delayed move scheduled for a game without a system move")
		return
	}

	state, err := impl.DecodeState(session.GameData)
	if err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("Failed to decode state for delayed move")
		return
	}

	step, err := mover.SystemMove(ctx, state)
	if err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("System move failed")
		return
	}

	data, err := json.Marshal(step.State)
	if err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("Failed to encode state after delayed move")
		return
	}
	if err := m.store.SaveSessionState(ctx, session.ID, data, step.State.Participants()); err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("Failed to persist state after delayed move")
		return
	}

	m.executeEffects(ctx, channelID, session.ID, step.Effects)

	if m.onUpdate != nil {
		m.onUpdate(channelID, &Result{
			OK:      step.OK,
			Message: step.Message,
			Effects: step.Effects,
			State:   step.State,
		})
	}
}
