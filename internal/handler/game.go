// Package handler translates chat commands and messages into game
// manager operations.
package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"chat-game-bot/internal/game"
	"chat-game-bot/internal/manager"
	"chat-game-bot/internal/model"
)

// GameHandler routes game commands and in-game messages to the manager.
type GameHandler struct {
	mgr      *manager.Manager
	registry *game.Registry

	// viewMessages caches the message currently showing each channel's
	// game view so it can be edited in place on updates.
	viewMu       sync.Mutex
	viewMessages map[string]*tele.StoredMessage
}

// NewGameHandler creates a new GameHandler.
func NewGameHandler(mgr *manager.Manager, registry *game.Registry) *GameHandler {
	return &GameHandler{
		mgr:          mgr,
		registry:     registry,
		viewMessages: make(map[string]*tele.StoredMessage),
	}
}

// ChannelID converts a Telegram chat to the engine's channel identifier.
func ChannelID(chat *tele.Chat) string {
	return strconv.FormatInt(chat.ID, 10)
}

// HandleGames lists the registered games.
func (h *GameHandler) HandleGames(c tele.Context) error {
	types := h.registry.Types()
	if len(types) == 0 {
		return c.Reply("No games are available.")
	}

	var b strings.Builder
	b.WriteString("Available games:\n")
	for _, t := range types {
		impl := h.registry.Create(t)
		if impl == nil {
			continue
		}
		fmt.Fprintf(&b, "/play %s - %s: %s\n", t, impl.Name(), impl.Description())
	}
	return c.Reply(b.String())
}

// HandlePlay starts a game: /play <type> [key=value ...]
func (h *GameHandler) HandlePlay(c tele.Context) error {
	args := c.Args()
	if len(args) == 0 {
		return c.Reply("Usage: /play <game>. See /games for the list.")
	}

	gameType := args[0]
	params := make(map[string]string)
	for _, arg := range args[1:] {
		if key, value, ok := strings.Cut(arg, "="); ok {
			params[key] = value
		}
	}

	ctx := context.Background()
	channelID := ChannelID(c.Chat())
	hostID := strconv.FormatInt(c.Sender().ID, 10)

	res := h.mgr.StartGame(ctx, channelID, gameType, hostID, params)
	if !res.OK {
		return c.Reply(res.Message)
	}

	return h.sendGameView(ctx, c, channelID)
}

// HandleStop stops the channel's game: /quitgame
func (h *GameHandler) HandleStop(c tele.Context) error {
	res := h.mgr.StopGame(context.Background(), ChannelID(c.Chat()), model.StopReasonManual)
	return c.Reply(res.Message)
}

// HandleGameState shows the current game state: /gamestate
func (h *GameHandler) HandleGameState(c tele.Context) error {
	st, err := h.mgr.ChannelState(context.Background(), ChannelID(c.Chat()))
	if err != nil {
		log.Error().Err(err).Msg("Failed to read channel game state")
		return c.Reply("An error occurred, please try again later.")
	}
	if !st.InGame {
		return c.Reply("No game is running in this channel.")
	}

	return c.Reply(fmt.Sprintf("%s\nActions: %s", st.Display, strings.Join(st.AvailableActions, ", ")))
}

// HandleMove submits a game action explicitly: /move <action> [payload]
func (h *GameHandler) HandleMove(c tele.Context) error {
	ctx := context.Background()
	channelID := ChannelID(c.Chat())

	st, err := h.mgr.ChannelState(ctx, channelID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read channel game state")
		return c.Reply("An error occurred, please try again later.")
	}
	if !st.InGame {
		return c.Reply("No game is running in this channel.")
	}

	text := strings.TrimSpace(strings.Join(c.Args(), " "))
	if text == "" {
		return c.Reply(fmt.Sprintf("Usage: /move <action>. Available: %s", strings.Join(st.AvailableActions, ", ")))
	}

	act := parseAction(text, st.AvailableActions)
	act.UserID = strconv.FormatInt(c.Sender().ID, 10)
	act.At = time.Now()

	res := h.mgr.HandleAction(ctx, channelID, act)
	if !res.OK {
		return c.Reply(res.Message)
	}
	return h.updateGameView(ctx, c, channelID)
}

// HandleText routes plain messages: inside a game they become actions,
// outside they fall through to the regular chat flows.
func (h *GameHandler) HandleText(c tele.Context) error {
	ctx := context.Background()
	channelID := ChannelID(c.Chat())

	st, err := h.mgr.ChannelState(ctx, channelID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read channel game state")
		return nil
	}
	if !st.InGame {
		// Not ours; the chat/AI flows own NORMAL-mode messages.
		return nil
	}

	act := parseAction(c.Text(), st.AvailableActions)
	act.UserID = strconv.FormatInt(c.Sender().ID, 10)
	act.At = time.Now()

	res := h.mgr.HandleAction(ctx, channelID, act)
	if !res.OK {
		return c.Reply(res.Message)
	}

	return h.updateGameView(ctx, c, channelID)
}

// parseAction interprets message text as a game action. A first token
// matching an available action names it explicitly ("letter e"); any
// other text goes to the primary (first listed) action as payload, so
// players can just type "42" or "rock".
func parseAction(text string, available []string) game.Action {
	text = strings.TrimSpace(text)
	token, rest, _ := strings.Cut(text, " ")
	for _, a := range available {
		if token == a {
			return game.Action{Type: a, Payload: strings.TrimSpace(rest)}
		}
	}
	if len(available) > 0 {
		return game.Action{Type: available[0], Payload: text}
	}
	return game.Action{Type: token, Payload: strings.TrimSpace(rest)}
}

// sendGameView delivers a fresh game-view message and records its ID so
// later updates can edit it in place.
func (h *GameHandler) sendGameView(ctx context.Context, c tele.Context, channelID string) error {
	st, err := h.mgr.ChannelState(ctx, channelID)
	if err != nil || !st.InGame {
		return err
	}

	msg, err := c.Bot().Send(c.Chat(), st.Display)
	if err != nil {
		return err
	}

	stored := &tele.StoredMessage{
		MessageID: strconv.Itoa(msg.ID),
		ChatID:    c.Chat().ID,
	}
	h.viewMu.Lock()
	h.viewMessages[channelID] = stored
	h.viewMu.Unlock()

	ref := fmt.Sprintf("%d:%d", c.Chat().ID, msg.ID)
	if err := h.mgr.StoreGameMessageID(ctx, channelID, ref); err != nil {
		log.Error().Err(err).Str("channel_id", channelID).Msg("Failed to store game message id")
	}
	return nil
}

// updateGameView edits the cached game-view message with the current
// display state, falling back to a fresh message when editing fails.
func (h *GameHandler) updateGameView(ctx context.Context, c tele.Context, channelID string) error {
	st, err := h.mgr.ChannelState(ctx, channelID)
	if err != nil || !st.InGame {
		return err
	}

	h.viewMu.Lock()
	stored := h.viewMessages[channelID]
	h.viewMu.Unlock()

	if stored != nil {
		if _, err := c.Bot().Edit(stored, st.Display); err == nil {
			return nil
		}
	}
	return h.sendGameView(ctx, c, channelID)
}

// OnGameUpdated is the manager's game-update callback: after a scheduled
// system move, re-render the live view without waiting for a player
// message.
func (h *GameHandler) OnGameUpdated(b *tele.Bot) manager.UpdateFunc {
	return func(channelID string, res *manager.Result) {
		st, err := h.mgr.ChannelState(context.Background(), channelID)
		if err != nil || !st.InGame {
			return
		}

		h.viewMu.Lock()
		stored := h.viewMessages[channelID]
		h.viewMu.Unlock()
		if stored == nil {
			return
		}

		if _, err := b.Edit(stored, st.Display); err != nil {
			log.Debug().Err(err).Str("channel_id", channelID).Msg("Failed to edit game view")
		}
	}
}
