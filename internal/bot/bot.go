package bot

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"chat-game-bot/internal/config"
	"chat-game-bot/internal/game"
	"chat-game-bot/internal/handler"
	"chat-game-bot/internal/manager"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot         *tele.Bot
	cfg         *config.Config
	mgr         *manager.Manager
	registry    *game.Registry
	gameHandler *handler.GameHandler
}

// Dependencies holds everything the bot handlers need.
type Dependencies struct {
	Config   *config.Config
	Manager  *manager.Manager
	Registry *game.Registry
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:      teleBot,
		cfg:      deps.Config,
		mgr:      deps.Manager,
		registry: deps.Registry,
	}

	b.gameHandler = handler.NewGameHandler(deps.Manager, deps.Registry)
	deps.Manager.SetUpdateCallback(b.gameHandler.OnGameUpdated(teleBot))

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

// Sender returns the transport adapter the manager delivers effect
// messages through.
func (b *Bot) Sender() manager.Sender {
	return &telegramSender{bot: b.bot}
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(WhitelistMiddleware(b.cfg))
	b.bot.Use(LoggingMiddleware())
}

// registerHandlers registers all command handlers.
func (b *Bot) registerHandlers() {
	b.bot.Handle("/games", b.gameHandler.HandleGames)
	b.bot.Handle("/play", b.gameHandler.HandlePlay)
	b.bot.Handle("/move", b.gameHandler.HandleMove)
	b.bot.Handle("/quitgame", b.gameHandler.HandleStop)
	b.bot.Handle("/gamestate", b.gameHandler.HandleGameState)

	// Plain text becomes game actions while the channel is in GAME mode.
	b.bot.Handle(tele.OnText, b.gameHandler.HandleText)
}

// Start starts the bot polling.
func (b *Bot) Start() {
	log.Info().Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}

// telegramSender adapts telebot to the manager's Sender interface.
type telegramSender struct {
	bot *tele.Bot
}

// Send delivers content to the channel. The engine's channel identifier
// is the stringified Telegram chat ID.
func (s *telegramSender) Send(ctx context.Context, channelID, content string) error {
	chatID, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid channel id %q: %w", channelID, err)
	}
	_, err = s.bot.Send(tele.ChatID(chatID), content)
	return err
}
