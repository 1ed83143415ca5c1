// Package main is the entry point for the chat game bot.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"chat-game-bot/internal/bot"
	"chat-game-bot/internal/config"
	"chat-game-bot/internal/game"
	"chat-game-bot/internal/game/duel"
	"chat-game-bot/internal/game/guess"
	"chat-game-bot/internal/game/word"
	"chat-game-bot/internal/manager"
	"chat-game-bot/internal/pkg/db"
	"chat-game-bot/internal/repository"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the session store
	var store repository.Store
	var closeStore func()

	switch cfg.Store.Driver {
	case "postgres":
		dbPool, err := db.NewPool(ctx, &cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		if err := repository.Migrate(ctx, dbPool.Pool); err != nil {
			log.Fatal().Err(err).Msg("Failed to run database migrations")
		}
		log.Info().Msg("Database migrations completed")
		store = repository.NewPostgresStore(dbPool.Pool)
		closeStore = dbPool.Close

	case "redis":
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to Redis")
		}
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
		store = repository.NewRedisStore(rdb)
		closeStore = func() { _ = rdb.Close() }

	default:
		log.Fatal().Str("driver", cfg.Store.Driver).Msg("Unknown store driver")
	}
	defer closeStore()

	// Register the game implementations
	registry := game.NewRegistry()
	register := func(gameType string, f game.Factory) {
		if err := registry.Register(gameType, f); err != nil {
			log.Fatal().Err(err).Str("game_type", gameType).Msg("Failed to register game")
		}
	}
	register(guess.GameType, func() game.Game { return guess.New() })
	register(duel.GameType, func() game.Game { return duel.New() })
	register(word.GameType, func() game.Game { return word.New() })

	log.Info().
		Int("game_count", registry.Count()).
		Strs("games", registry.Types()).
		Msg("Games registered")

	// Build the engine
	sched := manager.NewScheduler()
	mgr := manager.New(store, registry, sched, nil, manager.Config{
		EndGameDelay:             cfg.Engine.EndGameDelay,
		DefaultInactivityTimeout: cfg.Engine.DefaultInactivityTimeout,
		LockTimeout:              cfg.Engine.LockTimeout,
	})

	telegramBot, err := bot.New(&bot.Dependencies{
		Config:   cfg,
		Manager:  mgr,
		Registry: registry,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}
	mgr.SetSender(telegramBot.Sender())

	// Channels left in GAME mode by a previous process lost their timers
	// with it; stop them before accepting traffic.
	mgr.CleanupStaleGames(ctx)

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Msg("Bot is starting...")
		telegramBot.Start()
	}()

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	telegramBot.Stop()
	sched.Stop()
	log.Info().Msg("Bot stopped gracefully")
}
