// Package main is the entrypoint for the conversational Telegram bot.
//
// The bot long-polls the Telegram Bot API for updates and dispatches
// commands (/remind, /list, /cancel, /templates) to the scheduler. Delivery
// of due reminders is handled by the separate reminder-worker process; this
// binary only schedules and manages them.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"remindbot/internal/cache"
	"remindbot/internal/config"
	"remindbot/internal/db"
	"remindbot/internal/ops"
	"remindbot/internal/scheduler"
	"remindbot/internal/telegram"
	"remindbot/internal/types"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "bot: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(slogger)
	logger := types.Logger(&slogAdapter{logger: slogger.With("service", cfg.Service, "component", "bot")})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	var store types.FastStore
	if cfg.Cache.Backend == "none" {
		store = cache.NewDisabled()
	} else {
		store = cache.NewMemory(cfg.Cache.KeyPrefix)
	}

	svc := scheduler.NewService(scheduler.Config{
		Reminders: db.NewReminderRepository(pool),
		Templates: db.NewTemplateRepository(pool),
		Index:     scheduler.NewDueIndex(store),
		Leases:    scheduler.NewLeaseManager(store, cfg.Worker.LockTTL),
		Store:     store,
		Logger:    logger,
		BatchSize: cfg.Worker.BatchSize,
		CacheTTL:  cfg.Cache.DefaultTTL,
	})

	var bot *tgbotapi.BotAPI
	if cfg.Telegram.APIEndpoint != "" {
		bot, err = tgbotapi.NewBotAPIWithAPIEndpoint(cfg.Telegram.Token.Unmask(), cfg.Telegram.APIEndpoint)
	} else {
		bot, err = tgbotapi.NewBotAPI(cfg.Telegram.Token.Unmask())
	}
	if err != nil {
		return fmt.Errorf("connecting telegram bot api: %w", err)
	}
	logger.Info("authorized with telegram", "bot_username", bot.Self.UserName)

	handler := telegram.NewHandler(db.NewUserRepository(pool), svc, store, bot, logger)
	opsServer := ops.NewServer(cfg.Ops.Port, pool, store, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return opsServer.Run(gctx) })
	g.Go(func() error {
		updateCfg := tgbotapi.NewUpdate(0)
		updateCfg.Timeout = cfg.Telegram.UpdateTimeout
		updates := bot.GetUpdatesChan(updateCfg)
		defer bot.StopReceivingUpdates()

		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case update, ok := <-updates:
				if !ok {
					return nil
				}
				handler.HandleUpdate(gctx, update)
			}
		}
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("bot shut down")
	return nil
}

func parseLogLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
