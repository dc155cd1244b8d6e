// Package main is the entrypoint for the reminder delivery worker.
//
// The worker polls the scheduler for due reminder leases, delivers them over
// the Telegram Bot API, and reports outcomes back (reschedule-or-retire on
// success, requeue on failure). Multiple worker processes may run against
// the same stores; per-reminder leases keep them from double-delivering.
//
// Startup sequence:
//  1. Initialize structured logger.
//  2. Load and validate configuration.
//  3. Connect the PostgreSQL pool (fail fast on unreachable database).
//  4. Select the fast-store backend (in-memory, or disabled for pure
//     degraded-mode operation).
//  5. Build repositories, scheduler, delivery channel, and metrics recorder.
//  6. Rebuild the due-index from the database, then keep it fresh on a
//     cron schedule.
//  7. Run the poll loop and the ops HTTP server until SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"remindbot/internal/cache"
	"remindbot/internal/config"
	"remindbot/internal/db"
	"remindbot/internal/metrics"
	"remindbot/internal/ops"
	"remindbot/internal/scheduler"
	"remindbot/internal/telegram"
	"remindbot/internal/types"
	"remindbot/internal/worker"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
// slog.Logger satisfies Info, Error, and Warn directly but With returns
// *slog.Logger, not types.Logger, so an adapter is necessary.
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
		fmt.Fprintf(os.Stderr, "reminder-worker: %v\n", err)
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
	logger := types.Logger(&slogAdapter{logger: slogger.With("service", cfg.Service, "component", "reminder-worker")})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := newFastStore(cfg.Cache, logger)

	reminderRepo := db.NewReminderRepository(pool)
	templateRepo := db.NewTemplateRepository(pool)

	svc := scheduler.NewService(scheduler.Config{
		Reminders: reminderRepo,
		Templates: templateRepo,
		Index:     scheduler.NewDueIndex(store),
		Leases:    scheduler.NewLeaseManager(store, cfg.Worker.LockTTL),
		Store:     store,
		Logger:    logger,
		BatchSize: cfg.Worker.BatchSize,
		CacheTTL:  cfg.Cache.DefaultTTL,
	})

	if indexed, err := svc.RebuildIndex(ctx); err != nil {
		logger.Error("initial due-index rebuild failed", "error", err)
	} else {
		logger.Info("initial due-index rebuild complete", "indexed", indexed)
	}

	bot, err := newBotAPI(cfg.Telegram)
	if err != nil {
		return fmt.Errorf("connecting telegram bot api: %w", err)
	}
	channel := telegram.NewChannel(bot, logger)

	recorder, err := newRecorder(ctx, cfg.Metrics, logger)
	if err != nil {
		return err
	}

	w := worker.New(svc, channel, recorder, logger, cfg.Worker)
	opsServer := ops.NewServer(cfg.Ops.Port, pool, store, logger)

	// Periodic rebuild repairs index entries lost to eviction or races.
	resync := cron.New()
	if _, err := resync.AddFunc(cfg.Worker.ResyncSpec, func() {
		if _, err := svc.RebuildIndex(ctx); err != nil {
			logger.Error("scheduled due-index rebuild failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid resync cron spec %q: %w", cfg.Worker.ResyncSpec, err)
	}
	resync.Start()
	defer resync.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(gctx) })
	g.Go(func() error { return opsServer.Run(gctx) })

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("reminder-worker shut down")
	return nil
}

// newFastStore selects the fast-store backend. "none" runs the scheduler in
// degraded mode against the database alone.
func newFastStore(cfg config.CacheConfig, logger types.Logger) types.FastStore {
	switch cfg.Backend {
	case "none":
		logger.Warn("no fast store configured, scheduler will run in degraded mode")
		return cache.NewDisabled()
	default:
		return cache.NewMemory(cfg.KeyPrefix)
	}
}

func newBotAPI(cfg config.TelegramConfig) (*tgbotapi.BotAPI, error) {
	if cfg.APIEndpoint != "" {
		return tgbotapi.NewBotAPIWithAPIEndpoint(cfg.Token.Unmask(), cfg.APIEndpoint)
	}
	return tgbotapi.NewBotAPI(cfg.Token.Unmask())
}

// newRecorder wires CloudWatch metrics when enabled, a no-op otherwise.
func newRecorder(ctx context.Context, cfg config.MetricsConfig, logger types.Logger) (metrics.Recorder, error) {
	if !cfg.Enabled {
		return metrics.Noop{}, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config for metrics: %w", err)
	}
	return metrics.NewCloudWatchRecorder(cloudwatch.NewFromConfig(awsCfg), cfg.Namespace, logger), nil
}

func parseLogLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
