// Package worker implements the reminder delivery loop: poll for due
// leases, attempt delivery over the external channel, and report each
// outcome back to the scheduler.
package worker

import (
	"context"
	"fmt"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/metrics"
	"remindbot/internal/types"
)

// ReminderScheduler is the scheduler surface the worker drives. Implemented
// by scheduler.Service.
type ReminderScheduler interface {
	DequeueDue(ctx context.Context, now, horizon time.Time) ([]types.ReminderLease, error)
	MarkDelivered(ctx context.Context, reminders []types.Reminder, triggeredAt time.Time) error
	Requeue(ctx context.Context, reminder types.Reminder) error
	ReleaseLease(ctx context.Context, reminderID, token string) (bool, error)
}

// Worker runs the poll/deliver/resolve cycle. Multiple worker processes may
// run concurrently against the same stores; the scheduler's leases keep
// them from double-delivering.
type Worker struct {
	scheduler ReminderScheduler
	channel   types.DeliveryChannel
	recorder  metrics.Recorder
	logger    types.Logger
	cfg       config.WorkerConfig

	// now is injectable for tests.
	now func() time.Time
}

// New creates a worker. recorder may be metrics.Noop.
func New(scheduler ReminderScheduler, channel types.DeliveryChannel, recorder metrics.Recorder, logger types.Logger, cfg config.WorkerConfig) *Worker {
	return &Worker{
		scheduler: scheduler,
		channel:   channel,
		recorder:  recorder,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Run executes poll cycles until ctx is cancelled. A failing cycle is
// logged and retried after a backoff; it never terminates the loop.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("reminder worker started",
		"idle_interval", w.cfg.IdleInterval,
		"lookahead", w.cfg.Lookahead,
		"batch_size", w.cfg.BatchSize)

	for {
		processed, err := w.safeCycle(ctx)

		delay := w.cfg.IdleInterval
		switch {
		case err != nil:
			if ctx.Err() != nil {
				w.logger.Info("reminder worker stopping")
				return ctx.Err()
			}
			w.logger.Error("poll cycle failed", "error", err)
			delay = w.cfg.ErrorBackoff
		case processed > 0:
			// Keep draining the backlog with short pauses.
			delay = w.cfg.DrainInterval
		}

		select {
		case <-ctx.Done():
			w.logger.Info("reminder worker stopping")
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// safeCycle runs one cycle with panic containment at the cycle boundary.
func (w *Worker) safeCycle(ctx context.Context) (processed int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("poll cycle panicked: %v", r)
		}
	}()
	return w.runCycle(ctx)
}

// runCycle performs one poll/deliver/resolve pass. Returns how many leases
// were obtained, which drives the drain-vs-idle pacing decision.
func (w *Worker) runCycle(ctx context.Context) (int, error) {
	now := w.now().UTC()
	horizon := now.Add(w.cfg.Lookahead)

	leases, err := w.scheduler.DequeueDue(ctx, now, horizon)
	if err != nil {
		return 0, err
	}
	if len(leases) == 0 {
		return 0, nil
	}
	w.recorder.RecordCycle(ctx, len(leases))

	// Resolution must complete even when ctx is cancelled mid-cycle:
	// held leases are always released, successful sends are always
	// persisted so a restart does not re-deliver them.
	resolveCtx := context.WithoutCancel(ctx)
	defer func() {
		for _, lease := range leases {
			if _, relErr := w.scheduler.ReleaseLease(resolveCtx, lease.Reminder.ID, lease.LockToken); relErr != nil {
				w.logger.Warn("failed to release lease",
					"reminder_id", lease.Reminder.ID, "error", relErr)
			}
		}
	}()

	var delivered []types.Reminder
	for _, lease := range leases {
		if ctx.Err() != nil {
			break
		}
		rem := lease.Reminder

		if rem.Owner == nil || rem.Owner.TelegramID == 0 {
			// No destination. Leave the reminder's trigger time alone so
			// it is retried on a later poll; the lease release above
			// makes it eligible again.
			w.logger.Warn("reminder owner has no delivery address",
				"reminder_id", rem.ID, "owner_id", rem.UserID)
			w.recorder.RecordDelivery(ctx, metrics.ResultSkipped)
			continue
		}

		start := w.now()
		sendErr := w.channel.Send(ctx, rem.Owner.TelegramID, rem.Message)
		w.recorder.RecordLatency(ctx, w.now().Sub(start))

		if sendErr != nil {
			w.logger.Error("reminder delivery failed",
				"reminder_id", rem.ID,
				"chat_id", rem.Owner.TelegramID,
				"error", sendErr)
			w.recorder.RecordDelivery(ctx, metrics.ResultFailed)
			if reqErr := w.scheduler.Requeue(resolveCtx, rem); reqErr != nil {
				w.logger.Error("failed to requeue reminder after delivery failure",
					"reminder_id", rem.ID, "error", reqErr)
			}
			continue
		}

		w.recorder.RecordDelivery(ctx, metrics.ResultSuccess)
		delivered = append(delivered, rem)
	}

	if len(delivered) > 0 {
		if err := w.scheduler.MarkDelivered(resolveCtx, delivered, w.now().UTC()); err != nil {
			return len(leases), err
		}
		w.logger.Info("reminders delivered", "count", len(delivered))
	}

	return len(leases), nil
}
