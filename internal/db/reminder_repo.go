package db

import (
	"context"
	"time"

	"remindbot/internal/types"
)

// ReminderRepository provides data access for the reminders table. It is the
// system of record for the scheduling subsystem: the due-index and the lease
// store are performance structures that are always reconciled against the
// rows this repository returns.
//
// All methods return value snapshots. Callers never receive aliases to rows
// the repository keeps, so a later unrelated write cannot silently mutate an
// already-committed reminder.
type ReminderRepository struct {
	db DBTX
}

// NewReminderRepository creates a new ReminderRepository backed by the given
// database connection (pool or transaction).
func NewReminderRepository(db DBTX) *ReminderRepository {
	return &ReminderRepository{db: db}
}

// reminderWithOwnerColumns is the SELECT list shared by the queries that
// join the owning user for delivery.
const reminderWithOwnerColumns = `
	r.id, r.user_id, r.template_id, r.message, r.created_at, r.scheduled_at,
	r.next_trigger_at, r.repeat_interval_minutes, r.is_active, r.last_triggered_at,
	u.id, u.telegram_id, u.username, u.timezone, u.created_at`

// Insert persists a new reminder and populates its assigned ID and creation
// timestamp. It has no side effects on the due-index or lease store; the
// scheduler performs those only after the row is committed.
func (r *ReminderRepository) Insert(ctx context.Context, reminder *types.Reminder) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO reminders
		 (user_id, template_id, message, scheduled_at, next_trigger_at,
		  repeat_interval_minutes, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		reminder.UserID,
		reminder.TemplateID,
		reminder.Message,
		reminder.ScheduledAt,
		reminder.NextTriggerAt,
		reminder.RepeatIntervalMinutes,
		reminder.IsActive,
	).Scan(&reminder.ID, &reminder.CreatedAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert reminder", err)
	}
	return nil
}

// GetDueBy returns all active reminders with next_trigger_at <= horizon,
// including the owning user. This is the degraded-mode recovery path used
// when the due-index cannot answer; it is a full range scan and is ordered
// soonest-due first so callers process in due order.
func (r *ReminderRepository) GetDueBy(ctx context.Context, horizon time.Time) ([]types.Reminder, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+reminderWithOwnerColumns+`
		 FROM reminders r
		 JOIN users u ON u.id = r.user_id
		 WHERE r.is_active AND r.next_trigger_at <= $1
		 ORDER BY r.next_trigger_at ASC`,
		horizon,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query due reminders", err)
	}
	defer rows.Close()

	return scanRemindersWithOwner(rows)
}

// GetByIDs batch-fetches reminders by id, including the owning user. Missing
// ids are simply absent from the result; the caller reconciles against that.
func (r *ReminderRepository) GetByIDs(ctx context.Context, ids []string) ([]types.Reminder, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+reminderWithOwnerColumns+`
		 FROM reminders r
		 JOIN users u ON u.id = r.user_id
		 WHERE r.id = ANY($1)
		 ORDER BY r.next_trigger_at ASC`,
		ids,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query reminders by ids", err)
	}
	defer rows.Close()

	return scanRemindersWithOwner(rows)
}

// UpdateAfterDelivery records a successful delivery in a single atomic row
// update. A non-nil nextTriggerAt advances the schedule (repeat case); nil
// retires the reminder (one-shot case).
func (r *ReminderRepository) UpdateAfterDelivery(ctx context.Context, reminderID string, triggeredAt time.Time, nextTriggerAt *time.Time) error {
	var err error
	if nextTriggerAt != nil {
		_, err = r.db.Exec(ctx,
			`UPDATE reminders
			 SET last_triggered_at = $2, next_trigger_at = $3
			 WHERE id = $1`,
			reminderID, triggeredAt, *nextTriggerAt,
		)
	} else {
		_, err = r.db.Exec(ctx,
			`UPDATE reminders
			 SET last_triggered_at = $2, is_active = FALSE
			 WHERE id = $1`,
			reminderID, triggeredAt,
		)
	}
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update reminder after delivery", err)
	}
	return nil
}

// Deactivate retires a reminder iff it is owned by ownerID and currently
// active. Returns whether a row was affected: disabling an already-inactive
// reminder is a no-op, not an error.
func (r *ReminderRepository) Deactivate(ctx context.Context, reminderID, ownerID string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE reminders
		 SET is_active = FALSE
		 WHERE id = $1 AND user_id = $2 AND is_active`,
		reminderID, ownerID,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to deactivate reminder", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListActive returns every active reminder soonest-due first. Used by the
// index rebuild to re-populate the due-index from the system of record.
func (r *ReminderRepository) ListActive(ctx context.Context) ([]types.Reminder, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+reminderWithOwnerColumns+`
		 FROM reminders r
		 JOIN users u ON u.id = r.user_id
		 WHERE r.is_active
		 ORDER BY r.next_trigger_at ASC`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query active reminders", err)
	}
	defer rows.Close()

	return scanRemindersWithOwner(rows)
}

// ListActiveForOwner returns the owner's active reminders soonest-due first.
// This serves the conversational read path, not the scheduler.
func (r *ReminderRepository) ListActiveForOwner(ctx context.Context, ownerID string) ([]types.Reminder, error) {
	rows, err := r.db.Query(ctx,
		`SELECT r.id, r.user_id, r.template_id, r.message, r.created_at,
		        r.scheduled_at, r.next_trigger_at, r.repeat_interval_minutes,
		        r.is_active, r.last_triggered_at
		 FROM reminders r
		 WHERE r.user_id = $1 AND r.is_active
		 ORDER BY r.next_trigger_at ASC`,
		ownerID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query reminders for owner", err)
	}
	defer rows.Close()

	var reminders []types.Reminder
	for rows.Next() {
		var rem types.Reminder
		if err := rows.Scan(
			&rem.ID,
			&rem.UserID,
			&rem.TemplateID,
			&rem.Message,
			&rem.CreatedAt,
			&rem.ScheduledAt,
			&rem.NextTriggerAt,
			&rem.RepeatIntervalMinutes,
			&rem.IsActive,
			&rem.LastTriggeredAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan reminder", err)
		}
		reminders = append(reminders, rem)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating reminders", err)
	}

	return reminders, nil
}

// scanRemindersWithOwner scans rows produced by the reminder+owner join.
func scanRemindersWithOwner(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]types.Reminder, error) {
	var reminders []types.Reminder
	for rows.Next() {
		var (
			rem   types.Reminder
			owner types.User
		)
		if err := rows.Scan(
			&rem.ID,
			&rem.UserID,
			&rem.TemplateID,
			&rem.Message,
			&rem.CreatedAt,
			&rem.ScheduledAt,
			&rem.NextTriggerAt,
			&rem.RepeatIntervalMinutes,
			&rem.IsActive,
			&rem.LastTriggeredAt,
			&owner.ID,
			&owner.TelegramID,
			&owner.Username,
			&owner.TimeZone,
			&owner.CreatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan reminder with owner", err)
		}
		rem.Owner = &owner
		reminders = append(reminders, rem)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating reminders", err)
	}

	return reminders, nil
}
