package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"remindbot/internal/cache"
	"remindbot/internal/types"
)

// ReminderStore is the durable-store surface the scheduler needs. Implemented
// by db.ReminderRepository.
type ReminderStore interface {
	Insert(ctx context.Context, reminder *types.Reminder) error
	GetDueBy(ctx context.Context, horizon time.Time) ([]types.Reminder, error)
	GetByIDs(ctx context.Context, ids []string) ([]types.Reminder, error)
	UpdateAfterDelivery(ctx context.Context, reminderID string, triggeredAt time.Time, nextTriggerAt *time.Time) error
	Deactivate(ctx context.Context, reminderID, ownerID string) (bool, error)
	ListActive(ctx context.Context) ([]types.Reminder, error)
	ListActiveForOwner(ctx context.Context, ownerID string) ([]types.Reminder, error)
}

// TemplateStore is the template lookup surface the scheduler needs.
// Implemented by db.TemplateRepository.
type TemplateStore interface {
	List(ctx context.Context) ([]types.ReminderTemplate, error)
}

// Config carries the dependencies and tuning for a Service.
type Config struct {
	Reminders ReminderStore
	Templates TemplateStore
	Index     *DueIndex
	Leases    *LeaseManager
	Store     types.FastStore
	Logger    types.Logger

	// BatchSize caps how many candidates a single DequeueDue considers.
	BatchSize int
	// CacheTTL bounds staleness of the derived read caches (user reminder
	// lists, template catalogue).
	CacheTTL time.Duration
}

// Service is the scheduling coordination core. It bridges the durable store
// (source of truth) with the due-index and lease manager (performance
// structures), and is the only component that mutates reminder scheduling
// state.
//
// Index and lease operations are only performed after the corresponding
// durable-store write succeeds, so a store failure never leaves the index
// claiming something the store does not.
type Service struct {
	reminders ReminderStore
	templates TemplateStore
	index     *DueIndex
	leases    *LeaseManager
	store     types.FastStore
	logger    types.Logger
	batchSize int
	cacheTTL  time.Duration
}

// NewService creates a scheduler service from the given config.
func NewService(cfg Config) *Service {
	return &Service{
		reminders: cfg.Reminders,
		templates: cfg.Templates,
		index:     cfg.Index,
		leases:    cfg.Leases,
		store:     cfg.Store,
		logger:    cfg.Logger,
		batchSize: cfg.BatchSize,
		cacheTTL:  cfg.CacheTTL,
	}
}

// ScheduleInput is a request to create a reminder.
type ScheduleInput struct {
	OwnerID               string
	Message               string
	ScheduledAt           time.Time
	RepeatIntervalMinutes *int
	TemplateID            *string
}

// ScheduleReminder validates and persists a new reminder, then makes it
// visible to the workers by inserting it into the due-index at its trigger
// time. The durable write is authoritative: an index failure after a
// committed row is logged and left for the next index rebuild to repair.
func (s *Service) ScheduleReminder(ctx context.Context, input ScheduleInput) (*types.Reminder, error) {
	message := strings.TrimSpace(input.Message)
	if message == "" {
		return nil, types.NewAppError(types.ErrCodeValidationEmptyMessage, "reminder message must not be empty", nil)
	}
	if input.OwnerID == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "reminder owner is required", nil)
	}
	if input.ScheduledAt.IsZero() {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "reminder scheduled time is required", nil)
	}
	if input.RepeatIntervalMinutes != nil && *input.RepeatIntervalMinutes <= 0 {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidRepeat, "repeat interval must be a positive number of minutes", nil)
	}

	scheduledAt := input.ScheduledAt.UTC()
	reminder := &types.Reminder{
		UserID:                input.OwnerID,
		TemplateID:            input.TemplateID,
		Message:               message,
		ScheduledAt:           scheduledAt,
		NextTriggerAt:         scheduledAt,
		RepeatIntervalMinutes: input.RepeatIntervalMinutes,
		IsActive:              true,
	}
	if err := s.reminders.Insert(ctx, reminder); err != nil {
		return nil, err
	}

	if err := s.index.Upsert(ctx, reminder.ID, reminder.NextTriggerAt); err != nil {
		s.logger.Error("failed to index new reminder, rebuild will repair",
			"reminder_id", reminder.ID, "error", err)
	}
	s.invalidateOwnerCache(ctx, reminder.UserID)

	s.logger.Info("reminder scheduled",
		"reminder_id", reminder.ID,
		"owner_id", reminder.UserID,
		"next_trigger_at", reminder.NextTriggerAt,
		"repeats", reminder.Repeats())
	return reminder, nil
}

// DequeueDue returns leases on reminders that are due at now, considering
// index candidates up to horizon. Callers own each returned lease
// exclusively and must resolve it via MarkDelivered or Requeue and then
// ReleaseLease.
//
// Candidates whose trigger time is within (now, horizon] are pre-leased but
// handed back to the index at their true trigger time, so lookahead never
// causes early delivery. Stale candidates (deleted, retired, rescheduled)
// are reconciled away against the durable store without surfacing errors.
func (s *Service) DequeueDue(ctx context.Context, now, horizon time.Time) ([]types.ReminderLease, error) {
	candidateIDs, err := s.dueCandidates(ctx, horizon)
	if err != nil {
		return nil, err
	}
	if len(candidateIDs) == 0 {
		return nil, nil
	}

	// Lease acquisition in due order. Contention is not an error: another
	// worker holds it, leave the index entry alone and move on.
	tokens := make(map[string]string, len(candidateIDs))
	acquired := make([]string, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		token, ok, lockErr := s.leases.Acquire(ctx, id)
		if lockErr != nil {
			s.logger.Warn("lease acquisition failed", "reminder_id", id, "error", lockErr)
			continue
		}
		if !ok {
			continue
		}
		tokens[id] = token
		acquired = append(acquired, id)
	}
	if len(acquired) == 0 {
		return nil, nil
	}

	rows, err := s.reminders.GetByIDs(ctx, acquired)
	if err != nil {
		s.releaseAll(ctx, acquired, tokens)
		return nil, err
	}
	byID := make(map[string]types.Reminder, len(rows))
	for _, rem := range rows {
		byID[rem.ID] = rem
	}

	// Reconcile each acquired candidate against current durable truth.
	var leases []types.ReminderLease
	for _, id := range acquired {
		rem, found := byID[id]
		switch {
		case !found || !rem.IsActive:
			// Deleted or already retired through another path.
			s.dropFromIndex(ctx, id)
			s.releaseOne(ctx, id, tokens[id])
		case rem.NextTriggerAt.After(now):
			// Not actually due yet; the index score was stale or the
			// candidate came from the lookahead window. Park it at its
			// true trigger time.
			if upErr := s.index.Upsert(ctx, id, rem.NextTriggerAt); upErr != nil {
				s.logger.Warn("failed to re-index not-yet-due reminder", "reminder_id", id, "error", upErr)
			}
			s.releaseOne(ctx, id, tokens[id])
		default:
			s.dropFromIndex(ctx, id)
			leases = append(leases, types.ReminderLease{Reminder: rem, LockToken: tokens[id]})
		}
	}
	return leases, nil
}

// dueCandidates returns candidate reminder ids due by horizon, soonest
// first. Normally this is an index range query; when the index comes back
// empty and no backing fast store is configured, it falls back to a durable
// range scan so reminders are still delivered (degraded mode).
func (s *Service) dueCandidates(ctx context.Context, horizon time.Time) ([]string, error) {
	entries, err := s.index.RangeDue(ctx, horizon, s.batchSize)
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		ids := make([]string, len(entries))
		for i, entry := range entries {
			ids[i] = entry.Member
		}
		return ids, nil
	}

	if s.index.Available() {
		return nil, nil
	}

	due, err := s.reminders.GetDueBy(ctx, horizon)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(due))
	for _, rem := range due {
		ids = append(ids, rem.ID)
		if s.batchSize > 0 && len(ids) == s.batchSize {
			break
		}
	}
	return ids, nil
}

// MarkDelivered records successful deliveries. Repeating reminders advance
// to triggeredAt plus their interval and re-enter the due-index; one-shot
// reminders retire. Each reminder's durable update is atomic; a failed
// update skips that reminder's index mutation and the error is returned
// after the rest of the batch is processed.
func (s *Service) MarkDelivered(ctx context.Context, reminders []types.Reminder, triggeredAt time.Time) error {
	triggeredAt = triggeredAt.UTC()

	var errs []error
	owners := make(map[string]struct{})
	for _, rem := range reminders {
		if rem.Repeats() {
			next := triggeredAt.Add(rem.RepeatInterval())
			if err := s.reminders.UpdateAfterDelivery(ctx, rem.ID, triggeredAt, &next); err != nil {
				s.logger.Error("failed to reschedule delivered reminder", "reminder_id", rem.ID, "error", err)
				errs = append(errs, err)
				continue
			}
			if err := s.index.Upsert(ctx, rem.ID, next); err != nil {
				s.logger.Warn("failed to re-index rescheduled reminder", "reminder_id", rem.ID, "error", err)
			}
		} else {
			if err := s.reminders.UpdateAfterDelivery(ctx, rem.ID, triggeredAt, nil); err != nil {
				s.logger.Error("failed to retire delivered reminder", "reminder_id", rem.ID, "error", err)
				errs = append(errs, err)
				continue
			}
			s.dropFromIndex(ctx, rem.ID)
		}
		owners[rem.UserID] = struct{}{}
	}

	for ownerID := range owners {
		s.invalidateOwnerCache(ctx, ownerID)
	}
	return errors.Join(errs...)
}

// Requeue makes a still-active reminder eligible again at its current
// trigger time, without touching the durable store. Used after a transient
// delivery failure so the reminder does not wait out the lease TTL.
func (s *Service) Requeue(ctx context.Context, reminder types.Reminder) error {
	return s.index.Upsert(ctx, reminder.ID, reminder.NextTriggerAt)
}

// ReleaseLease gives back a delivery lease. Returns whether the lease was
// still owned by token.
func (s *Service) ReleaseLease(ctx context.Context, reminderID, token string) (bool, error) {
	return s.leases.Release(ctx, reminderID, token)
}

// DeactivateReminder retires a reminder on the owner's behalf. Returns false
// when the reminder does not exist, belongs to someone else, or is already
// inactive. Index removal afterwards is best-effort: reconciliation filters
// retired reminders out of dequeue regardless.
func (s *Service) DeactivateReminder(ctx context.Context, reminderID, ownerID string) (bool, error) {
	affected, err := s.reminders.Deactivate(ctx, reminderID, ownerID)
	if err != nil {
		return false, err
	}
	if !affected {
		return false, nil
	}

	s.dropFromIndex(ctx, reminderID)
	s.invalidateOwnerCache(ctx, ownerID)
	s.logger.Info("reminder deactivated", "reminder_id", reminderID, "owner_id", ownerID)
	return true, nil
}

// RebuildIndex re-populates the due-index from the durable store, repairing
// entries lost to eviction or restart. Upserts are idempotent, so running it
// concurrently with live traffic is safe. Returns how many reminders were
// indexed.
func (s *Service) RebuildIndex(ctx context.Context) (int, error) {
	if !s.index.Available() {
		return 0, nil
	}

	active, err := s.reminders.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	for _, rem := range active {
		if err := s.index.Upsert(ctx, rem.ID, rem.NextTriggerAt); err != nil {
			return 0, err
		}
	}

	s.logger.Info("due-index rebuilt", "indexed", len(active))
	return len(active), nil
}

// ActiveForUser returns the owner's active reminders soonest-due first,
// served from the derived read cache when possible.
func (s *Service) ActiveForUser(ctx context.Context, ownerID string) ([]types.Reminder, error) {
	key := cache.UserReminders(ownerID)
	if raw, ok, err := s.store.Get(ctx, key); err == nil && ok {
		var reminders []types.Reminder
		if err := json.Unmarshal([]byte(raw), &reminders); err == nil {
			return reminders, nil
		}
		// Corrupt cache entry; fall through to the store and overwrite.
	}

	reminders, err := s.reminders.ListActiveForOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, key, reminders)
	return reminders, nil
}

// Templates returns the template catalogue, cached.
func (s *Service) Templates(ctx context.Context) ([]types.ReminderTemplate, error) {
	key := cache.ReminderTemplates()
	if raw, ok, err := s.store.Get(ctx, key); err == nil && ok {
		var templates []types.ReminderTemplate
		if err := json.Unmarshal([]byte(raw), &templates); err == nil {
			return templates, nil
		}
	}

	templates, err := s.templates.List(ctx)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, key, templates)
	return templates, nil
}

// TemplateByCode returns the template with the given code (case-insensitive)
// from the cached catalogue, or nil when no such template exists.
func (s *Service) TemplateByCode(ctx context.Context, code string) (*types.ReminderTemplate, error) {
	templates, err := s.Templates(ctx)
	if err != nil {
		return nil, err
	}
	for i := range templates {
		if strings.EqualFold(templates[i].Code, code) {
			t := templates[i]
			return &t, nil
		}
	}
	return nil, nil
}

func (s *Service) cacheJSON(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.store.Set(ctx, key, string(raw), s.cacheTTL); err != nil {
		s.logger.Warn("failed to populate read cache", "key", key, "error", err)
	}
}

func (s *Service) invalidateOwnerCache(ctx context.Context, ownerID string) {
	if _, err := s.store.Delete(ctx, cache.UserReminders(ownerID)); err != nil {
		s.logger.Warn("failed to invalidate owner reminder cache", "owner_id", ownerID, "error", err)
	}
}

func (s *Service) dropFromIndex(ctx context.Context, reminderID string) {
	if err := s.index.Remove(ctx, reminderID); err != nil {
		s.logger.Warn("failed to remove reminder from due-index", "reminder_id", reminderID, "error", err)
	}
}

func (s *Service) releaseOne(ctx context.Context, reminderID, token string) {
	if _, err := s.leases.Release(ctx, reminderID, token); err != nil {
		s.logger.Warn("failed to release reminder lease", "reminder_id", reminderID, "error", err)
	}
}

func (s *Service) releaseAll(ctx context.Context, ids []string, tokens map[string]string) {
	for _, id := range ids {
		s.releaseOne(ctx, id, tokens[id])
	}
}
