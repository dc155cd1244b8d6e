// Package scheduler implements the reminder scheduling core: a due-time
// index over the fast store, per-reminder delivery leases, and the service
// that coordinates both against the database system of record.
package scheduler

import (
	"context"
	"math"
	"time"

	"remindbot/internal/cache"
	"remindbot/internal/types"
)

// DueIndex is the sorted due-time index: reminder id -> next trigger time as
// a Unix-seconds score. It exists to answer "what is due by X" without a
// full reminders table scan.
//
// The index is never a source of truth. Entries may be lost at any time
// (eviction, restart); the scheduler re-derives reminder state from the
// database before acting on any entry, and RebuildIndex re-populates the
// set from scratch.
type DueIndex struct {
	store types.FastStore
}

// NewDueIndex creates a DueIndex over the given fast store.
func NewDueIndex(store types.FastStore) *DueIndex {
	return &DueIndex{store: store}
}

// Available reports whether a real backing store is configured. When false,
// range queries always come back empty and the scheduler falls back to
// database range scans (degraded mode).
func (i *DueIndex) Available() bool {
	return i.store.Available()
}

// Score converts a trigger time to its index score.
func Score(t time.Time) float64 {
	return float64(t.Unix())
}

// Upsert inserts or moves a reminder to the given due time. Idempotent.
func (i *DueIndex) Upsert(ctx context.Context, reminderID string, dueAt time.Time) error {
	return i.store.SortedSetAdd(ctx, cache.ReminderQueue(), reminderID, Score(dueAt))
}

// RangeDue returns up to limit entries due by horizon, soonest first.
func (i *DueIndex) RangeDue(ctx context.Context, horizon time.Time, limit int) ([]types.ScoredMember, error) {
	return i.store.SortedSetRangeByScore(ctx, cache.ReminderQueue(), math.Inf(-1), Score(horizon), limit)
}

// Remove deletes the given reminder ids from the index. Removing an absent
// id is a no-op.
func (i *DueIndex) Remove(ctx context.Context, reminderIDs ...string) error {
	if len(reminderIDs) == 0 {
		return nil
	}
	_, err := i.store.SortedSetRemove(ctx, cache.ReminderQueue(), reminderIDs...)
	return err
}
