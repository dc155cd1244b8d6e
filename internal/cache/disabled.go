package cache

import (
	"context"
	"time"

	"remindbot/internal/types"
)

// Compile-time assertion that Disabled implements types.FastStore.
var _ types.FastStore = (*Disabled)(nil)

// Disabled is the FastStore used when no backing fast store is configured.
// Reads report misses, writes are dropped, and locks always acquire: with a
// single worker process and no shared index there is nothing to coordinate,
// and the scheduler's degraded-mode fallback (signalled by Available()
// returning false) reads due reminders straight from the database.
type Disabled struct{}

// NewDisabled returns the no-op store.
func NewDisabled() *Disabled { return &Disabled{} }

func (Disabled) Available() bool { return false }

func (Disabled) Get(context.Context, string) (string, bool, error) { return "", false, nil }

func (Disabled) Set(context.Context, string, string, time.Duration) error { return nil }

func (Disabled) Delete(context.Context, string) (bool, error) { return false, nil }

func (Disabled) Increment(_ context.Context, _ string, delta int64, _ time.Duration) (int64, error) {
	return delta, nil
}

func (Disabled) AcquireLock(context.Context, string, string, time.Duration) (bool, error) {
	return true, nil
}

func (Disabled) ReleaseLock(context.Context, string, string) (bool, error) { return true, nil }

func (Disabled) SortedSetAdd(context.Context, string, string, float64) error { return nil }

func (Disabled) SortedSetRangeByScore(context.Context, string, float64, float64, int) ([]types.ScoredMember, error) {
	return nil, nil
}

func (Disabled) SortedSetRemove(context.Context, string, ...string) (int64, error) { return 0, nil }

func (Disabled) SortedSetRemoveRangeByScore(context.Context, string, float64, float64) (int64, error) {
	return 0, nil
}
