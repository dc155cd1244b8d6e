package types

import (
	"context"
	"time"
)

// Logger is the minimal structured logging interface used by services that
// should not depend on a concrete logging implementation. slog.Logger
// satisfies Info/Error/Warn directly; With requires a thin adapter because
// slog returns *slog.Logger rather than this interface.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}

// DeliveryChannel sends a reminder text to a destination chat. Implementations
// return an error on any failure; the worker treats every channel error as
// transient and requeues the reminder.
type DeliveryChannel interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// ScoredMember is one (member, score) entry returned from a sorted-set range
// query. For the reminder due-index the member is a reminder ID and the score
// is the due time as Unix seconds.
type ScoredMember struct {
	Member string
	Score  float64
}

// FastStore is the optional fast-store driver: simple keyed values with TTL,
// an atomic check-and-set lock primitive with owner-token release, and a
// sorted set supporting score-range queries. The scheduler must function
// correctly (in degraded mode) when the configured implementation reports
// Available() == false.
//
// Every mutating operation is safe under unlimited concurrent callers:
// key/set operations are idempotent and AcquireLock is a single atomic
// check-and-set.
type FastStore interface {
	// Available reports whether a real backing store is configured. The
	// Disabled implementation returns false, which routes the scheduler to
	// its degraded-mode durable-store fallback.
	Available() bool

	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
	// Increment adds delta to the counter at key, creating it at zero first.
	// A positive ttl refreshes the key's expiry.
	Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)

	// AcquireLock atomically sets the lock at key to token iff no unexpired
	// lock exists. Returns true on acquisition.
	AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	// ReleaseLock deletes the lock at key iff it holds an unexpired lock with
	// the matching token. Returns true when a lock was released.
	ReleaseLock(ctx context.Context, key, token string) (bool, error)

	SortedSetAdd(ctx context.Context, key, member string, score float64) error
	// SortedSetRangeByScore returns up to limit members with minScore <= score
	// <= maxScore in ascending score order. limit <= 0 means no bound.
	SortedSetRangeByScore(ctx context.Context, key string, minScore, maxScore float64, limit int) ([]ScoredMember, error)
	SortedSetRemove(ctx context.Context, key string, members ...string) (int64, error)
	SortedSetRemoveRangeByScore(ctx context.Context, key string, minScore, maxScore float64) (int64, error)
}
