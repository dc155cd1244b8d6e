package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"remindbot/internal/cache"
	"remindbot/internal/types"
)

// LeaseManager hands out short-lived exclusive delivery leases, one per
// reminder, on top of the fast store's atomic check-and-set lock primitive.
//
// A lease is (reminder id, random token, TTL). Holding it means no other
// worker will attempt delivery of that reminder until the holder releases it
// or the TTL expires. The TTL is the crash recovery bound: a worker that
// dies mid-delivery blocks the reminder for at most one TTL.
type LeaseManager struct {
	store types.FastStore
	ttl   time.Duration
}

// NewLeaseManager creates a LeaseManager issuing leases with the given TTL.
func NewLeaseManager(store types.FastStore, ttl time.Duration) *LeaseManager {
	return &LeaseManager{store: store, ttl: ttl}
}

// Acquire attempts to take the delivery lease for a reminder. On success it
// returns the opaque owner token required to release the lease. ok=false
// means another holder currently owns it.
func (m *LeaseManager) Acquire(ctx context.Context, reminderID string) (token string, ok bool, err error) {
	token = uuid.NewString()
	ok, err = m.store.AcquireLock(ctx, cache.ReminderLock(reminderID), token, m.ttl)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release gives the lease back. It only succeeds when token still owns the
// lock: a stale holder whose TTL expired cannot release a lease that has
// since been re-acquired by someone else. Returns whether the lock was
// actually released.
func (m *LeaseManager) Release(ctx context.Context, reminderID, token string) (bool, error) {
	return m.store.ReleaseLock(ctx, cache.ReminderLock(reminderID), token)
}
