// Package cache provides the fast-store implementations behind the
// types.FastStore interface: an in-process concurrency-safe store with
// per-entry expiry for single-node deployments, and a disabled store that
// forces the scheduler into degraded mode.
//
// The fast store is a performance optimization, never a source of truth.
// Any entry may be silently lost without violating correctness, because the
// scheduler always re-derives authoritative reminder state from the
// database before acting.
package cache

import "fmt"

// Key catalogue. Every fast-store key used by the platform is constructed
// here so the keyspace can be audited in one place.

// ReminderQueue is the sorted set mapping reminder id -> next trigger time
// (Unix seconds). This is the due-index the worker polls.
func ReminderQueue() string { return "reminders:queue" }

// ReminderLock is the per-reminder delivery lease key.
func ReminderLock(reminderID string) string { return "lock:reminder:" + reminderID }

// UserReminders caches a user's active reminder list for the
// conversational read path.
func UserReminders(userID string) string { return "reminders:user:" + userID }

// ReminderTemplates caches the template catalogue.
func ReminderTemplates() string { return "reminder_templates" }

// RateLimitMessages is the per-chat message rate-limit counter.
func RateLimitMessages(chatID int64) string { return fmt.Sprintf("rl:msg:%d", chatID) }

// RateLimitCallbacks is the per-chat callback rate-limit counter.
func RateLimitCallbacks(chatID int64) string { return fmt.Sprintf("rl:cb:%d", chatID) }
