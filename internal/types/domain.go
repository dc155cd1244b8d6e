// Package types defines the shared domain entities and interfaces for the
// remindbot platform. Entities are plain structs scanned from the database
// by the repository layer; repositories return value snapshots, never shared
// mutable aliases to rows they have already persisted.
package types

import "time"

// User is a reminder owner. TelegramID is the delivery-channel address the
// worker sends to; a zero value means the profile has no usable destination.
type User struct {
	ID         string
	TelegramID int64
	Username   *string
	TimeZone   *string
	CreatedAt  time.Time
}

// ReminderTemplate is a named preset with a default repeat interval.
// Read-mostly reference data; the scheduler only consumes
// DefaultRepeatIntervalMinutes at creation time.
type ReminderTemplate struct {
	ID                           string
	Code                         string
	Title                        string
	Description                  *string
	DefaultRepeatIntervalMinutes *int
	IsSystem                     bool
}

// Reminder is a scheduled notification.
//
// ScheduledAt is the originally requested fire time and is immutable after
// creation. NextTriggerAt is the next due time and is advanced on each
// delivery of a repeating reminder. A nil or non-positive
// RepeatIntervalMinutes makes the reminder one-shot: it retires
// (IsActive=false) after its first successful delivery. Retired reminders
// are never re-delivered and never re-enter the due-index.
type Reminder struct {
	ID                    string
	UserID                string
	TemplateID            *string
	Message               string
	CreatedAt             time.Time
	ScheduledAt           time.Time
	NextTriggerAt         time.Time
	RepeatIntervalMinutes *int
	IsActive              bool
	LastTriggeredAt       *time.Time

	// Owner is populated by queries that join users (due/batch loads).
	Owner *User
}

// Repeats reports whether the reminder reschedules itself after delivery.
func (r *Reminder) Repeats() bool {
	return r.RepeatIntervalMinutes != nil && *r.RepeatIntervalMinutes > 0
}

// RepeatInterval returns the repeat interval as a duration. Only meaningful
// when Repeats() is true.
func (r *Reminder) RepeatInterval() time.Duration {
	if r.RepeatIntervalMinutes == nil {
		return 0
	}
	return time.Duration(*r.RepeatIntervalMinutes) * time.Minute
}

// ReminderLease pairs a reminder snapshot with the lock token under which it
// was dequeued. The holder owns the delivery attempt exclusively until it
// resolves the lease (MarkDelivered/Requeue) and releases the lock, or the
// lock TTL expires.
type ReminderLease struct {
	Reminder  Reminder
	LockToken string
}
