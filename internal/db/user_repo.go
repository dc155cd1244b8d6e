package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"remindbot/internal/types"
)

// UserRepository provides data access for the users table. The scheduler
// core only needs users as a stable foreign key plus the Telegram chat
// handle; everything else here serves the conversational front-end.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository backed by the given
// database connection (pool or transaction).
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Upsert registers a user by Telegram chat handle, updating the username on
// conflict. Returns the stored row.
func (r *UserRepository) Upsert(ctx context.Context, telegramID int64, username *string) (*types.User, error) {
	var u types.User
	err := r.db.QueryRow(ctx,
		`INSERT INTO users (telegram_id, username)
		 VALUES ($1, $2)
		 ON CONFLICT (telegram_id) DO UPDATE
		   SET username = EXCLUDED.username
		 RETURNING id, telegram_id, username, timezone, created_at`,
		telegramID, username,
	).Scan(&u.ID, &u.TelegramID, &u.Username, &u.TimeZone, &u.CreatedAt)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to upsert user", err)
	}
	return &u, nil
}

// GetByTelegramID returns the user with the given chat handle, or nil when
// no such user exists.
func (r *UserRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*types.User, error) {
	var u types.User
	err := r.db.QueryRow(ctx,
		`SELECT id, telegram_id, username, timezone, created_at
		 FROM users
		 WHERE telegram_id = $1`,
		telegramID,
	).Scan(&u.ID, &u.TelegramID, &u.Username, &u.TimeZone, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query user by telegram id", err)
	}
	return &u, nil
}
