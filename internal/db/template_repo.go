package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"remindbot/internal/types"
)

// TemplateRepository provides data access for the reminder_templates table.
// Templates are read-mostly reference data; the scheduler only consumes the
// default repeat interval at creation time.
type TemplateRepository struct {
	db DBTX
}

// NewTemplateRepository creates a new TemplateRepository backed by the given
// database connection (pool or transaction).
func NewTemplateRepository(db DBTX) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// List returns all templates ordered by title.
func (r *TemplateRepository) List(ctx context.Context) ([]types.ReminderTemplate, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, code, title, description, default_repeat_interval_minutes, is_system
		 FROM reminder_templates
		 ORDER BY title ASC`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query reminder templates", err)
	}
	defer rows.Close()

	var templates []types.ReminderTemplate
	for rows.Next() {
		var t types.ReminderTemplate
		if err := rows.Scan(
			&t.ID,
			&t.Code,
			&t.Title,
			&t.Description,
			&t.DefaultRepeatIntervalMinutes,
			&t.IsSystem,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan reminder template", err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating reminder templates", err)
	}

	return templates, nil
}

// GetByCode returns the template with the given code, or nil when no such
// template exists. Codes are matched case-insensitively.
func (r *TemplateRepository) GetByCode(ctx context.Context, code string) (*types.ReminderTemplate, error) {
	var t types.ReminderTemplate
	err := r.db.QueryRow(ctx,
		`SELECT id, code, title, description, default_repeat_interval_minutes, is_system
		 FROM reminder_templates
		 WHERE LOWER(code) = LOWER($1)`,
		code,
	).Scan(&t.ID, &t.Code, &t.Title, &t.Description, &t.DefaultRepeatIntervalMinutes, &t.IsSystem)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query reminder template by code", err)
	}
	return &t, nil
}
