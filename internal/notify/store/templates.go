package store

import (
	"context"
	"database/sql"
	stderrors "errors"

	apperrors "course-notify/internal/common/errors"
	"course-notify/internal/models"
)

type TemplateStore struct {
	db *sql.DB
}

func NewTemplateStore(db *sql.DB) *TemplateStore {
	return &TemplateStore{db: db}
}

func (s *TemplateStore) Get(ctx context.Context, id string) (*models.Template, error) {
	var (
		t       models.Template
		channel string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, channel, subject, body, active, created_at FROM notification_templates WHERE id = $1`, id,
	).Scan(&t.ID, &channel, &t.Subject, &t.Body, &t.Active, &t.CreatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewTemplateNotFoundError(id)
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("select notification_templates", err)
	}
	t.Channel = models.Channel(channel)
	return &t, nil
}

// Create inserts a new template. Existing templates are never rewritten.
func (s *TemplateStore) Create(ctx context.Context, t *models.Template) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_templates (id, channel, subject, body, active, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, string(t.Channel), t.Subject, t.Body, t.Active, t.CreatedAt,
	)
	if err != nil {
		return apperrors.NewDatabaseInsertFailedError(err)
	}
	return nil
}
