package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	apperrors "course-notify/internal/common/errors"
	"course-notify/internal/models"
)

type DeliveryLogStore struct {
	db *sql.DB
}

func NewDeliveryLogStore(db *sql.DB) *DeliveryLogStore {
	return &DeliveryLogStore{db: db}
}

func (s *DeliveryLogStore) Create(ctx context.Context, l *models.DeliveryLog) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO delivery_logs (id, template_id, recipient_id, channel, status, to_address, resolved_subject, resolved_body, debit_transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		l.ID, l.TemplateID, l.RecipientID, string(l.Channel), string(l.Status), l.ToAddress,
		l.ResolvedSubject, l.ResolvedBody, nullString(l.DebitTransactionID), l.CreatedAt,
	)
	if err != nil {
		return apperrors.NewDatabaseInsertFailedError(err)
	}
	return nil
}

func (s *DeliveryLogStore) MarkSent(ctx context.Context, id, externalReference string, completedAt time.Time) error {
	return s.transition(ctx, id, models.DeliverySent,
		`UPDATE delivery_logs SET status = 'sent', external_reference = $2, completed_at = $3 WHERE id = $1 AND status = 'pending'`,
		id, nullString(externalReference), completedAt)
}

func (s *DeliveryLogStore) MarkFailed(ctx context.Context, id, reason string, completedAt time.Time) error {
	return s.transition(ctx, id, models.DeliveryFailed,
		`UPDATE delivery_logs SET status = 'failed', error = $2, completed_at = $3 WHERE id = $1 AND status = 'pending'`,
		id, reason, completedAt)
}

// transition only moves rows out of pending.
func (s *DeliveryLogStore) transition(ctx context.Context, id string, to models.DeliveryStatus, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("update delivery_logs", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delivery %s is not pending, cannot mark %s", id, to)
	}
	return nil
}

func (s *DeliveryLogStore) Get(ctx context.Context, id string) (*models.DeliveryLog, error) {
	var (
		l                         models.DeliveryLog
		channel, status           string
		externalRef, debitID, msg sql.NullString
		completedAt               sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, template_id, recipient_id, channel, status, to_address, resolved_subject, resolved_body,
			external_reference, debit_transaction_id, error, created_at, completed_at
		FROM delivery_logs WHERE id = $1`, id,
	).Scan(&l.ID, &l.TemplateID, &l.RecipientID, &channel, &status, &l.ToAddress, &l.ResolvedSubject, &l.ResolvedBody,
		&externalRef, &debitID, &msg, &l.CreatedAt, &completedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("delivery %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("select delivery_logs", err)
	}

	l.Channel = models.Channel(channel)
	l.Status = models.DeliveryStatus(status)
	l.ExternalReference = externalRef.String
	l.DebitTransactionID = debitID.String
	l.Error = msg.String
	if completedAt.Valid {
		t := completedAt.Time
		l.CompletedAt = &t
	}
	return &l, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
