package store

import (
	"context"
	"database/sql"
	"time"

	apperrors "course-notify/internal/common/errors"

	"github.com/google/uuid"
)

type FiredStore struct {
	db *sql.DB
}

func NewFiredStore(db *sql.DB) *FiredStore {
	return &FiredStore{db: db}
}

func (s *FiredStore) Exists(ctx context.Context, entityID, milestoneType, anchorSnapshot string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM milestone_fired_records WHERE entity_id = $1 AND milestone_type = $2 AND anchor_snapshot = $3)`,
		entityID, milestoneType, anchorSnapshot,
	).Scan(&exists)
	if err != nil {
		return false, apperrors.NewQueryExecutionFailedError("select milestone_fired_records", err)
	}
	return exists, nil
}

// Record is a no-op when the triple is already present; the unique
// constraint is the final guard against double firing.
func (s *FiredStore) Record(ctx context.Context, entityID, milestoneType, anchorSnapshot string, firedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO milestone_fired_records (id, entity_id, milestone_type, anchor_snapshot, fired_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (entity_id, milestone_type, anchor_snapshot) DO NOTHING`,
		uuid.NewString(), entityID, milestoneType, anchorSnapshot, firedAt,
	)
	if err != nil {
		return apperrors.NewDatabaseInsertFailedError(err)
	}
	return nil
}
