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

// AnchorSource lists students whose anchor column falls in [from, to].
// The paying account is the student's instructor's credit account.
type AnchorSource struct {
	db     *sql.DB
	column string
}

// LicenseExpirations anchors renewal reminders on students.license_expiration.
func LicenseExpirations(db *sql.DB) *AnchorSource {
	return &AnchorSource{db: db, column: "license_expiration"}
}

// CertificationIssues anchors refresher reminders on students.certification_issued.
func CertificationIssues(db *sql.DB) *AnchorSource {
	return &AnchorSource{db: db, column: "certification_issued"}
}

func (s *AnchorSource) Anchored(ctx context.Context, from, to time.Time) ([]models.AnchoredEntity, error) {
	// column is one of two constants above, never caller input.
	query := fmt.Sprintf(`SELECT s.id, s.%[1]s, COALESCE(s.instructor_id, ''), COALESCE(i.credit_account_id, '')
		FROM students s
		LEFT JOIN instructors i ON i.id = s.instructor_id
		WHERE s.%[1]s IS NOT NULL AND s.%[1]s BETWEEN $1 AND $2
		ORDER BY s.%[1]s, s.id`, s.column)

	rows, err := s.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("select students by "+s.column, err)
	}
	defer rows.Close()

	var out []models.AnchoredEntity
	for rows.Next() {
		var e models.AnchoredEntity
		if err := rows.Scan(&e.ID, &e.Anchor, &e.Refs.InstructorID, &e.AccountID); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("scan students", err)
		}
		e.RecipientID = e.ID
		e.Refs.StudentID = e.ID
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("iterate students", err)
	}
	return out, nil
}

// ActiveRenewalEnrollment suppresses a reminder when the student already
// holds a confirmed enrollment in a schedule that has not started yet.
type ActiveRenewalEnrollment struct {
	db  *sql.DB
	now func() time.Time
}

func NewActiveRenewalEnrollment(db *sql.DB) *ActiveRenewalEnrollment {
	return &ActiveRenewalEnrollment{db: db, now: time.Now}
}

func (s *ActiveRenewalEnrollment) Suppressed(ctx context.Context, entity models.AnchoredEntity, rule models.MilestoneRule) (bool, string, error) {
	var enrollmentID string
	err := s.db.QueryRowContext(ctx,
		`SELECT e.id FROM enrollments e
		JOIN course_schedules cs ON cs.id = e.schedule_id
		WHERE e.student_id = $1 AND e.status = 'confirmed' AND cs.starts_at >= $2
		ORDER BY cs.starts_at LIMIT 1`,
		entity.Refs.StudentID, s.now().UTC(),
	).Scan(&enrollmentID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return false, "", nil
	}
	if err != nil {
		return false, "", apperrors.NewQueryExecutionFailedError("select active enrollment", err)
	}
	return true, "already enrolled in upcoming schedule " + enrollmentID, nil
}
