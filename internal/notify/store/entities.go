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

// EntityStore reads the booking application's tables. It never writes them.
type EntityStore struct {
	db *sql.DB
}

func NewEntityStore(db *sql.DB) *EntityStore {
	return &EntityStore{db: db}
}

func (s *EntityStore) Student(ctx context.Context, id string) (*models.Student, error) {
	var (
		st                        models.Student
		license, instructorID     sql.NullString
		expiration, certification sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, first_name, last_name, email, phone, license_number, license_expiration, certification_issued, instructor_id
		FROM students WHERE id = $1`, id,
	).Scan(&st.ID, &st.FirstName, &st.LastName, &st.Email, &st.Phone, &license, &expiration, &certification, &instructorID)
	if err := notFound("student", id, err); err != nil {
		return nil, err
	}
	st.LicenseNumber = license.String
	st.InstructorID = instructorID.String
	st.LicenseExpiration = timePtr(expiration)
	st.CertificationIssued = timePtr(certification)
	return &st, nil
}

func (s *EntityStore) Instructor(ctx context.Context, id string) (*models.Instructor, error) {
	var (
		in                models.Instructor
		business, account sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, first_name, last_name, email, phone, business_name, credit_account_id FROM instructors WHERE id = $1`, id,
	).Scan(&in.ID, &in.FirstName, &in.LastName, &in.Email, &in.Phone, &business, &account)
	if err := notFound("instructor", id, err); err != nil {
		return nil, err
	}
	in.BusinessName = business.String
	in.CreditAccountID = account.String
	return &in, nil
}

func (s *EntityStore) Course(ctx context.Context, id string) (*models.Course, error) {
	var (
		c           models.Course
		description sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, price_cents, instructor_id FROM courses WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &description, &c.PriceCents, &c.InstructorID)
	if err := notFound("course", id, err); err != nil {
		return nil, err
	}
	c.Description = description.String
	return &c, nil
}

func (s *EntityStore) Schedule(ctx context.Context, id string) (*models.Schedule, error) {
	var sc models.Schedule
	err := s.db.QueryRowContext(ctx,
		`SELECT id, course_id, starts_at, ends_at, location FROM course_schedules WHERE id = $1`, id,
	).Scan(&sc.ID, &sc.CourseID, &sc.StartsAt, &sc.EndsAt, &sc.Location)
	if err := notFound("schedule", id, err); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (s *EntityStore) Enrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	var e models.Enrollment
	err := s.db.QueryRowContext(ctx,
		`SELECT id, student_id, schedule_id, status, created_at FROM enrollments WHERE id = $1`, id,
	).Scan(&e.ID, &e.StudentID, &e.ScheduleID, &e.Status, &e.CreatedAt)
	if err := notFound("enrollment", id, err); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *EntityStore) Appointment(ctx context.Context, id string) (*models.Appointment, error) {
	var (
		a     models.Appointment
		notes sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, student_id, instructor_id, starts_at, location, notes FROM appointments WHERE id = $1`, id,
	).Scan(&a.ID, &a.StudentID, &a.InstructorID, &a.StartsAt, &a.Location, &notes)
	if err := notFound("appointment", id, err); err != nil {
		return nil, err
	}
	a.Notes = notes.String
	return &a, nil
}

// RecipientStore resolves a recipient id against students first, then
// instructors.
type RecipientStore struct {
	db *sql.DB
}

func NewRecipientStore(db *sql.DB) *RecipientStore {
	return &RecipientStore{db: db}
}

func (s *RecipientStore) Get(ctx context.Context, id string) (*models.Recipient, error) {
	var r models.Recipient
	err := s.db.QueryRowContext(ctx,
		`SELECT id, first_name, last_name, email, phone FROM (
			SELECT id, first_name, last_name, email, phone, 0 AS rank FROM students WHERE id = $1
			UNION ALL
			SELECT id, first_name, last_name, email, phone, 1 AS rank FROM instructors WHERE id = $1
		) r ORDER BY rank LIMIT 1`, id,
	).Scan(&r.ID, &r.FirstName, &r.LastName, &r.Email, &r.Phone)
	if err := notFound("recipient", id, err); err != nil {
		return nil, err
	}
	return &r, nil
}

// notFound maps sql.ErrNoRows to ErrNotFound and other errors to a query
// failure. It returns nil for a nil err.
func notFound(kind, id string, err error) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	default:
		return apperrors.NewQueryExecutionFailedError("select "+kind, err)
	}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
