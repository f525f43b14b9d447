package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	apperrors "course-notify/internal/common/errors"
	"course-notify/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var day = time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)

func TestEnsureSchema(t *testing.T) {
	db, mock := mockDB(t)
	for range schema {
		mock.ExpectExec(`CREATE (UNIQUE )?(TABLE|INDEX) IF NOT EXISTS`).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, EnsureSchema(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema_StopsOnError(t *testing.T) {
	db, mock := mockDB(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS notification_templates`).WillReturnError(errors.New("permission denied"))

	err := EnsureSchema(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateStore_Get(t *testing.T) {
	db, mock := mockDB(t)
	mock.ExpectQuery(`SELECT id, channel, subject, body, active, created_at FROM notification_templates WHERE id = \$1`).
		WithArgs("welcome").
		WillReturnRows(sqlmock.NewRows([]string{"id", "channel", "subject", "body", "active", "created_at"}).
			AddRow("welcome", "email", "Hi {{firstName}}", "Welcome to {{courseName}}", true, day))

	tmpl, err := NewTemplateStore(db).Get(context.Background(), "welcome")
	require.NoError(t, err)
	assert.Equal(t, models.ChannelEmail, tmpl.Channel)
	assert.Equal(t, "Hi {{firstName}}", tmpl.Subject)
	assert.True(t, tmpl.Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateStore_GetMissing(t *testing.T) {
	db, mock := mockDB(t)
	mock.ExpectQuery(`FROM notification_templates`).WithArgs("nope").WillReturnError(sql.ErrNoRows)

	_, err := NewTemplateStore(db).Get(context.Background(), "nope")
	assert.Equal(t, apperrors.ErrCodeTemplateNotFound, apperrors.CodeOf(err))
}

func TestTemplateStore_Create(t *testing.T) {
	db, mock := mockDB(t)
	mock.ExpectExec(`INSERT INTO notification_templates`).
		WithArgs("reminder", "sms", "", "See you {{startDate}}", true, day).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := NewTemplateStore(db).Create(context.Background(), &models.Template{
		ID: "reminder", Channel: models.ChannelSMS, Body: "See you {{startDate}}", Active: true, CreatedAt: day,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryLogStore_Lifecycle(t *testing.T) {
	db, mock := mockDB(t)
	logs := NewDeliveryLogStore(db)
	ctx := context.Background()

	mock.ExpectExec(`INSERT INTO delivery_logs`).
		WithArgs("dlv_1", "welcome", "stu-1", "sms", "pending", "+16502530000", "", "hello", "ltx_1", day).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE delivery_logs SET status = 'sent', external_reference = \$2, completed_at = \$3 WHERE id = \$1 AND status = 'pending'`).
		WithArgs("dlv_1", "SM123", day).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, logs.Create(ctx, &models.DeliveryLog{
		ID: "dlv_1", TemplateID: "welcome", RecipientID: "stu-1", Channel: models.ChannelSMS,
		Status: models.DeliveryPending, ToAddress: "+16502530000", ResolvedBody: "hello",
		DebitTransactionID: "ltx_1", CreatedAt: day,
	}))
	require.NoError(t, logs.MarkSent(ctx, "dlv_1", "SM123", day))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryLogStore_MarkFailedRequiresPending(t *testing.T) {
	db, mock := mockDB(t)
	mock.ExpectExec(`UPDATE delivery_logs SET status = 'failed'`).
		WithArgs("dlv_1", "TRANSPORT_FAILURE", day).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewDeliveryLogStore(db).MarkFailed(context.Background(), "dlv_1", "TRANSPORT_FAILURE", day)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not pending")
}

func TestDeliveryLogStore_Get(t *testing.T) {
	db, mock := mockDB(t)
	completed := day.Add(time.Second)
	mock.ExpectQuery(`FROM delivery_logs WHERE id = \$1`).
		WithArgs("dlv_1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "template_id", "recipient_id", "channel", "status", "to_address", "resolved_subject", "resolved_body",
			"external_reference", "debit_transaction_id", "error", "created_at", "completed_at",
		}).AddRow("dlv_1", "welcome", "stu-1", "email", "failed", "ann@example.com", "Hi", "Body",
			nil, "ltx_1", "bounced", day, completed))

	l, err := NewDeliveryLogStore(db).Get(context.Background(), "dlv_1")
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryFailed, l.Status)
	assert.Empty(t, l.ExternalReference)
	assert.Equal(t, "ltx_1", l.DebitTransactionID)
	require.NotNil(t, l.CompletedAt)
	assert.True(t, completed.Equal(*l.CompletedAt))
}

func TestDeliveryLogStore_GetMissing(t *testing.T) {
	db, mock := mockDB(t)
	mock.ExpectQuery(`FROM delivery_logs`).WithArgs("dlv_x").WillReturnError(sql.ErrNoRows)

	_, err := NewDeliveryLogStore(db).Get(context.Background(), "dlv_x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFiredStore(t *testing.T) {
	db, mock := mockDB(t)
	fired := NewFiredStore(db)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM milestone_fired_records`).
		WithArgs("stu-1", "renewal_45", "2026-11-29").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`INSERT INTO milestone_fired_records .* ON CONFLICT \(entity_id, milestone_type, anchor_snapshot\) DO NOTHING`).
		WithArgs(sqlmock.AnyArg(), "stu-1", "renewal_45", "2026-11-29", day).
		WillReturnResult(sqlmock.NewResult(1, 1))

	exists, err := fired.Exists(ctx, "stu-1", "renewal_45", "2026-11-29")
	require.NoError(t, err)
	assert.False(t, exists)
	require.NoError(t, fired.Record(ctx, "stu-1", "renewal_45", "2026-11-29", day))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntityStore_Student(t *testing.T) {
	db, mock := mockDB(t)
	expires := day.AddDate(0, 0, 45)
	mock.ExpectQuery(`FROM students WHERE id = \$1`).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "first_name", "last_name", "email", "phone", "license_number", "license_expiration", "certification_issued", "instructor_id",
		}).AddRow("stu-1", "Ann", "Lee", "ann@example.com", "6502530000", "CPR-9", expires, nil, "ins-1"))

	s, err := NewEntityStore(db).Student(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, "CPR-9", s.LicenseNumber)
	require.NotNil(t, s.LicenseExpiration)
	assert.True(t, expires.Equal(*s.LicenseExpiration))
	assert.Nil(t, s.CertificationIssued)
	assert.Equal(t, "ins-1", s.InstructorID)
}

func TestEntityStore_NotFoundAndFailure(t *testing.T) {
	db, mock := mockDB(t)
	entities := NewEntityStore(db)
	ctx := context.Background()

	mock.ExpectQuery(`FROM courses`).WithArgs("c-1").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`FROM course_schedules`).WithArgs("sch-1").WillReturnError(errors.New("connection reset"))

	_, err := entities.Course(ctx, "c-1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = entities.Schedule(ctx, "sch-1")
	assert.Equal(t, apperrors.ErrCodeQueryExecutionFailed, apperrors.CodeOf(err))
}

func TestRecipientStore_Get(t *testing.T) {
	db, mock := mockDB(t)
	mock.ExpectQuery(`FROM students WHERE id = \$1\s+UNION ALL\s+SELECT .* FROM instructors WHERE id = \$1`).
		WithArgs("ins-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "first_name", "last_name", "email", "phone"}).
			AddRow("ins-1", "Bo", "Ray", "bo@example.com", "6502530001"))

	r, err := NewRecipientStore(db).Get(context.Background(), "ins-1")
	require.NoError(t, err)
	assert.Equal(t, "bo@example.com", r.Email)
}

func TestAnchorSource_LicenseExpirations(t *testing.T) {
	db, mock := mockDB(t)
	from, to := day, day.AddDate(0, 0, 60)
	mock.ExpectQuery(`WHERE s.license_expiration IS NOT NULL AND s.license_expiration BETWEEN \$1 AND \$2`).
		WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows([]string{"id", "license_expiration", "instructor_id", "credit_account_id"}).
			AddRow("stu-1", day.AddDate(0, 0, 45), "ins-1", "acct-1").
			AddRow("stu-2", day.AddDate(0, 0, 50), "", ""))

	got, err := LicenseExpirations(db).Anchored(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "acct-1", got[0].AccountID)
	assert.Equal(t, models.EntityRefs{StudentID: "stu-1", InstructorID: "ins-1"}, got[0].Refs)
	assert.Equal(t, "stu-2", got[1].RecipientID)
	assert.Empty(t, got[1].AccountID)
}

func TestActiveRenewalEnrollment(t *testing.T) {
	db, mock := mockDB(t)
	s := NewActiveRenewalEnrollment(db)
	s.now = func() time.Time { return day }
	entity := models.AnchoredEntity{ID: "stu-1", Refs: models.EntityRefs{StudentID: "stu-1"}}
	rule := models.MilestoneRule{Type: "renewal_45", OffsetDays: -45}

	mock.ExpectQuery(`FROM enrollments e`).WithArgs("stu-1", day).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("enr-7"))
	mock.ExpectQuery(`FROM enrollments e`).WithArgs("stu-1", day).
		WillReturnError(sql.ErrNoRows)

	suppressed, reason, err := s.Suppressed(context.Background(), entity, rule)
	require.NoError(t, err)
	assert.True(t, suppressed)
	assert.Contains(t, reason, "enr-7")

	suppressed, _, err = s.Suppressed(context.Background(), entity, rule)
	require.NoError(t, err)
	assert.False(t, suppressed)
}
