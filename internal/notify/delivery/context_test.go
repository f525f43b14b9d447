package delivery

import (
	"context"
	"testing"
	"time"

	apperrors "course-notify/internal/common/errors"
	"course-notify/internal/models"
	"course-notify/internal/notify/store"
	"course-notify/internal/notify/template"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededEntities() *store.Memory {
	mem := store.NewMemory()
	expires := time.Date(2026, 11, 29, 0, 0, 0, 0, time.UTC)
	mem.PutInstructor(models.Instructor{ID: "ins-1", FirstName: "Sam", LastName: "Ruiz", BusinessName: "Harbor Safety"})
	mem.PutStudent(models.Student{ID: "stu-1", FirstName: "Ada", LastName: "Park", LicenseExpiration: &expires})
	mem.PutCourse(models.Course{ID: "crs-1", Name: "Boater Safety", PriceCents: 12950, InstructorID: "ins-1"})
	mem.PutSchedule(models.Schedule{ID: "sch-1", CourseID: "crs-1", Location: "Dock 4",
		StartsAt: time.Date(2026, 11, 2, 14, 30, 0, 0, time.UTC), EndsAt: time.Date(2026, 11, 2, 17, 0, 0, 0, time.UTC)})
	mem.PutEnrollment(models.Enrollment{ID: "enr-1", StudentID: "stu-1", ScheduleID: "sch-1", Status: "confirmed"})
	mem.PutAppointment(models.Appointment{ID: "apt-1", StudentID: "stu-1", InstructorID: "ins-1",
		StartsAt: time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC), Location: "Slip 12"})
	return mem
}

func newLoader(mem *store.Memory) *ContextLoader {
	l := NewContextLoader(mem, template.CompanyInfo{Name: "Harbor Safety Training"}, time.UTC)
	l.now = func() time.Time { return time.Date(2026, 10, 15, 7, 0, 0, 0, time.UTC) }
	return l
}

func TestContextLoader_FollowsEnrollment(t *testing.T) {
	ctx, err := newLoader(seededEntities()).Load(context.Background(), models.EntityRefs{EnrollmentID: "enr-1"}, nil)
	require.NoError(t, err)

	want := "Ada, Boater Safety starts November 2, 2026 at 2:30 PM with Sam Ruiz (Harbor Safety Training)"
	got := template.Resolve("{{firstName}}, {{courseName}} starts {{startDate}} at {{schedule.startTime}} with {{instructor.fullName}} ({{companyName}})", ctx)
	assert.Equal(t, want, got)

	assert.NotNil(t, ctx.Section("enrollment"))
	assert.Nil(t, ctx.Section("appointment"))
}

func TestContextLoader_AppointmentAndExtraSections(t *testing.T) {
	extra := map[string]map[string]interface{}{"milestone": {"daysUntil": 45}}
	ctx, err := newLoader(seededEntities()).Load(context.Background(), models.EntityRefs{AppointmentID: "apt-1"}, extra)
	require.NoError(t, err)

	assert.Equal(t, "Ada meets Sam at Slip 12 in 45 days",
		template.Resolve("{{student.firstName}} meets {{instructor.firstName}} at {{appointment.location}} in {{milestone.daysUntil}} days", ctx))
	assert.Nil(t, ctx.Section("course"))
}

func TestContextLoader_EmptyRefsGiveSystemOnly(t *testing.T) {
	ctx, err := newLoader(store.NewMemory()).Load(context.Background(), models.EntityRefs{}, nil)
	require.NoError(t, err)
	assert.Len(t, ctx, 1)
	assert.NotNil(t, ctx.Section("system"))
}

func TestContextLoader_MissingReferenceIsUnresolved(t *testing.T) {
	tests := []struct {
		name string
		refs models.EntityRefs
	}{
		{"direct", models.EntityRefs{StudentID: "ghost"}},
		{"followed", models.EntityRefs{ScheduleID: "sch-orphan"}},
	}

	mem := seededEntities()
	mem.PutSchedule(models.Schedule{ID: "sch-orphan", CourseID: "crs-missing"})
	loader := newLoader(mem)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loader.Load(context.Background(), tt.refs, nil)
			assert.Equal(t, apperrors.ErrCodeUnresolvedContext, apperrors.CodeOf(err))
			assert.ErrorIs(t, err, store.ErrNotFound)
		})
	}
}
