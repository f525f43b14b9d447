package delivery

import (
	"context"
	"time"

	apperrors "course-notify/internal/common/errors"
	"course-notify/internal/models"
	"course-notify/internal/notify/template"
)

type EntityStore interface {
	Student(ctx context.Context, id string) (*models.Student, error)
	Instructor(ctx context.Context, id string) (*models.Instructor, error)
	Course(ctx context.Context, id string) (*models.Course, error)
	Schedule(ctx context.Context, id string) (*models.Schedule, error)
	Enrollment(ctx context.Context, id string) (*models.Enrollment, error)
	Appointment(ctx context.Context, id string) (*models.Appointment, error)
}

// ContextLoader builds a VariableContext from entity ids. Related ids are
// followed: an enrollment brings its student and schedule, a schedule its
// course, a course its instructor.
type ContextLoader struct {
	entities EntityStore
	company  template.CompanyInfo
	loc      *time.Location
	now      func() time.Time
}

func NewContextLoader(entities EntityStore, company template.CompanyInfo, loc *time.Location) *ContextLoader {
	return &ContextLoader{entities: entities, company: company, loc: loc, now: time.Now}
}

// Load fails with UNRESOLVED_CONTEXT when a referenced entity cannot be
// loaded. extra sections are added verbatim after the entity sections.
func (l *ContextLoader) Load(ctx context.Context, refs models.EntityRefs, extra map[string]map[string]interface{}) (template.VariableContext, error) {
	b := template.NewBuilder(l.company, l.now(), l.loc)

	if refs.EnrollmentID != "" {
		e, err := l.entities.Enrollment(ctx, refs.EnrollmentID)
		if err != nil {
			return nil, apperrors.NewUnresolvedContextError("enrollment", refs.EnrollmentID, err)
		}
		b.WithEnrollment(e)
		refs.StudentID = firstNonEmpty(refs.StudentID, e.StudentID)
		refs.ScheduleID = firstNonEmpty(refs.ScheduleID, e.ScheduleID)
	}

	if refs.AppointmentID != "" {
		a, err := l.entities.Appointment(ctx, refs.AppointmentID)
		if err != nil {
			return nil, apperrors.NewUnresolvedContextError("appointment", refs.AppointmentID, err)
		}
		b.WithAppointment(a)
		refs.StudentID = firstNonEmpty(refs.StudentID, a.StudentID)
		refs.InstructorID = firstNonEmpty(refs.InstructorID, a.InstructorID)
	}

	if refs.ScheduleID != "" {
		s, err := l.entities.Schedule(ctx, refs.ScheduleID)
		if err != nil {
			return nil, apperrors.NewUnresolvedContextError("schedule", refs.ScheduleID, err)
		}
		b.WithSchedule(s)
		refs.CourseID = firstNonEmpty(refs.CourseID, s.CourseID)
	}

	if refs.CourseID != "" {
		c, err := l.entities.Course(ctx, refs.CourseID)
		if err != nil {
			return nil, apperrors.NewUnresolvedContextError("course", refs.CourseID, err)
		}
		b.WithCourse(c)
		refs.InstructorID = firstNonEmpty(refs.InstructorID, c.InstructorID)
	}

	if refs.StudentID != "" {
		s, err := l.entities.Student(ctx, refs.StudentID)
		if err != nil {
			return nil, apperrors.NewUnresolvedContextError("student", refs.StudentID, err)
		}
		b.WithStudent(s)
	}

	if refs.InstructorID != "" {
		i, err := l.entities.Instructor(ctx, refs.InstructorID)
		if err != nil {
			return nil, apperrors.NewUnresolvedContextError("instructor", refs.InstructorID, err)
		}
		b.WithInstructor(i)
	}

	for name, fields := range extra {
		b.WithSection(name, fields)
	}
	return b.Build(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
