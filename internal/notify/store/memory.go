package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "course-notify/internal/common/errors"
	"course-notify/internal/models"

	"github.com/google/uuid"
)

// Memory is an in-process stand-in for the Postgres stores, used by tests
// and local runs. Each accessor returns a view with the same method set as
// its Postgres counterpart.
type Memory struct {
	mu           sync.Mutex
	templates    map[string]models.Template
	students     map[string]models.Student
	instructors  map[string]models.Instructor
	courses      map[string]models.Course
	schedules    map[string]models.Schedule
	enrollments  map[string]models.Enrollment
	appointments map[string]models.Appointment
	logs         map[string]models.DeliveryLog
	logOrder     []string
	fired        map[firedKey]models.MilestoneFiredRecord
	now          func() time.Time
}

type firedKey struct {
	entityID, milestoneType, anchorSnapshot string
}

func NewMemory() *Memory {
	return &Memory{
		templates:    make(map[string]models.Template),
		students:     make(map[string]models.Student),
		instructors:  make(map[string]models.Instructor),
		courses:      make(map[string]models.Course),
		schedules:    make(map[string]models.Schedule),
		enrollments:  make(map[string]models.Enrollment),
		appointments: make(map[string]models.Appointment),
		logs:         make(map[string]models.DeliveryLog),
		fired:        make(map[firedKey]models.MilestoneFiredRecord),
		now:          time.Now,
	}
}

// SetClock replaces the clock used by the suppressor.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) PutTemplate(t models.Template) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[t.ID] = t
}

func (m *Memory) PutStudent(s models.Student) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[s.ID] = s
}

func (m *Memory) PutInstructor(i models.Instructor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instructors[i.ID] = i
}

func (m *Memory) PutCourse(c models.Course) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.courses[c.ID] = c
}

func (m *Memory) PutSchedule(s models.Schedule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[s.ID] = s
}

func (m *Memory) PutEnrollment(e models.Enrollment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enrollments[e.ID] = e
}

func (m *Memory) PutAppointment(a models.Appointment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appointments[a.ID] = a
}

func (m *Memory) Student(_ context.Context, id string) (*models.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[id]
	if !ok {
		return nil, fmt.Errorf("student %s: %w", id, ErrNotFound)
	}
	return &s, nil
}

func (m *Memory) Instructor(_ context.Context, id string) (*models.Instructor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.instructors[id]
	if !ok {
		return nil, fmt.Errorf("instructor %s: %w", id, ErrNotFound)
	}
	return &i, nil
}

func (m *Memory) Course(_ context.Context, id string) (*models.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courses[id]
	if !ok {
		return nil, fmt.Errorf("course %s: %w", id, ErrNotFound)
	}
	return &c, nil
}

func (m *Memory) Schedule(_ context.Context, id string) (*models.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return nil, fmt.Errorf("schedule %s: %w", id, ErrNotFound)
	}
	return &s, nil
}

func (m *Memory) Enrollment(_ context.Context, id string) (*models.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[id]
	if !ok {
		return nil, fmt.Errorf("enrollment %s: %w", id, ErrNotFound)
	}
	return &e, nil
}

func (m *Memory) Appointment(_ context.Context, id string) (*models.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, fmt.Errorf("appointment %s: %w", id, ErrNotFound)
	}
	return &a, nil
}

// MemoryTemplates is the template view of a Memory.
type MemoryTemplates struct{ m *Memory }

func (m *Memory) Templates() MemoryTemplates { return MemoryTemplates{m} }

func (v MemoryTemplates) Get(_ context.Context, id string) (*models.Template, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	t, ok := v.m.templates[id]
	if !ok {
		return nil, apperrors.NewTemplateNotFoundError(id)
	}
	return &t, nil
}

// MemoryRecipients is the recipient view of a Memory.
type MemoryRecipients struct{ m *Memory }

func (m *Memory) Recipients() MemoryRecipients { return MemoryRecipients{m} }

func (v MemoryRecipients) Get(_ context.Context, id string) (*models.Recipient, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	if s, ok := v.m.students[id]; ok {
		return &models.Recipient{ID: s.ID, FirstName: s.FirstName, LastName: s.LastName, Email: s.Email, Phone: s.Phone}, nil
	}
	if i, ok := v.m.instructors[id]; ok {
		return &models.Recipient{ID: i.ID, FirstName: i.FirstName, LastName: i.LastName, Email: i.Email, Phone: i.Phone}, nil
	}
	return nil, fmt.Errorf("recipient %s: %w", id, ErrNotFound)
}

// MemoryDeliveryLogs is the delivery log view of a Memory.
type MemoryDeliveryLogs struct{ m *Memory }

func (m *Memory) DeliveryLogs() MemoryDeliveryLogs { return MemoryDeliveryLogs{m} }

func (v MemoryDeliveryLogs) Create(_ context.Context, l *models.DeliveryLog) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	if _, exists := v.m.logs[l.ID]; exists {
		return apperrors.NewDatabaseInsertFailedError(fmt.Errorf("delivery %s already exists", l.ID))
	}
	v.m.logs[l.ID] = *l
	v.m.logOrder = append(v.m.logOrder, l.ID)
	return nil
}

func (v MemoryDeliveryLogs) MarkSent(_ context.Context, id, externalReference string, completedAt time.Time) error {
	return v.transition(id, func(l *models.DeliveryLog) {
		l.Status = models.DeliverySent
		l.ExternalReference = externalReference
		l.CompletedAt = &completedAt
	})
}

func (v MemoryDeliveryLogs) MarkFailed(_ context.Context, id, reason string, completedAt time.Time) error {
	return v.transition(id, func(l *models.DeliveryLog) {
		l.Status = models.DeliveryFailed
		l.Error = reason
		l.CompletedAt = &completedAt
	})
}

func (v MemoryDeliveryLogs) transition(id string, apply func(*models.DeliveryLog)) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	l, ok := v.m.logs[id]
	if !ok {
		return fmt.Errorf("delivery %s: %w", id, ErrNotFound)
	}
	if l.Status != models.DeliveryPending {
		return fmt.Errorf("delivery %s is %s, not pending", id, l.Status)
	}
	apply(&l)
	v.m.logs[id] = l
	return nil
}

func (v MemoryDeliveryLogs) Get(_ context.Context, id string) (*models.DeliveryLog, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	l, ok := v.m.logs[id]
	if !ok {
		return nil, fmt.Errorf("delivery %s: %w", id, ErrNotFound)
	}
	return &l, nil
}

// All returns every delivery log in creation order.
func (v MemoryDeliveryLogs) All() []models.DeliveryLog {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	out := make([]models.DeliveryLog, 0, len(v.m.logOrder))
	for _, id := range v.m.logOrder {
		out = append(out, v.m.logs[id])
	}
	return out
}

// MemoryFired is the milestone fired-record view of a Memory.
type MemoryFired struct{ m *Memory }

func (m *Memory) Fired() MemoryFired { return MemoryFired{m} }

func (v MemoryFired) Exists(_ context.Context, entityID, milestoneType, anchorSnapshot string) (bool, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	_, ok := v.m.fired[firedKey{entityID, milestoneType, anchorSnapshot}]
	return ok, nil
}

func (v MemoryFired) Record(_ context.Context, entityID, milestoneType, anchorSnapshot string, firedAt time.Time) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	key := firedKey{entityID, milestoneType, anchorSnapshot}
	if _, ok := v.m.fired[key]; ok {
		return nil
	}
	v.m.fired[key] = models.MilestoneFiredRecord{
		ID:             uuid.NewString(),
		EntityID:       entityID,
		MilestoneType:  milestoneType,
		AnchorSnapshot: anchorSnapshot,
		FiredAt:        firedAt,
	}
	return nil
}

// Records returns every fired record ordered by entity, type and snapshot.
func (v MemoryFired) Records() []models.MilestoneFiredRecord {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	out := make([]models.MilestoneFiredRecord, 0, len(v.m.fired))
	for _, r := range v.m.fired {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.EntityID != b.EntityID {
			return a.EntityID < b.EntityID
		}
		if a.MilestoneType != b.MilestoneType {
			return a.MilestoneType < b.MilestoneType
		}
		return a.AnchorSnapshot < b.AnchorSnapshot
	})
	return out
}

// MemoryAnchorSource mirrors AnchorSource over the in-memory students.
type MemoryAnchorSource struct {
	m      *Memory
	anchor func(models.Student) *time.Time
}

func (m *Memory) LicenseExpirations() MemoryAnchorSource {
	return MemoryAnchorSource{m: m, anchor: func(s models.Student) *time.Time { return s.LicenseExpiration }}
}

func (m *Memory) CertificationIssues() MemoryAnchorSource {
	return MemoryAnchorSource{m: m, anchor: func(s models.Student) *time.Time { return s.CertificationIssued }}
}

func (v MemoryAnchorSource) Anchored(_ context.Context, from, to time.Time) ([]models.AnchoredEntity, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()

	var out []models.AnchoredEntity
	for _, s := range v.m.students {
		at := v.anchor(s)
		if at == nil || at.Before(from) || at.After(to) {
			continue
		}
		e := models.AnchoredEntity{
			ID:          s.ID,
			Anchor:      *at,
			RecipientID: s.ID,
			Refs:        models.EntityRefs{StudentID: s.ID, InstructorID: s.InstructorID},
		}
		if in, ok := v.m.instructors[s.InstructorID]; ok {
			e.AccountID = in.CreditAccountID
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Anchor.Equal(out[j].Anchor) {
			return out[i].Anchor.Before(out[j].Anchor)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// MemoryRenewalSuppressor mirrors ActiveRenewalEnrollment.
type MemoryRenewalSuppressor struct{ m *Memory }

func (m *Memory) ActiveRenewalEnrollment() MemoryRenewalSuppressor {
	return MemoryRenewalSuppressor{m}
}

func (v MemoryRenewalSuppressor) Suppressed(_ context.Context, entity models.AnchoredEntity, _ models.MilestoneRule) (bool, string, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()

	now := v.m.now().UTC()
	for _, e := range v.m.enrollments {
		if e.StudentID != entity.Refs.StudentID || e.Status != "confirmed" {
			continue
		}
		if sc, ok := v.m.schedules[e.ScheduleID]; ok && !sc.StartsAt.Before(now) {
			return true, "already enrolled in upcoming schedule " + e.ID, nil
		}
	}
	return false, "", nil
}
