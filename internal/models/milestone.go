package models

import "time"

// MilestoneRule fires when an entity's anchor date is OffsetDays away from
// today. Negative offsets are before the anchor.
type MilestoneRule struct {
	Type       string  `json:"type"`
	OffsetDays int     `json:"offsetDays"`
	Channel    Channel `json:"channel"`
	TemplateID string  `json:"templateId"`
}

// MilestoneFiredRecord is unique per (EntityID, MilestoneType, AnchorSnapshot).
type MilestoneFiredRecord struct {
	ID             string    `json:"id"`
	EntityID       string    `json:"entityId"`
	MilestoneType  string    `json:"milestoneType"`
	AnchorSnapshot string    `json:"anchorSnapshot"`
	FiredAt        time.Time `json:"firedAt"`
}

// EntityRefs names the entities whose fields are exposed to a template.
// Empty fields are absent from the context.
type EntityRefs struct {
	StudentID     string `json:"studentId,omitempty"`
	InstructorID  string `json:"instructorId,omitempty"`
	CourseID      string `json:"courseId,omitempty"`
	ScheduleID    string `json:"scheduleId,omitempty"`
	EnrollmentID  string `json:"enrollmentId,omitempty"`
	AppointmentID string `json:"appointmentId,omitempty"`
}

// AnchoredEntity is a tracked entity with the date its milestones are
// computed from. AccountID, when set, pays for metered channels.
type AnchoredEntity struct {
	ID          string     `json:"id"`
	Anchor      time.Time  `json:"anchor"`
	RecipientID string     `json:"recipientId"`
	AccountID   string     `json:"accountId,omitempty"`
	Refs        EntityRefs `json:"refs"`
}
