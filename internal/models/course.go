package models

import "time"

type Course struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	PriceCents   int64  `json:"priceCents"`
	InstructorID string `json:"instructorId"`
}

type Schedule struct {
	ID       string    `json:"id"`
	CourseID string    `json:"courseId"`
	StartsAt time.Time `json:"startsAt"`
	EndsAt   time.Time `json:"endsAt"`
	Location string    `json:"location"`
}

type Enrollment struct {
	ID         string    `json:"id"`
	StudentID  string    `json:"studentId"`
	ScheduleID string    `json:"scheduleId"`
	Status     string    `json:"status"` // "confirmed", "cancelled", "completed"
	CreatedAt  time.Time `json:"createdAt"`
}

type Appointment struct {
	ID           string    `json:"id"`
	StudentID    string    `json:"studentId"`
	InstructorID string    `json:"instructorId"`
	StartsAt     time.Time `json:"startsAt"`
	Location     string    `json:"location"`
	Notes        string    `json:"notes,omitempty"`
}
