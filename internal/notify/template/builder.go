package template

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"course-notify/internal/models"
)

// CompanyInfo is exposed to templates as the "system" section.
type CompanyInfo struct {
	Name         string
	SupportEmail string
	Phone        string
	Website      string
	Address      string
}

// Builder assembles a VariableContext from entity records. Each With* call
// replaces its section.
type Builder struct {
	ctx VariableContext
	loc *time.Location
}

// NewBuilder starts a context whose system section carries company info and
// the current date in loc.
func NewBuilder(company CompanyInfo, now time.Time, loc *time.Location) *Builder {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	return &Builder{
		loc: loc,
		ctx: VariableContext{
			"system": map[string]interface{}{
				"companyName":  company.Name,
				"supportEmail": company.SupportEmail,
				"supportPhone": company.Phone,
				"website":      company.Website,
				"address":      company.Address,
				"currentDate":  local.Format("January 2, 2006"),
				"currentYear":  strconv.Itoa(local.Year()),
			},
		},
	}
}

func (b *Builder) WithStudent(s *models.Student) *Builder {
	if s == nil {
		return b
	}
	section := map[string]interface{}{
		"id":            s.ID,
		"firstName":     s.FirstName,
		"lastName":      s.LastName,
		"fullName":      fullName(s.FirstName, s.LastName),
		"email":         s.Email,
		"phone":         s.Phone,
		"licenseNumber": s.LicenseNumber,
	}
	if s.LicenseExpiration != nil {
		section["licenseExpiration"] = calendarDate(*s.LicenseExpiration)
	}
	if s.CertificationIssued != nil {
		section["certificationIssued"] = calendarDate(*s.CertificationIssued)
	}
	b.ctx["student"] = section
	return b
}

func (b *Builder) WithInstructor(i *models.Instructor) *Builder {
	if i == nil {
		return b
	}
	b.ctx["instructor"] = map[string]interface{}{
		"id":           i.ID,
		"firstName":    i.FirstName,
		"lastName":     i.LastName,
		"fullName":     fullName(i.FirstName, i.LastName),
		"email":        i.Email,
		"phone":        i.Phone,
		"businessName": i.BusinessName,
	}
	return b
}

func (b *Builder) WithCourse(c *models.Course) *Builder {
	if c == nil {
		return b
	}
	b.ctx["course"] = map[string]interface{}{
		"id":          c.ID,
		"name":        c.Name,
		"description": c.Description,
		"price":       formatCents(c.PriceCents),
	}
	return b
}

func (b *Builder) WithSchedule(s *models.Schedule) *Builder {
	if s == nil {
		return b
	}
	b.ctx["schedule"] = map[string]interface{}{
		"id":        s.ID,
		"startDate": b.date(s.StartsAt),
		"startTime": b.clock(s.StartsAt),
		"endTime":   b.clock(s.EndsAt),
		"location":  s.Location,
	}
	return b
}

func (b *Builder) WithEnrollment(e *models.Enrollment) *Builder {
	if e == nil {
		return b
	}
	b.ctx["enrollment"] = map[string]interface{}{
		"id":         e.ID,
		"status":     e.Status,
		"enrolledOn": b.date(e.CreatedAt),
	}
	return b
}

func (b *Builder) WithAppointment(a *models.Appointment) *Builder {
	if a == nil {
		return b
	}
	b.ctx["appointment"] = map[string]interface{}{
		"id":       a.ID,
		"date":     b.date(a.StartsAt),
		"time":     b.clock(a.StartsAt),
		"location": a.Location,
		"notes":    a.Notes,
	}
	return b
}

// WithSection sets an arbitrary section, for caller-supplied variables.
func (b *Builder) WithSection(name string, fields map[string]interface{}) *Builder {
	if fields != nil {
		b.ctx[name] = fields
	}
	return b
}

func (b *Builder) Build() VariableContext {
	return b.ctx.Clone()
}

func (b *Builder) date(t time.Time) string {
	return t.In(b.loc).Format("January 2, 2006")
}

// calendarDate formats a date-only value without moving it into the
// builder's zone.
func calendarDate(t time.Time) string {
	return t.Format("January 2, 2006")
}

func (b *Builder) clock(t time.Time) string {
	return t.In(b.loc).Format("3:04 PM")
}

func fullName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
