package template

import "strings"

// AliasTable maps legacy bare placeholder names to dotted context paths.
type AliasTable map[string]string

// DefaultAliases returns the flat names used by templates written before
// variables were grouped into sections.
func DefaultAliases() AliasTable {
	return AliasTable{
		"firstName":       "student.firstName",
		"lastName":        "student.lastName",
		"fullName":        "student.fullName",
		"studentName":     "student.fullName",
		"email":           "student.email",
		"phone":           "student.phone",
		"licenseNumber":   "student.licenseNumber",
		"expirationDate":  "student.licenseExpiration",
		"courseName":      "course.name",
		"coursePrice":     "course.price",
		"startDate":       "schedule.startDate",
		"startTime":       "schedule.startTime",
		"endTime":         "schedule.endTime",
		"location":        "schedule.location",
		"enrollmentId":    "enrollment.id",
		"instructorName":  "instructor.fullName",
		"instructorEmail": "instructor.email",
		"instructorPhone": "instructor.phone",
		"businessName":    "instructor.businessName",
		"appointmentDate": "appointment.date",
		"appointmentTime": "appointment.time",
		"companyName":     "system.companyName",
		"supportEmail":    "system.supportEmail",
		"supportPhone":    "system.supportPhone",
		"website":         "system.website",
		"currentYear":     "system.currentYear",
	}
}

// Merge returns a new table with overrides applied on top of t.
func (t AliasTable) Merge(overrides map[string]string) AliasTable {
	out := make(AliasTable, len(t)+len(overrides))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// Invalid lists aliases whose name is dotted or whose target is not.
func (t AliasTable) Invalid() []string {
	var bad []string
	for name, target := range t {
		if strings.Contains(name, ".") || !strings.Contains(target, ".") {
			bad = append(bad, name)
		}
	}
	return bad
}
