package models

import "time"

type Student struct {
	ID                  string     `json:"id"`
	FirstName           string     `json:"firstName"`
	LastName            string     `json:"lastName"`
	Email               string     `json:"email"`
	Phone               string     `json:"phone"`
	LicenseNumber       string     `json:"licenseNumber,omitempty"`
	LicenseExpiration   *time.Time `json:"licenseExpiration,omitempty"`
	CertificationIssued *time.Time `json:"certificationIssued,omitempty"`
	InstructorID        string     `json:"instructorId,omitempty"`
}

type Instructor struct {
	ID              string `json:"id"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	BusinessName    string `json:"businessName,omitempty"`
	CreditAccountID string `json:"creditAccountId,omitempty"`
}
