// internal/models/notification.go
package models

import "time"

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Valid reports whether c is a supported delivery channel.
func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelSMS
}

// Template is immutable once referenced by a delivery log. Edits are stored
// as a new template row.
type Template struct {
	ID        string    `json:"id"`
	Channel   Channel   `json:"channel"`
	Subject   string    `json:"subject,omitempty"` // email only
	Body      string    `json:"body"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// DeliveryLog is one row per (template, recipient, attempt). Rows are only
// ever transitioned out of pending, never deleted.
type DeliveryLog struct {
	ID                 string         `json:"id"`
	TemplateID         string         `json:"templateId"`
	RecipientID        string         `json:"recipientId"`
	Channel            Channel        `json:"channel"`
	Status             DeliveryStatus `json:"status"`
	ToAddress          string         `json:"toAddress"`
	ResolvedSubject    string         `json:"resolvedSubject,omitempty"`
	ResolvedBody       string         `json:"resolvedBody"`
	ExternalReference  string         `json:"externalReference,omitempty"`
	DebitTransactionID string         `json:"debitTransactionId,omitempty"`
	Error              string         `json:"error,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	CompletedAt        *time.Time     `json:"completedAt,omitempty"`
}

// Recipient is the addressable view of a person the engine can notify.
type Recipient struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// Address returns the recipient's address for channel.
func (r Recipient) Address(channel Channel) string {
	switch channel {
	case ChannelEmail:
		return r.Email
	case ChannelSMS:
		return r.Phone
	default:
		return ""
	}
}
