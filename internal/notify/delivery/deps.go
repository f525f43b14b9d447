package delivery

import (
	"context"
	"time"

	"course-notify/internal/models"
	"course-notify/internal/notify/transport"
)

type TemplateStore interface {
	Get(ctx context.Context, templateID string) (*models.Template, error)
}

type RecipientStore interface {
	Get(ctx context.Context, recipientID string) (*models.Recipient, error)
}

// DeliveryLogStore transitions rows out of pending; rows are never deleted.
type DeliveryLogStore interface {
	Create(ctx context.Context, log *models.DeliveryLog) error
	MarkSent(ctx context.Context, deliveryID, externalReference string, completedAt time.Time) error
	MarkFailed(ctx context.Context, deliveryID, reason string, completedAt time.Time) error
}

type Ledger interface {
	Debit(ctx context.Context, accountID string, amount int64, reason string) (*models.LedgerTransaction, error)
	Refund(ctx context.Context, accountID, originatingTxID, reason string) (*models.LedgerTransaction, error)
	LinkDelivery(ctx context.Context, txID, deliveryID string) error
}

type Transports interface {
	For(channel models.Channel) (transport.Transport, error)
}

// Auditor mirrors finished delivery logs somewhere searchable. It must not
// block or fail a send.
type Auditor interface {
	Record(ctx context.Context, log models.DeliveryLog)
}

type Deps struct {
	Templates  TemplateStore
	Recipients RecipientStore
	Logs       DeliveryLogStore
	Ledger     Ledger
	Transports Transports
	Auditor    Auditor // optional
}

type Options struct {
	MeteredChannels []models.Channel
	SendTimeout     time.Duration
	Workers         int
	RatePerSecond   float64 // 0 = unlimited
	DefaultRegion   string
}
