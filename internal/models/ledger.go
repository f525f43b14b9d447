package models

import "time"

// CreditAccount holds the sendable-unit balance of one billing principal.
type CreditAccount struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Balance   int64     `json:"balance"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type TransactionKind string

const (
	TransactionDebit  TransactionKind = "debit"
	TransactionRefund TransactionKind = "refund"
)

// LedgerTransaction is append-only. BalanceAfter is the account balance
// committed together with this row.
type LedgerTransaction struct {
	ID                       string          `json:"id"`
	AccountID                string          `json:"accountId"`
	Amount                   int64           `json:"amount"`
	Kind                     TransactionKind `json:"kind"`
	Reason                   string          `json:"reason"`
	OriginatingTransactionID string          `json:"originatingTransactionId,omitempty"`
	LinkedDeliveryID         string          `json:"linkedDeliveryId,omitempty"`
	BalanceAfter             int64           `json:"balanceAfter"`
	CreatedAt                time.Time       `json:"createdAt"`
}
