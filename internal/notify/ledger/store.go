package ledger

import (
	"context"

	"course-notify/internal/models"
)

// Store persists balances and their ledger rows. Every balance change must be
// committed in the same atomic unit as exactly one ledger row.
type Store interface {
	// Debit decrements the account by tx.Amount if the balance covers it and
	// appends tx, filling BalanceAfter. Fails with INSUFFICIENT_BALANCE or
	// ACCOUNT_NOT_FOUND without changing anything.
	Debit(ctx context.Context, tx *models.LedgerTransaction) error

	// Refund credits back the debit named by tx.OriginatingTransactionID and
	// appends tx. When that debit was already refunded the prior refund is
	// returned with created=false.
	Refund(ctx context.Context, tx *models.LedgerTransaction) (refund *models.LedgerTransaction, created bool, err error)

	LinkDelivery(ctx context.Context, txID, deliveryID string) error
	Balance(ctx context.Context, accountID string) (int64, error)
	Transactions(ctx context.Context, accountID string) ([]models.LedgerTransaction, error)
}
