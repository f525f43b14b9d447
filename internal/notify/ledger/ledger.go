// Package ledger tracks per-account credit balances through append-only
// debit and refund transactions.
package ledger

import (
	"context"
	"time"

	apperrors "course-notify/internal/common/errors"
	"course-notify/internal/common/ids"
	"course-notify/internal/common/logger"
	"course-notify/internal/common/metrics"
	"course-notify/internal/common/observability"
	"course-notify/internal/models"

	"go.opentelemetry.io/otel/attribute"
)

type Ledger struct {
	store  Store
	logger logger.Logger
	obs    *observability.Observability
	now    func() time.Time
}

func New(store Store, log logger.Logger, obs *observability.Observability) *Ledger {
	return &Ledger{
		store:  store,
		logger: logger.ForComponent(log, "ledger"),
		obs:    obs,
		now:    time.Now,
	}
}

// Debit reserves amount units from the account. Two concurrent debits can
// never both spend the last unit; the loser gets INSUFFICIENT_BALANCE.
func (l *Ledger) Debit(ctx context.Context, accountID string, amount int64, reason string) (*models.LedgerTransaction, error) {
	if amount <= 0 {
		metrics.LedgerOperations.WithLabelValues("debit", "invalid").Inc()
		return nil, apperrors.NewInvalidAmountError(amount)
	}

	ctx, span := l.obs.StartSpan(ctx, "ledger.debit",
		attribute.String("account.id", accountID),
		attribute.Int64("amount", amount),
	)
	defer span.End()

	tx := &models.LedgerTransaction{
		ID:        ids.New(ids.LedgerTransaction),
		AccountID: accountID,
		Amount:    amount,
		Kind:      models.TransactionDebit,
		Reason:    reason,
		CreatedAt: l.now().UTC(),
	}

	if err := l.store.Debit(ctx, tx); err != nil {
		span.RecordError(err)
		metrics.LedgerOperations.WithLabelValues("debit", resultLabel(err)).Inc()
		l.logger.Warn("debit rejected", map[string]interface{}{
			"accountId": accountID,
			"amount":    amount,
			"reason":    reason,
			"error":     err,
		})
		return nil, err
	}

	metrics.LedgerOperations.WithLabelValues("debit", "ok").Inc()
	l.obs.RecordCredit(ctx, "debit", amount)
	l.logger.Info("credit debited", map[string]interface{}{
		"accountId":     accountID,
		"transactionId": tx.ID,
		"amount":        amount,
		"balanceAfter":  tx.BalanceAfter,
		"reason":        reason,
	})
	return tx, nil
}

// Refund restores a debit in full. Refunding the same debit again returns the
// earlier refund and leaves the balance untouched.
func (l *Ledger) Refund(ctx context.Context, accountID, originatingTxID, reason string) (*models.LedgerTransaction, error) {
	if originatingTxID == "" {
		return nil, apperrors.NewRefundInvalidError("originating transaction id is required")
	}

	ctx, span := l.obs.StartSpan(ctx, "ledger.refund",
		attribute.String("account.id", accountID),
		attribute.String("originating.id", originatingTxID),
	)
	defer span.End()

	tx := &models.LedgerTransaction{
		ID:                       ids.New(ids.LedgerTransaction),
		AccountID:                accountID,
		Kind:                     models.TransactionRefund,
		Reason:                   reason,
		OriginatingTransactionID: originatingTxID,
		CreatedAt:                l.now().UTC(),
	}

	refund, created, err := l.store.Refund(ctx, tx)
	if err != nil {
		span.RecordError(err)
		metrics.LedgerOperations.WithLabelValues("refund", resultLabel(err)).Inc()
		if apperrors.CodeOf(err) == apperrors.ErrCodeRefundInvalid {
			return nil, err
		}
		return nil, apperrors.NewRefundFailedError(originatingTxID, err)
	}

	if !created {
		metrics.LedgerOperations.WithLabelValues("refund", "replayed").Inc()
		l.logger.Info("refund already issued", map[string]interface{}{
			"accountId":                accountID,
			"originatingTransactionId": originatingTxID,
			"refundTransactionId":      refund.ID,
		})
		return refund, nil
	}

	metrics.LedgerOperations.WithLabelValues("refund", "ok").Inc()
	l.obs.RecordCredit(ctx, "refund", refund.Amount)
	l.logger.Info("credit refunded", map[string]interface{}{
		"accountId":                accountID,
		"transactionId":            refund.ID,
		"originatingTransactionId": originatingTxID,
		"amount":                   refund.Amount,
		"balanceAfter":             refund.BalanceAfter,
		"reason":                   reason,
	})
	return refund, nil
}

func (l *Ledger) LinkDelivery(ctx context.Context, txID, deliveryID string) error {
	return l.store.LinkDelivery(ctx, txID, deliveryID)
}

func (l *Ledger) Balance(ctx context.Context, accountID string) (int64, error) {
	return l.store.Balance(ctx, accountID)
}

// Transactions returns the account's ledger rows oldest first.
func (l *Ledger) Transactions(ctx context.Context, accountID string) ([]models.LedgerTransaction, error) {
	return l.store.Transactions(ctx, accountID)
}

func resultLabel(err error) string {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrCodeInsufficientBalance:
		return "insufficient"
	case apperrors.ErrCodeAccountNotFound:
		return "not_found"
	case apperrors.ErrCodeRefundInvalid:
		return "invalid"
	default:
		return "error"
	}
}
