package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "course-notify/internal/common/errors"
	"course-notify/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var transactionColumns = []string{"id", "account_id", "amount", "kind", "reason", "originating_transaction_id", "linked_delivery_id", "balance_after", "created_at"}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

func debitTx() *models.LedgerTransaction {
	return &models.LedgerTransaction{
		ID:        "ltx_1",
		AccountID: "acct-1",
		Amount:    1,
		Kind:      models.TransactionDebit,
		Reason:    "sms",
		CreatedAt: time.Date(2026, 10, 15, 7, 0, 0, 0, time.UTC),
	}
}

func TestPostgresStore_Debit(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE credit_accounts SET balance = balance - \$2, updated_at = NOW\(\) WHERE id = \$1 AND balance >= \$2 RETURNING balance`).
		WithArgs("acct-1", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(4))
	mock.ExpectExec(`INSERT INTO ledger_transactions`).
		WithArgs("ltx_1", "acct-1", int64(1), "debit", "sms", nil, nil, int64(4), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx := debitTx()
	require.NoError(t, store.Debit(context.Background(), tx))
	assert.Equal(t, int64(4), tx.BalanceAfter)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DebitRejected(t *testing.T) {
	tests := []struct {
		name     string
		balance  *sqlmock.Rows
		wantCode apperrors.ErrorCode
	}{
		{"insufficient", sqlmock.NewRows([]string{"balance"}).AddRow(0), apperrors.ErrCodeInsufficientBalance},
		{"missing account", sqlmock.NewRows([]string{"balance"}), apperrors.ErrCodeAccountNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)

			mock.ExpectBegin()
			mock.ExpectQuery(`UPDATE credit_accounts SET balance = balance - \$2`).
				WithArgs("acct-1", int64(1)).
				WillReturnRows(sqlmock.NewRows([]string{"balance"}))
			mock.ExpectQuery(`SELECT balance FROM credit_accounts WHERE id = \$1`).
				WithArgs("acct-1").
				WillReturnRows(tt.balance)
			mock.ExpectRollback()

			err := store.Debit(context.Background(), debitTx())
			assert.Equal(t, tt.wantCode, apperrors.CodeOf(err))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresStore_Refund(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT account_id, amount, kind FROM ledger_transactions WHERE id = \$1 FOR UPDATE`).
		WithArgs("ltx_1").
		WillReturnRows(sqlmock.NewRows([]string{"account_id", "amount", "kind"}).AddRow("acct-1", 1, "debit"))
	mock.ExpectQuery(`FROM ledger_transactions WHERE originating_transaction_id = \$1`).
		WithArgs("ltx_1").
		WillReturnRows(sqlmock.NewRows(transactionColumns))
	mock.ExpectQuery(`UPDATE credit_accounts SET balance = balance \+ \$2, updated_at = NOW\(\) WHERE id = \$1 RETURNING balance`).
		WithArgs("acct-1", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(1))
	mock.ExpectExec(`INSERT INTO ledger_transactions`).
		WithArgs("ltx_2", "acct-1", int64(1), "refund", "transport failed", "ltx_1", nil, int64(1), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	refund, created, err := store.Refund(context.Background(), &models.LedgerTransaction{
		ID:                       "ltx_2",
		AccountID:                "acct-1",
		Kind:                     models.TransactionRefund,
		Reason:                   "transport failed",
		OriginatingTransactionID: "ltx_1",
		CreatedAt:                time.Now(),
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(1), refund.Amount)
	assert.Equal(t, int64(1), refund.BalanceAfter)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RefundReturnsPrior(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2026, 10, 15, 7, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT account_id, amount, kind FROM ledger_transactions WHERE id = \$1 FOR UPDATE`).
		WithArgs("ltx_1").
		WillReturnRows(sqlmock.NewRows([]string{"account_id", "amount", "kind"}).AddRow("acct-1", 1, "debit"))
	mock.ExpectQuery(`FROM ledger_transactions WHERE originating_transaction_id = \$1`).
		WithArgs("ltx_1").
		WillReturnRows(sqlmock.NewRows(transactionColumns).
			AddRow("ltx_2", "acct-1", 1, "refund", "transport failed", "ltx_1", nil, 1, created))
	mock.ExpectCommit()

	refund, wasCreated, err := store.Refund(context.Background(), &models.LedgerTransaction{
		ID:                       "ltx_3",
		AccountID:                "acct-1",
		OriginatingTransactionID: "ltx_1",
	})
	require.NoError(t, err)
	assert.False(t, wasCreated)
	assert.Equal(t, "ltx_2", refund.ID)
	assert.Equal(t, "", refund.LinkedDeliveryID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RefundInvalid(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("ltx_9").
		WillReturnRows(sqlmock.NewRows([]string{"account_id", "amount", "kind"}).AddRow("acct-1", 1, "refund"))
	mock.ExpectRollback()

	_, _, err := store.Refund(context.Background(), &models.LedgerTransaction{
		ID: "ltx_10", AccountID: "acct-1", OriginatingTransactionID: "ltx_9",
	})
	assert.Equal(t, apperrors.ErrCodeRefundInvalid, apperrors.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DebitInsertFailureRollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE credit_accounts`).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO ledger_transactions`).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.Debit(context.Background(), debitTx())
	assert.Equal(t, apperrors.ErrCodeDatabaseInsertFailed, apperrors.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_BalanceAndLink(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT balance FROM credit_accounts WHERE id = \$1`).
		WithArgs("acct-1").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(7))
	mock.ExpectExec(`UPDATE ledger_transactions SET linked_delivery_id = \$2 WHERE id = \$1`).
		WithArgs("ltx_1", "dlv_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE ledger_transactions SET linked_delivery_id`).
		WithArgs("ltx_x", "dlv_1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	balance, err := store.Balance(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), balance)

	assert.NoError(t, store.LinkDelivery(context.Background(), "ltx_1", "dlv_1"))
	assert.Error(t, store.LinkDelivery(context.Background(), "ltx_x", "dlv_1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
