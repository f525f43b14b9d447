package ledger

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"course-notify/internal/common/database"
	apperrors "course-notify/internal/common/errors"
	"course-notify/internal/models"
)

// PostgresStore keeps balances in credit_accounts and rows in
// ledger_transactions. Debits rely on a conditional UPDATE so concurrent
// callers serialise on the account row; refunds lock the originating debit.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const insertTransactionSQL = `INSERT INTO ledger_transactions
	(id, account_id, amount, kind, reason, originating_transaction_id, linked_delivery_id, balance_after, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

const selectTransactionColumns = `id, account_id, amount, kind, reason, originating_transaction_id, linked_delivery_id, balance_after, created_at`

func (s *PostgresStore) Debit(ctx context.Context, tx *models.LedgerTransaction) error {
	return database.WithTx(ctx, s.db, func(sqlTx *sql.Tx) error {
		var balance int64
		err := sqlTx.QueryRowContext(ctx,
			`UPDATE credit_accounts SET balance = balance - $2, updated_at = NOW() WHERE id = $1 AND balance >= $2 RETURNING balance`,
			tx.AccountID, tx.Amount,
		).Scan(&balance)

		if stderrors.Is(err, sql.ErrNoRows) {
			return s.debitRejection(ctx, sqlTx, tx)
		}
		if err != nil {
			return apperrors.NewQueryExecutionFailedError("debit credit_accounts", err)
		}

		tx.BalanceAfter = balance
		return insertTransaction(ctx, sqlTx, tx)
	})
}

// debitRejection tells a missing account apart from a short balance.
func (s *PostgresStore) debitRejection(ctx context.Context, sqlTx *sql.Tx, tx *models.LedgerTransaction) error {
	var balance int64
	err := sqlTx.QueryRowContext(ctx, `SELECT balance FROM credit_accounts WHERE id = $1`, tx.AccountID).Scan(&balance)
	if stderrors.Is(err, sql.ErrNoRows) {
		return apperrors.NewAccountNotFoundError(tx.AccountID)
	}
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("select credit_accounts", err)
	}
	return apperrors.NewInsufficientBalanceError(tx.AccountID, balance, tx.Amount)
}

func (s *PostgresStore) Refund(ctx context.Context, tx *models.LedgerTransaction) (*models.LedgerTransaction, bool, error) {
	var (
		result  *models.LedgerTransaction
		created bool
	)

	err := database.WithTx(ctx, s.db, func(sqlTx *sql.Tx) error {
		var (
			originAccount string
			originAmount  int64
			originKind    string
		)
		err := sqlTx.QueryRowContext(ctx,
			`SELECT account_id, amount, kind FROM ledger_transactions WHERE id = $1 FOR UPDATE`,
			tx.OriginatingTransactionID,
		).Scan(&originAccount, &originAmount, &originKind)
		if stderrors.Is(err, sql.ErrNoRows) {
			return apperrors.NewRefundInvalidError(fmt.Sprintf("transaction %s not found", tx.OriginatingTransactionID))
		}
		if err != nil {
			return apperrors.NewQueryExecutionFailedError("lock ledger_transactions", err)
		}
		if originKind != string(models.TransactionDebit) || originAccount != tx.AccountID {
			return apperrors.NewRefundInvalidError(fmt.Sprintf("transaction %s is not a debit of account %s", tx.OriginatingTransactionID, tx.AccountID))
		}

		prior, err := scanTransaction(sqlTx.QueryRowContext(ctx,
			`SELECT `+selectTransactionColumns+` FROM ledger_transactions WHERE originating_transaction_id = $1`,
			tx.OriginatingTransactionID,
		))
		if err == nil {
			result = prior
			return nil
		}
		if !stderrors.Is(err, sql.ErrNoRows) {
			return apperrors.NewQueryExecutionFailedError("select refund", err)
		}

		var balance int64
		err = sqlTx.QueryRowContext(ctx,
			`UPDATE credit_accounts SET balance = balance + $2, updated_at = NOW() WHERE id = $1 RETURNING balance`,
			tx.AccountID, originAmount,
		).Scan(&balance)
		if err != nil {
			return apperrors.NewQueryExecutionFailedError("credit credit_accounts", err)
		}

		tx.Amount = originAmount
		tx.BalanceAfter = balance
		if err := insertTransaction(ctx, sqlTx, tx); err != nil {
			return err
		}

		out := *tx
		result = &out
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

func insertTransaction(ctx context.Context, sqlTx *sql.Tx, tx *models.LedgerTransaction) error {
	_, err := sqlTx.ExecContext(ctx, insertTransactionSQL,
		tx.ID, tx.AccountID, tx.Amount, string(tx.Kind), tx.Reason,
		nullString(tx.OriginatingTransactionID), nullString(tx.LinkedDeliveryID),
		tx.BalanceAfter, tx.CreatedAt,
	)
	if err != nil {
		return apperrors.NewDatabaseInsertFailedError(err)
	}
	return nil
}

func (s *PostgresStore) LinkDelivery(ctx context.Context, txID, deliveryID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ledger_transactions SET linked_delivery_id = $2 WHERE id = $1`,
		txID, deliveryID,
	)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("link delivery", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("ledger transaction %s not found", txID)
	}
	return nil
}

func (s *PostgresStore) Balance(ctx context.Context, accountID string) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `SELECT balance FROM credit_accounts WHERE id = $1`, accountID).Scan(&balance)
	if stderrors.Is(err, sql.ErrNoRows) {
		return 0, apperrors.NewAccountNotFoundError(accountID)
	}
	if err != nil {
		return 0, apperrors.NewQueryExecutionFailedError("select credit_accounts", err)
	}
	return balance, nil
}

func (s *PostgresStore) Transactions(ctx context.Context, accountID string) ([]models.LedgerTransaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectTransactionColumns+` FROM ledger_transactions WHERE account_id = $1 ORDER BY created_at, id`,
		accountID,
	)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("select ledger_transactions", err)
	}
	defer rows.Close()

	var out []models.LedgerTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("scan ledger_transactions", err)
		}
		out = append(out, *tx)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*models.LedgerTransaction, error) {
	var (
		tx             models.LedgerTransaction
		kind           string
		originating    sql.NullString
		linkedDelivery sql.NullString
	)
	if err := row.Scan(&tx.ID, &tx.AccountID, &tx.Amount, &kind, &tx.Reason,
		&originating, &linkedDelivery, &tx.BalanceAfter, &tx.CreatedAt); err != nil {
		return nil, err
	}
	tx.Kind = models.TransactionKind(kind)
	tx.OriginatingTransactionID = originating.String
	tx.LinkedDeliveryID = linkedDelivery.String
	return &tx, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
