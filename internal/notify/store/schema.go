// Package store persists templates, deliveries and milestone records in
// PostgreSQL and reads the course entities that carry anchor dates.
package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
)

// ErrNotFound is returned, wrapped, when an entity row does not exist.
var ErrNotFound = stderrors.New("not found")

var schema = []string{
	`CREATE TABLE IF NOT EXISTS notification_templates (
		id TEXT PRIMARY KEY,
		channel TEXT NOT NULL CHECK (channel IN ('email', 'sms')),
		subject TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS credit_accounts (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		balance BIGINT NOT NULL CHECK (balance >= 0),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_transactions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES credit_accounts(id),
		amount BIGINT NOT NULL CHECK (amount > 0),
		kind TEXT NOT NULL CHECK (kind IN ('debit', 'refund')),
		reason TEXT NOT NULL DEFAULT '',
		originating_transaction_id TEXT REFERENCES ledger_transactions(id),
		linked_delivery_id TEXT,
		balance_after BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ledger_transactions_one_refund
		ON ledger_transactions (originating_transaction_id)
		WHERE originating_transaction_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS ledger_transactions_account
		ON ledger_transactions (account_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS delivery_logs (
		id TEXT PRIMARY KEY,
		template_id TEXT NOT NULL REFERENCES notification_templates(id),
		recipient_id TEXT NOT NULL,
		channel TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('pending', 'sent', 'failed')),
		to_address TEXT NOT NULL,
		resolved_subject TEXT NOT NULL DEFAULT '',
		resolved_body TEXT NOT NULL,
		external_reference TEXT,
		debit_transaction_id TEXT,
		error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		completed_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS milestone_fired_records (
		id TEXT PRIMARY KEY,
		entity_id TEXT NOT NULL,
		milestone_type TEXT NOT NULL,
		anchor_snapshot TEXT NOT NULL,
		fired_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (entity_id, milestone_type, anchor_snapshot)
	)`,
}

// EnsureSchema creates the engine's tables when they do not exist. Entity
// tables (students, courses, ...) belong to the booking application.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
