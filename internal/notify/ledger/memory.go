package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "course-notify/internal/common/errors"
	"course-notify/internal/models"
)

// MemoryStore keeps balances and ledger rows in process. One mutex guards
// both, which gives the same atomicity as the SQL transaction.
type MemoryStore struct {
	mu sync.Mutex

	balances         map[string]int64
	transactions     map[string]*models.LedgerTransaction
	order            []string
	refundByOriginID map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances:         make(map[string]int64),
		transactions:     make(map[string]*models.LedgerTransaction),
		refundByOriginID: make(map[string]string),
	}
}

// OpenAccount creates or tops up an account outside the ledger, for fixtures.
func (s *MemoryStore) OpenAccount(accountID string, balance int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[accountID] = balance
}

func (s *MemoryStore) Debit(_ context.Context, tx *models.LedgerTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance, ok := s.balances[tx.AccountID]
	if !ok {
		return apperrors.NewAccountNotFoundError(tx.AccountID)
	}
	if balance < tx.Amount {
		return apperrors.NewInsufficientBalanceError(tx.AccountID, balance, tx.Amount)
	}

	s.balances[tx.AccountID] = balance - tx.Amount
	tx.BalanceAfter = balance - tx.Amount
	s.append(tx)
	return nil
}

func (s *MemoryStore) Refund(_ context.Context, tx *models.LedgerTransaction) (*models.LedgerTransaction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	origin, ok := s.transactions[tx.OriginatingTransactionID]
	if !ok {
		return nil, false, apperrors.NewRefundInvalidError(fmt.Sprintf("transaction %s not found", tx.OriginatingTransactionID))
	}
	if origin.Kind != models.TransactionDebit || origin.AccountID != tx.AccountID {
		return nil, false, apperrors.NewRefundInvalidError(fmt.Sprintf("transaction %s is not a debit of account %s", origin.ID, tx.AccountID))
	}

	if priorID, done := s.refundByOriginID[origin.ID]; done {
		prior := *s.transactions[priorID]
		return &prior, false, nil
	}

	tx.Amount = origin.Amount
	s.balances[tx.AccountID] += origin.Amount
	tx.BalanceAfter = s.balances[tx.AccountID]
	s.append(tx)
	s.refundByOriginID[origin.ID] = tx.ID

	out := *tx
	return &out, true, nil
}

func (s *MemoryStore) append(tx *models.LedgerTransaction) {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	stored := *tx
	s.transactions[tx.ID] = &stored
	s.order = append(s.order, tx.ID)
}

func (s *MemoryStore) LinkDelivery(_ context.Context, txID, deliveryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[txID]
	if !ok {
		return fmt.Errorf("ledger transaction %s not found", txID)
	}
	tx.LinkedDeliveryID = deliveryID
	return nil
}

func (s *MemoryStore) Balance(_ context.Context, accountID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance, ok := s.balances[accountID]
	if !ok {
		return 0, apperrors.NewAccountNotFoundError(accountID)
	}
	return balance, nil
}

func (s *MemoryStore) Transactions(_ context.Context, accountID string) ([]models.LedgerTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.LedgerTransaction
	for _, id := range s.order {
		if tx := s.transactions[id]; tx.AccountID == accountID {
			out = append(out, *tx)
		}
	}
	return out, nil
}
