// Package memory provides a memory-based ledger repository for the wallet module.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/frankieli/instant_games/internal/modules/wallet/domain"
)

type account struct {
	balance decimal.Decimal
	version int64
	log     []*domain.Transaction
	byKey   map[string]*domain.Transaction
}

// LedgerRepository implements domain.LedgerRepository using memory
type LedgerRepository struct {
	accounts map[string]*account
	mu       sync.RWMutex
	now      func() time.Time
}

// NewLedgerRepository creates a new memory ledger repository
func NewLedgerRepository() *LedgerRepository {
	return &LedgerRepository{
		accounts: make(map[string]*account),
		now:      time.Now,
	}
}

// WithClock overrides the repository clock (for tests)
func (r *LedgerRepository) WithClock(now func() time.Time) *LedgerRepository {
	r.now = now
	return r
}

func (r *LedgerRepository) Apply(ctx context.Context, ref domain.AccountRef, entry domain.Entry) (*domain.Transaction, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.accounts[ref.Key()]
	if !ok {
		acc = &account{
			balance: decimal.Zero,
			byKey:   make(map[string]*domain.Transaction),
		}
		r.accounts[ref.Key()] = acc
	}

	if existing, ok := acc.byKey[entry.IdempotencyKey]; ok {
		if !existing.Matches(entry) {
			return nil, false, domain.ErrDuplicateTransaction
		}
		return existing, false, nil
	}

	resulting := acc.balance.Add(entry.Amount)
	if resulting.IsNegative() {
		return nil, false, domain.ErrInsufficientFunds
	}

	acc.version++
	tx := &domain.Transaction{
		TxID:             domain.NewTxID(),
		UserID:           ref.UserID,
		Currency:         ref.Currency,
		IdempotencyKey:   entry.IdempotencyKey,
		Seq:              acc.version,
		Kind:             entry.Kind,
		Amount:           entry.Amount,
		ResultingBalance: resulting,
		GameType:         entry.GameType,
		GameData:         entry.GameData,
		CreatedAt:        r.now(),
	}

	acc.balance = resulting
	acc.log = append(acc.log, tx)
	acc.byKey[entry.IdempotencyKey] = tx

	return tx, true, nil
}

func (r *LedgerRepository) Balance(ctx context.Context, ref domain.AccountRef) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	acc, ok := r.accounts[ref.Key()]
	if !ok {
		return decimal.Zero, domain.ErrAccountNotFound
	}
	return acc.balance, nil
}

func (r *LedgerRepository) Transactions(ctx context.Context, ref domain.AccountRef, limit int) ([]*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	acc, ok := r.accounts[ref.Key()]
	if !ok {
		return []*domain.Transaction{}, nil
	}

	n := len(acc.log)
	if limit <= 0 || limit > n {
		limit = n
	}

	// Newest first
	txs := make([]*domain.Transaction, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		txs = append(txs, acc.log[i])
	}
	return txs, nil
}
