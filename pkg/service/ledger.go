package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/frankieli/instant_games/internal/modules/wallet/domain"
)

// LedgerService defines the interface for balance and transaction operations
type LedgerService interface {
	// Apply atomically applies an entry to the account and returns the
	// resulting transaction. Replays of an already-applied idempotency key
	// return the stored transaction with applied=false.
	Apply(ctx context.Context, ref domain.AccountRef, entry domain.Entry) (tx *domain.Transaction, applied bool, err error)

	// Balance returns the current balance for the account
	Balance(ctx context.Context, ref domain.AccountRef) (decimal.Decimal, error)

	// Transactions returns the most recent transactions for the account,
	// newest first
	Transactions(ctx context.Context, ref domain.AccountRef, limit int) ([]*domain.Transaction, error)
}
