package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// LedgerRepository defines the storage interface for the account ledger.
// Apply must be atomic with respect to all other operations on the same
// account: balance read, funds check, sequence assignment and append happen
// as one unit.
type LedgerRepository interface {
	// Apply appends the entry to the account's log and updates the balance.
	// Returns the stored transaction and applied=false when the idempotency
	// key was already applied with identical parameters.
	// Errors: ErrInsufficientFunds, ErrDuplicateTransaction.
	Apply(ctx context.Context, ref AccountRef, entry Entry) (tx *Transaction, applied bool, err error)

	// Balance returns the current balance. ErrAccountNotFound when the
	// account has no transactions.
	Balance(ctx context.Context, ref AccountRef) (decimal.Decimal, error)

	// Transactions returns up to limit transactions, newest first.
	Transactions(ctx context.Context, ref AccountRef, limit int) ([]*Transaction, error)
}
