package domain

import "errors"

var (
	// ErrInsufficientFunds is returned when a debit would take the balance
	// below zero. The ledger never allows a negative balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateTransaction is returned when an idempotency key is reused
	// with different parameters. A reuse with identical parameters is not an
	// error: the stored transaction is returned instead.
	ErrDuplicateTransaction = errors.New("idempotency key reused with different parameters")

	// ErrInvalidAmount is returned when an entry's amount sign does not
	// match its kind (BET must be negative, WIN positive) or is zero.
	ErrInvalidAmount = errors.New("invalid transaction amount")

	// ErrAccountNotFound is returned for reads on an account that has never
	// been credited.
	ErrAccountNotFound = errors.New("account not found")
)
