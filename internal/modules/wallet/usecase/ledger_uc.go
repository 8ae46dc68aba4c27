// Package usecase implements the business logic for the wallet module.
package usecase

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/frankieli/instant_games/internal/modules/wallet/domain"
	"github.com/frankieli/instant_games/pkg/logger"
)

// LedgerUseCase is the authoritative account ledger: one balance per
// (user, currency) pair with an append-only transaction log
type LedgerUseCase struct {
	repo domain.LedgerRepository
}

// NewLedgerUseCase creates a new ledger use case
func NewLedgerUseCase(repo domain.LedgerRepository) *LedgerUseCase {
	return &LedgerUseCase{repo: repo}
}

// Apply validates and applies one entry atomically.
// Sign discipline: BET entries must be negative, WIN entries positive,
// ADJUSTMENT either (but not zero).
func (uc *LedgerUseCase) Apply(ctx context.Context, ref domain.AccountRef, entry domain.Entry) (*domain.Transaction, bool, error) {
	if entry.IdempotencyKey == "" {
		return nil, false, fmt.Errorf("%w: empty idempotency key", domain.ErrInvalidAmount)
	}
	if err := validateSign(entry); err != nil {
		return nil, false, err
	}

	tx, applied, err := uc.repo.Apply(ctx, ref, entry)
	if err != nil {
		logger.Warn(ctx).
			Err(err).
			Int64("user_id", ref.UserID).
			Str("currency", ref.Currency).
			Str("kind", string(entry.Kind)).
			Str("amount", entry.Amount.String()).
			Msg("ledger apply rejected")
		return nil, false, err
	}

	if applied {
		logger.Info(ctx).
			Str("tx_id", tx.TxID).
			Int64("seq", tx.Seq).
			Str("kind", string(tx.Kind)).
			Str("amount", tx.Amount.String()).
			Str("resulting_balance", tx.ResultingBalance.String()).
			Msg("ledger entry applied")
	} else {
		logger.Info(ctx).
			Str("tx_id", tx.TxID).
			Str("idempotency_key", entry.IdempotencyKey).
			Msg("ledger entry replayed (idempotent)")
	}

	return tx, applied, nil
}

// Balance returns the current balance for the account
func (uc *LedgerUseCase) Balance(ctx context.Context, ref domain.AccountRef) (decimal.Decimal, error) {
	return uc.repo.Balance(ctx, ref)
}

// Transactions returns the most recent transactions, newest first
func (uc *LedgerUseCase) Transactions(ctx context.Context, ref domain.AccountRef, limit int) ([]*domain.Transaction, error) {
	return uc.repo.Transactions(ctx, ref, limit)
}

func validateSign(entry domain.Entry) error {
	switch entry.Kind {
	case domain.KindBet:
		if !entry.Amount.IsNegative() {
			return fmt.Errorf("%w: BET amount must be negative, got %s", domain.ErrInvalidAmount, entry.Amount)
		}
	case domain.KindWin:
		if !entry.Amount.IsPositive() {
			return fmt.Errorf("%w: WIN amount must be positive, got %s", domain.ErrInvalidAmount, entry.Amount)
		}
	case domain.KindAdjustment:
		if entry.Amount.IsZero() {
			return fmt.Errorf("%w: ADJUSTMENT amount must be non-zero", domain.ErrInvalidAmount)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidAmount, entry.Kind)
	}
	return nil
}
