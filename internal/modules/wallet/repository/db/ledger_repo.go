// Package db provides the GORM-backed ledger repository for the wallet module.
package db

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frankieli/instant_games/internal/modules/wallet/domain"
)

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// AutoMigrate creates the ledger tables
func (r *LedgerRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&domain.Account{}, &domain.Transaction{})
}

// Apply runs read-check-append inside one DB transaction with the account
// row locked FOR UPDATE, so concurrent applies on the same account serialize
// at the database even if a caller bypasses the coordinator's lock.
func (r *LedgerRepository) Apply(ctx context.Context, ref domain.AccountRef, entry domain.Entry) (*domain.Transaction, bool, error) {
	var tx *domain.Transaction
	applied := false

	err := r.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		var acc domain.Account
		err := dbtx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND currency = ?", ref.UserID, ref.Currency).
			First(&acc).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			acc = domain.Account{UserID: ref.UserID, Currency: ref.Currency, Balance: decimal.Zero}
			if err := dbtx.Create(&acc).Error; err != nil {
				return err
			}
			// Re-lock the freshly created row
			if err := dbtx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("user_id = ? AND currency = ?", ref.UserID, ref.Currency).
				First(&acc).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		var existing domain.Transaction
		err = dbtx.Where("user_id = ? AND currency = ? AND idempotency_key = ?",
			ref.UserID, ref.Currency, entry.IdempotencyKey).
			First(&existing).Error
		if err == nil {
			if !existing.Matches(entry) {
				return domain.ErrDuplicateTransaction
			}
			tx = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		resulting := acc.Balance.Add(entry.Amount)
		if resulting.IsNegative() {
			return domain.ErrInsufficientFunds
		}

		record := &domain.Transaction{
			TxID:             domain.NewTxID(),
			UserID:           ref.UserID,
			Currency:         ref.Currency,
			IdempotencyKey:   entry.IdempotencyKey,
			Seq:              acc.Version + 1,
			Kind:             entry.Kind,
			Amount:           entry.Amount,
			ResultingBalance: resulting,
			GameType:         entry.GameType,
			GameData:         entry.GameData,
			CreatedAt:        time.Now(),
		}
		if err := dbtx.Create(record).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{
			"balance": resulting,
			"version": acc.Version + 1,
		}
		if err := dbtx.Model(&domain.Account{}).Where("id = ?", acc.ID).Updates(updates).Error; err != nil {
			return err
		}

		tx = record
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return tx, applied, nil
}

func (r *LedgerRepository) Balance(ctx context.Context, ref domain.AccountRef) (decimal.Decimal, error) {
	var acc domain.Account
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND currency = ?", ref.UserID, ref.Currency).
		First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, domain.ErrAccountNotFound
	}
	if err != nil {
		return decimal.Zero, err
	}
	return acc.Balance, nil
}

func (r *LedgerRepository) Transactions(ctx context.Context, ref domain.AccountRef, limit int) ([]*domain.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	var txs []*domain.Transaction
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND currency = ?", ref.UserID, ref.Currency).
		Order("seq DESC").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}
