package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AccountRef identifies one balance: a (user, currency) pair
type AccountRef struct {
	UserID   int64
	Currency string
}

// Key returns the canonical map/lock key for the account
func (r AccountRef) Key() string {
	return fmt.Sprintf("%d:%s", r.UserID, r.Currency)
}

// Account holds the authoritative balance for a (user, currency) pair.
// Version increases by one for every applied transaction and doubles as the
// per-account transaction sequence number.
type Account struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64           `gorm:"not null;uniqueIndex:idx_accounts_user_currency,priority:1" json:"user_id"`
	Currency  string          `gorm:"type:varchar(8);not null;uniqueIndex:idx_accounts_user_currency,priority:2" json:"currency"`
	Balance   decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"balance"`
	Version   int64           `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName overrides the table name
func (Account) TableName() string {
	return "accounts"
}

// Ref returns the account's reference
func (a *Account) Ref() AccountRef {
	return AccountRef{UserID: a.UserID, Currency: a.Currency}
}
