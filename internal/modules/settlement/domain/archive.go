package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RoundArchive is the durable history record written when a multi-step
// round reaches a terminal status
type RoundArchive struct {
	RoundID    string          `gorm:"primaryKey;type:varchar(64)" json:"round_id"`
	UserID     int64           `gorm:"not null;index:idx_round_archive_user" json:"user_id"`
	Currency   string          `gorm:"type:varchar(8);not null" json:"currency"`
	GameCode   string          `gorm:"type:varchar(32);not null" json:"game_code"`
	BetAmount  decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"bet_amount"`
	Payout     decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"payout"`
	Status     string          `gorm:"type:varchar(16);not null" json:"status"`
	Result     string          `gorm:"type:text" json:"result"` // JSON: mine positions, revealed tiles, final multiplier
	StartedAt  time.Time       `gorm:"not null" json:"started_at"`
	FinishedAt time.Time       `gorm:"not null;index" json:"finished_at"`
}

// TableName overrides the table name
func (RoundArchive) TableName() string {
	return "round_archive"
}

// ArchiveRepository persists finished rounds
type ArchiveRepository interface {
	Create(ctx context.Context, archive *RoundArchive) error
}
