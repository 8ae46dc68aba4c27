package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	walletdomain "github.com/frankieli/instant_games/internal/modules/wallet/domain"
)

// RoundStatus is the lifecycle state of a multi-step round
type RoundStatus string

const (
	RoundStatusActive    RoundStatus = "ACTIVE"
	RoundStatusBusted    RoundStatus = "BUSTED"
	RoundStatusCashedOut RoundStatus = "CASHED_OUT"
)

// GameRound is the session-scoped state of one mines round. It is owned
// exclusively by the coordinator and only mutated inside the account's
// critical section. MinePositions are committed at round start and never
// sent to the client while the round is active.
type GameRound struct {
	RoundID        string          `json:"round_id"`
	UserID         int64           `json:"user_id"`
	Currency       string          `json:"currency"`
	BetAmount      decimal.Decimal `json:"bet_amount"`
	MineCount      int             `json:"mine_count"`
	MinePositions  []int           `json:"mine_positions"`
	RevealedTiles  []int           `json:"revealed_tiles"`
	Multiplier     decimal.Decimal `json:"multiplier"`
	Status         RoundStatus     `json:"status"`
	IdempotencyKey string          `json:"idempotency_key"`
	StartedAt      time.Time       `json:"started_at"`
}

// NewGameRound creates an active round with committed mine positions
func NewGameRound(ref walletdomain.AccountRef, bet decimal.Decimal, mineCount int, positions []int, idemKey string, multiplier decimal.Decimal) *GameRound {
	return &GameRound{
		RoundID:        uuid.NewString(),
		UserID:         ref.UserID,
		Currency:       ref.Currency,
		BetAmount:      bet,
		MineCount:      mineCount,
		MinePositions:  positions,
		RevealedTiles:  []int{},
		Multiplier:     multiplier,
		Status:         RoundStatusActive,
		IdempotencyKey: idemKey,
		StartedAt:      time.Now(),
	}
}

// Ref returns the owning account's reference
func (r *GameRound) Ref() walletdomain.AccountRef {
	return walletdomain.AccountRef{UserID: r.UserID, Currency: r.Currency}
}

// IsMine reports whether the tile holds a mine
func (r *GameRound) IsMine(tile int) bool {
	for _, p := range r.MinePositions {
		if p == tile {
			return true
		}
	}
	return false
}

// IsRevealed reports whether the tile was already revealed
func (r *GameRound) IsRevealed(tile int) bool {
	for _, t := range r.RevealedTiles {
		if t == tile {
			return true
		}
	}
	return false
}

// RevealResult is the state returned after one tile reveal. MinePositions
// is populated only when the reveal ends the round.
type RevealResult struct {
	RoundID       string          `json:"round_id"`
	Tile          int             `json:"tile"`
	IsMine        bool            `json:"is_mine"`
	Status        RoundStatus     `json:"status"`
	Multiplier    decimal.Decimal `json:"multiplier"`
	RevealedTiles []int           `json:"revealed_tiles"`
	MinePositions []int           `json:"mine_positions,omitempty"`
	// PotentialWin is the payout a cashout would yield right now
	PotentialWin decimal.Decimal `json:"potential_win"`
}
