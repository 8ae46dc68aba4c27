package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/frankieli/instant_games/internal/modules/engine"
	walletdomain "github.com/frankieli/instant_games/internal/modules/wallet/domain"
)

// BetRequest is the ephemeral input for one wager. It is consumed by the
// coordinator and discarded after settlement; the resulting ledger
// transactions are the durable artifact.
type BetRequest struct {
	Account        walletdomain.AccountRef
	Game           engine.GameType
	Amount         decimal.Decimal
	Params         engine.Params
	IdempotencyKey string
}

// BetResult is the confirmed outcome returned to the caller and cached for
// idempotent replays
type BetResult struct {
	TxID             string          `json:"transaction_id"`
	RoundID          string          `json:"round_id,omitempty"` // multi-step games only
	Game             engine.GameType `json:"game"`
	IsWin            bool            `json:"is_win"`
	Multiplier       decimal.Decimal `json:"multiplier"`
	BetAmount        decimal.Decimal `json:"bet_amount"`
	WinAmount        decimal.Decimal `json:"win_amount"`
	ResultingBalance decimal.Decimal `json:"resulting_balance"`
	GameData         string          `json:"game_data,omitempty"`
	SettledAt        time.Time       `json:"settled_at"`
}

// BetLimits bounds the stake for one game
type BetLimits struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// Limits maps each game to its stake bounds
type Limits map[engine.GameType]BetLimits

// Check reports whether the amount is inside the game's bounds
func (l Limits) Check(game engine.GameType, amount decimal.Decimal) error {
	limits, ok := l[game]
	if !ok {
		return ErrUnknownGame
	}
	if amount.LessThan(limits.Min) || amount.GreaterThan(limits.Max) {
		return ErrBetOutOfRange
	}
	return nil
}
