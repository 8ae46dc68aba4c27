// Package engine implements the outcome engine: pure functions that map a
// bet and a source of randomness to a deterministic game result. No I/O, no
// shared state; the same draw sequence always reproduces the same result.
package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// GameType identifies a game variant
type GameType string

const (
	GameDice   GameType = "dice"
	GameMines  GameType = "mines"
	GameSlots  GameType = "slots"
	GamePlinko GameType = "plinko"
)

var (
	// ErrInvalidParams is returned for out-of-range game parameters.
	// No randomness is consumed when this is returned, so a retry of the
	// corrected request stays deterministic.
	ErrInvalidParams = errors.New("invalid game parameters")

	// ErrMultiStepGame is returned when Resolve is called for a game that
	// settles over multiple steps (mines); those go through the round flow.
	ErrMultiStepGame = errors.New("game settles over multiple steps")
)

// Source is a deterministic source of uniform draws. Implementations must
// return a uniform value in [0, n) for every call.
type Source interface {
	DrawInt(n int) int
}

// Result is the outcome of one resolved wager
type Result struct {
	Game       GameType        `json:"game"`
	IsWin      bool            `json:"is_win"`
	Multiplier decimal.Decimal `json:"multiplier"`
	WinAmount  decimal.Decimal `json:"win_amount"`
	Artifacts  interface{}     `json:"artifacts"`
}

// Params carries the per-game bet parameters
type Params struct {
	// Dice
	DiceTarget   decimal.Decimal
	DiceRollOver bool

	// Mines
	MineCount int
}

// Config holds the tunable payout constants. Defaults match production
// values; tests audit them against the conservation property.
type Config struct {
	DicePayoutNumerator decimal.Decimal // numerator of the dice payout curve, default 99
	MinesRTP            decimal.Decimal // RTP factor applied to the mines survival multiplier
	Slots               *SlotsPaytable
	Plinko              *PlinkoTable
}

// DefaultConfig returns the production payout configuration
func DefaultConfig() Config {
	return Config{
		DicePayoutNumerator: decimal.NewFromInt(99),
		MinesRTP:            decimal.RequireFromString("0.99"),
		Slots:               DefaultSlotsPaytable(),
		Plinko:              DefaultPlinkoTable(),
	}
}

// Resolve computes the outcome for a single-shot game. Mines is multi-step
// and is driven by the settlement round flow instead.
func (c Config) Resolve(game GameType, bet decimal.Decimal, params Params, src Source) (*Result, error) {
	if !bet.IsPositive() {
		return nil, fmt.Errorf("%w: bet must be positive", ErrInvalidParams)
	}

	switch game {
	case GameDice:
		return c.ResolveDice(bet, params.DiceTarget, params.DiceRollOver, src)
	case GameSlots:
		return c.ResolveSlots(bet, src)
	case GamePlinko:
		return c.ResolvePlinko(bet, src)
	case GameMines:
		return nil, ErrMultiStepGame
	default:
		return nil, fmt.Errorf("%w: unknown game %q", ErrInvalidParams, game)
	}
}
