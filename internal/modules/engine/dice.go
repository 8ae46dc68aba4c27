package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const diceRollSteps = 10000 // rolls have two decimal places: 0.00 .. 99.99

var (
	diceMinTarget = decimal.NewFromInt(2)
	diceMaxTarget = decimal.NewFromInt(98)
	hundred       = decimal.NewFromInt(100)
)

// DiceOutcome is the artifact payload for a dice roll
type DiceOutcome struct {
	Roll      decimal.Decimal `json:"roll"`
	Target    decimal.Decimal `json:"target"`
	RollOver  bool            `json:"roll_over"`
	WinChance decimal.Decimal `json:"win_chance"`
}

// DiceMultiplier returns the payout multiplier for the given target and
// direction: numerator / winChance, truncated to 4 decimal places. With the
// default numerator of 99 the house edge is a fixed 1% independent of the
// draw, and the multiplier never exceeds 49.5 (target clamped to [2,98]).
func (c Config) DiceMultiplier(target decimal.Decimal, rollOver bool) (decimal.Decimal, error) {
	if err := validateDiceTarget(target); err != nil {
		return decimal.Zero, err
	}
	return c.DicePayoutNumerator.Div(diceWinChance(target, rollOver)).Truncate(4), nil
}

// ResolveDice draws a uniform roll in [0,100) and settles against the target.
// rollOver wins when roll >= target; roll-under wins when roll < target, so
// the two directions are exact complements.
func (c Config) ResolveDice(bet, target decimal.Decimal, rollOver bool, src Source) (*Result, error) {
	multiplier, err := c.DiceMultiplier(target, rollOver)
	if err != nil {
		return nil, err
	}

	// Randomness is only consumed past this point
	roll := decimal.New(int64(src.DrawInt(diceRollSteps)), -2)

	isWin := roll.LessThan(target)
	if rollOver {
		isWin = roll.GreaterThanOrEqual(target)
	}

	result := &Result{
		Game:       GameDice,
		IsWin:      isWin,
		Multiplier: multiplier,
		Artifacts: DiceOutcome{
			Roll:      roll,
			Target:    target,
			RollOver:  rollOver,
			WinChance: diceWinChance(target, rollOver),
		},
	}
	if isWin {
		result.WinAmount = bet.Mul(multiplier).Truncate(2)
	} else {
		result.WinAmount = decimal.Zero
	}
	return result, nil
}

func diceWinChance(target decimal.Decimal, rollOver bool) decimal.Decimal {
	if rollOver {
		return hundred.Sub(target)
	}
	return target
}

func validateDiceTarget(target decimal.Decimal) error {
	if target.LessThan(diceMinTarget) || target.GreaterThan(diceMaxTarget) {
		return fmt.Errorf("%w: dice target %s outside [2,98]", ErrInvalidParams, target)
	}
	if !target.Equal(target.Truncate(2)) {
		return fmt.Errorf("%w: dice target %s has more than two decimals", ErrInvalidParams, target)
	}
	return nil
}
