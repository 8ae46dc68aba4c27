package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Mines is played on a 5x5 grid. Mine positions are committed at round
// start; the survival multiplier after k safe reveals is the inverse of the
// cumulative hypergeometric probability of drawing k safe tiles in a row,
// scaled by the RTP factor.
const (
	MinesGridSize = 25
	MinMineCount  = 1
	MaxMineCount  = 24
)

// ValidateMineCount rejects out-of-range mine counts before any draw
func ValidateMineCount(mineCount int) error {
	if mineCount < MinMineCount || mineCount > MaxMineCount {
		return fmt.Errorf("%w: mine count %d outside [%d,%d]", ErrInvalidParams, mineCount, MinMineCount, MaxMineCount)
	}
	return nil
}

// DrawMinePositions draws mineCount distinct positions on the grid,
// uniformly at random without replacement (partial Fisher-Yates).
func DrawMinePositions(mineCount int, src Source) ([]int, error) {
	if err := ValidateMineCount(mineCount); err != nil {
		return nil, err
	}

	tiles := make([]int, MinesGridSize)
	for i := range tiles {
		tiles[i] = i
	}
	for i := 0; i < mineCount; i++ {
		j := i + src.DrawInt(MinesGridSize-i)
		tiles[i], tiles[j] = tiles[j], tiles[i]
	}
	return tiles[:mineCount], nil
}

// MinesMultiplier returns the payout multiplier after `revealed` safe
// reveals: RTP * Π (25-i)/(25-i-mineCount) for i in [0,revealed), truncated
// to 4 decimal places. The product is accumulated as an exact fraction and
// divided once, so intermediate rounding cannot drift the result.
func (c Config) MinesMultiplier(mineCount, revealed int) (decimal.Decimal, error) {
	if err := ValidateMineCount(mineCount); err != nil {
		return decimal.Zero, err
	}
	safeTiles := MinesGridSize - mineCount
	if revealed < 0 || revealed > safeTiles {
		return decimal.Zero, fmt.Errorf("%w: %d reveals with %d safe tiles", ErrInvalidParams, revealed, safeTiles)
	}

	num := decimal.NewFromInt(1)
	den := decimal.NewFromInt(1)
	for i := 0; i < revealed; i++ {
		num = num.Mul(decimal.NewFromInt(int64(MinesGridSize - i)))
		den = den.Mul(decimal.NewFromInt(int64(MinesGridSize - i - mineCount)))
	}
	return num.Mul(c.MinesRTP).Div(den).Truncate(4), nil
}
