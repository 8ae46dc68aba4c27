package config

import "github.com/shopspring/decimal"

// GamesConfig configures the outcome engine and per-game stake limits.
// House-edge constants are deployment parameters, not hardcoded values;
// the defaults match the audited paytables.
type GamesConfig struct {
	// DicePayoutNumerator is the N of multiplier = N / winChance
	DicePayoutNumerator decimal.Decimal
	// MinesRTP scales the fair mines survival multiplier
	MinesRTP decimal.Decimal

	Limits map[string]BetLimits
}

// BetLimits bounds the stake for one game
type BetLimits struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// LoadGamesConfig loads the game settings
func LoadGamesConfig() GamesConfig {
	return GamesConfig{
		DicePayoutNumerator: getEnvDecimal("DICE_PAYOUT_NUMERATOR", "99"),
		MinesRTP:            getEnvDecimal("MINES_RTP", "0.99"),
		Limits: map[string]BetLimits{
			"dice":   loadLimits("DICE"),
			"mines":  loadLimits("MINES"),
			"slots":  loadLimits("SLOTS"),
			"plinko": loadLimits("PLINKO"),
		},
	}
}

func loadLimits(prefix string) BetLimits {
	return BetLimits{
		Min: getEnvDecimal(prefix+"_BET_MIN", "0.10"),
		Max: getEnvDecimal(prefix+"_BET_MAX", "1000"),
	}
}
