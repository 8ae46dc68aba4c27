package engine

import (
	"github.com/shopspring/decimal"
)

// SymbolWeight is one reel symbol with its draw weight
type SymbolWeight struct {
	Symbol string          `json:"symbol"`
	Weight int             `json:"weight"`
	Payout decimal.Decimal `json:"payout"` // multiplier for three of a kind
}

// SlotsPaytable is the full slots paytable as data: one weighted strip used
// by all three reels and a three-of-a-kind payout per symbol. Exposing the
// table lets house edge and RTP be audited independent of any draw.
type SlotsPaytable struct {
	Strip []SymbolWeight `json:"strip"`
}

// DefaultSlotsPaytable returns the production paytable.
// Theoretical RTP: (64*5 + 27*10 + 8*25 + 1*180) / 1000 = 0.97.
func DefaultSlotsPaytable() *SlotsPaytable {
	return &SlotsPaytable{
		Strip: []SymbolWeight{
			{Symbol: "cherry", Weight: 4, Payout: decimal.NewFromInt(5)},
			{Symbol: "lemon", Weight: 3, Payout: decimal.NewFromInt(10)},
			{Symbol: "bell", Weight: 2, Payout: decimal.NewFromInt(25)},
			{Symbol: "seven", Weight: 1, Payout: decimal.NewFromInt(180)},
		},
	}
}

// TotalWeight returns the summed strip weight
func (p *SlotsPaytable) TotalWeight() int {
	total := 0
	for _, s := range p.Strip {
		total += s.Weight
	}
	return total
}

// Multiplier returns the payout multiplier for a spin outcome
func (p *SlotsPaytable) Multiplier(reels [3]string) decimal.Decimal {
	if reels[0] != reels[1] || reels[1] != reels[2] {
		return decimal.Zero
	}
	for _, s := range p.Strip {
		if s.Symbol == reels[0] {
			return s.Payout
		}
	}
	return decimal.Zero
}

// TheoreticalRTP enumerates every possible spin and returns the exact
// expected return per unit bet
func (p *SlotsPaytable) TheoreticalRTP() decimal.Decimal {
	w := int64(p.TotalWeight())
	total := w * w * w

	ev := decimal.Zero
	for _, a := range p.Strip {
		for _, b := range p.Strip {
			for _, c := range p.Strip {
				mult := p.Multiplier([3]string{a.Symbol, b.Symbol, c.Symbol})
				if mult.IsZero() {
					continue
				}
				weight := int64(a.Weight) * int64(b.Weight) * int64(c.Weight)
				ev = ev.Add(mult.Mul(decimal.NewFromInt(weight)))
			}
		}
	}
	return ev.Div(decimal.NewFromInt(total))
}

// SlotsOutcome is the artifact payload for a spin
type SlotsOutcome struct {
	Reels [3]string `json:"reels"`
}

// ResolveSlots draws three independent reel symbols from the weighted strip
func (c Config) ResolveSlots(bet decimal.Decimal, src Source) (*Result, error) {
	pt := c.Slots
	total := pt.TotalWeight()

	var reels [3]string
	for i := 0; i < 3; i++ {
		draw := src.DrawInt(total)
		for _, s := range pt.Strip {
			if draw < s.Weight {
				reels[i] = s.Symbol
				break
			}
			draw -= s.Weight
		}
	}

	multiplier := pt.Multiplier(reels)
	result := &Result{
		Game:       GameSlots,
		IsWin:      multiplier.IsPositive(),
		Multiplier: multiplier,
		Artifacts:  SlotsOutcome{Reels: reels},
	}
	if result.IsWin {
		result.WinAmount = bet.Mul(multiplier).Truncate(2)
	} else {
		result.WinAmount = decimal.Zero
	}
	return result, nil
}
