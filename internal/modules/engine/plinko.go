package engine

import (
	"github.com/shopspring/decimal"
)

// PlinkoTable is the full plinko paytable as data: a ball falls through
// Rows rows of pegs, going left or right with equal probability at each,
// and lands in one of Rows+1 buckets. Bucket k is reached with probability
// C(Rows,k)/2^Rows, so the multiplier table fully determines the RTP.
type PlinkoTable struct {
	Rows        int               `json:"rows"`
	Multipliers []decimal.Decimal `json:"multipliers"`
}

// DefaultPlinkoTable returns the production 16-row board.
// Theoretical RTP: 64873/65536 ≈ 0.9899.
func DefaultPlinkoTable() *PlinkoTable {
	mults := []string{
		"110", "41", "10", "5", "3", "1.5", "1", "0.5", "0.3",
		"0.5", "1", "1.5", "3", "5", "10", "41", "110",
	}
	table := &PlinkoTable{Rows: 16, Multipliers: make([]decimal.Decimal, len(mults))}
	for i, m := range mults {
		table.Multipliers[i] = decimal.RequireFromString(m)
	}
	return table
}

// TheoreticalRTP returns the exact expected return per unit bet
func (p *PlinkoTable) TheoreticalRTP() decimal.Decimal {
	ev := decimal.Zero
	for k, mult := range p.Multipliers {
		ev = ev.Add(mult.Mul(decimal.NewFromInt(binomial(p.Rows, k))))
	}
	return ev.Div(pow2(p.Rows))
}

// PlinkoOutcome is the artifact payload for a drop
type PlinkoOutcome struct {
	Path   []int `json:"path"` // 0 = left, 1 = right, one entry per row
	Bucket int   `json:"bucket"`
}

// ResolvePlinko drops one ball: Rows fair binary draws, bucket = number of
// rights
func (c Config) ResolvePlinko(bet decimal.Decimal, src Source) (*Result, error) {
	table := c.Plinko

	path := make([]int, table.Rows)
	bucket := 0
	for i := range path {
		path[i] = src.DrawInt(2)
		bucket += path[i]
	}

	multiplier := table.Multipliers[bucket]
	result := &Result{
		Game:       GamePlinko,
		IsWin:      multiplier.GreaterThanOrEqual(decimal.New(1, 0)),
		Multiplier: multiplier,
		Artifacts:  PlinkoOutcome{Path: path, Bucket: bucket},
	}
	if multiplier.IsPositive() {
		result.WinAmount = bet.Mul(multiplier).Truncate(2)
	} else {
		result.WinAmount = decimal.Zero
	}
	return result, nil
}

func binomial(n, k int) int64 {
	if k < 0 || k > n {
		return 0
	}
	if k > n-k {
		k = n - k
	}
	result := int64(1)
	for i := 0; i < k; i++ {
		result = result * int64(n-i) / int64(i+1)
	}
	return result
}

func pow2(n int) decimal.Decimal {
	return decimal.NewFromInt(1 << uint(n))
}
