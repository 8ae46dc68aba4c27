package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlinkoTableShape(t *testing.T) {
	table := DefaultPlinkoTable()
	require.Len(t, table.Multipliers, table.Rows+1)

	// payouts are symmetric around the center bucket
	for i := 0; i <= table.Rows/2; i++ {
		assert.True(t, table.Multipliers[i].Equal(table.Multipliers[table.Rows-i]),
			"bucket %d and %d differ", i, table.Rows-i)
	}
}

func TestPlinkoTheoreticalRTP(t *testing.T) {
	rtp := DefaultPlinkoTable().TheoreticalRTP()
	expected := decimal.NewFromInt(64873).Div(decimal.NewFromInt(65536))
	assert.True(t, rtp.Equal(expected), "got %s want %s", rtp, expected)
}

func TestResolvePlinkoScripted(t *testing.T) {
	cfg := DefaultConfig()
	bet := decimal.NewFromInt(10)

	// all rights: bucket 16, edge multiplier 110
	draws := make([]int, 16)
	for i := range draws {
		draws[i] = 1
	}
	res, err := cfg.ResolvePlinko(bet, NewScriptSource(draws...))
	require.NoError(t, err)
	outcome := res.Artifacts.(PlinkoOutcome)
	assert.Equal(t, 16, outcome.Bucket)
	assert.True(t, res.IsWin)
	assert.True(t, res.WinAmount.Equal(decimal.NewFromInt(1100)), "got %s", res.WinAmount)

	// alternating: bucket 8, center multiplier 0.3 pays but is not a win
	for i := range draws {
		draws[i] = i % 2
	}
	res, err = cfg.ResolvePlinko(bet, NewScriptSource(draws...))
	require.NoError(t, err)
	outcome = res.Artifacts.(PlinkoOutcome)
	assert.Equal(t, 8, outcome.Bucket)
	assert.False(t, res.IsWin)
	assert.True(t, res.WinAmount.Equal(decimal.NewFromInt(3)), "got %s", res.WinAmount)
}

func TestBinomial(t *testing.T) {
	assert.Equal(t, int64(1), binomial(16, 0))
	assert.Equal(t, int64(16), binomial(16, 1))
	assert.Equal(t, int64(12870), binomial(16, 8))
	assert.Equal(t, int64(0), binomial(16, 17))
}
