package usecase_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frankieli/instant_games/internal/modules/engine"
	"github.com/frankieli/instant_games/internal/modules/settlement/domain"
	walletdomain "github.com/frankieli/instant_games/internal/modules/wallet/domain"
)

func minesBet(amount, idemKey string, mines int) domain.BetRequest {
	return domain.BetRequest{
		Account:        testRef,
		Game:           engine.GameMines,
		Amount:         decimal.RequireFromString(amount),
		Params:         engine.Params{MineCount: mines},
		IdempotencyKey: idemKey,
	}
}

// Scripted draws 0,0,0 place the mines on tiles 0, 1 and 2.
func startMinesRound(t *testing.T, f *fixture) *domain.BetResult {
	t.Helper()
	res, err := f.coordinator.PlaceBet(context.Background(), minesBet("10.00", "mines-1", 3))
	require.NoError(t, err)
	require.NotEmpty(t, res.RoundID)
	return res
}

func TestMinesRoundStart(t *testing.T) {
	f := newFixture(t, []int{0, 0, 0})
	f.fund(t, "100.00")

	res := startMinesRound(t, f)
	assert.True(t, res.ResultingBalance.Equal(decimal.RequireFromString("90.00")),
		"stake is debited up front, got %s", res.ResultingBalance)
	assert.False(t, res.IsWin)

	// the active round never exposes the mine positions
	round, err := f.coordinator.ActiveRound(context.Background(), testRef)
	require.NoError(t, err)
	require.NotNil(t, round)
	assert.Equal(t, res.RoundID, round.RoundID)
	assert.Nil(t, round.MinePositions)

	// a second concurrent round on the account is rejected
	_, err = f.coordinator.PlaceBet(context.Background(), minesBet("10.00", "mines-2", 3))
	assert.ErrorIs(t, err, domain.ErrRoundInProgress)
}

func TestMinesRoundStartReplay(t *testing.T) {
	f := newFixture(t, []int{0, 0, 0})
	f.fund(t, "100.00")

	first := startMinesRound(t, f)
	second, err := f.coordinator.PlaceBet(context.Background(), minesBet("10.00", "mines-1", 3))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.True(t, f.balance(t).Equal(decimal.RequireFromString("90.00")))
}

func TestMinesRevealAndCashout(t *testing.T) {
	f := newFixture(t, []int{0, 0, 0})
	f.fund(t, "100.00")
	ctx := context.Background()

	res := startMinesRound(t, f)

	// tile 3 is safe: multiplier (25/22)*0.99 = 1.125
	reveal, err := f.coordinator.Reveal(ctx, testRef, res.RoundID, 3)
	require.NoError(t, err)
	assert.False(t, reveal.IsMine)
	assert.Equal(t, domain.RoundStatusActive, reveal.Status)
	assert.True(t, reveal.Multiplier.Equal(decimal.RequireFromString("1.125")), "got %s", reveal.Multiplier)
	assert.True(t, reveal.PotentialWin.Equal(decimal.RequireFromString("11.25")))
	assert.Nil(t, reveal.MinePositions, "positions stay hidden while the round is active")

	// revealing the same tile again is rejected without state change
	_, err = f.coordinator.Reveal(ctx, testRef, res.RoundID, 3)
	assert.ErrorIs(t, err, domain.ErrTileRevealed)

	cashout, err := f.coordinator.Cashout(ctx, testRef, res.RoundID)
	require.NoError(t, err)
	assert.True(t, cashout.IsWin)
	assert.True(t, cashout.WinAmount.Equal(decimal.RequireFromString("11.25")))
	assert.True(t, cashout.ResultingBalance.Equal(decimal.RequireFromString("101.25")),
		"100 - 10 + 11.25, got %s", cashout.ResultingBalance)

	// the round is destroyed after settling
	_, err = f.coordinator.Cashout(ctx, testRef, res.RoundID)
	assert.ErrorIs(t, err, domain.ErrRoundNotFound)
	round, err := f.coordinator.ActiveRound(ctx, testRef)
	require.NoError(t, err)
	assert.Nil(t, round)
}

func TestMinesDuplicateKeyMismatchedMineCount(t *testing.T) {
	f := newFixture(t, []int{0, 0, 0})
	f.fund(t, "100.00")
	ctx := context.Background()

	startMinesRound(t, f)

	// same key and stake, different mine count: a collision, not a replay
	_, err := f.coordinator.PlaceBet(ctx, minesBet("10.00", "mines-1", 5))
	assert.ErrorIs(t, err, walletdomain.ErrDuplicateTransaction)

	assert.True(t, f.balance(t).Equal(decimal.RequireFromString("90.00")),
		"the collision must not move money")
}

func TestMinesBust(t *testing.T) {
	f := newFixture(t, []int{0, 0, 0})
	f.fund(t, "100.00")
	ctx := context.Background()

	res := startMinesRound(t, f)

	// tile 1 holds a mine
	reveal, err := f.coordinator.Reveal(ctx, testRef, res.RoundID, 1)
	require.NoError(t, err)
	assert.True(t, reveal.IsMine)
	assert.Equal(t, domain.RoundStatusBusted, reveal.Status)
	assert.ElementsMatch(t, []int{0, 1, 2}, reveal.MinePositions,
		"terminal reveals disclose the committed positions")

	// the stake was already debited; a bust writes no further transaction
	assert.True(t, f.balance(t).Equal(decimal.RequireFromString("90.00")))
	assert.Len(t, f.push.published(), 2, "grant and bet only")

	_, err = f.coordinator.Reveal(ctx, testRef, res.RoundID, 5)
	assert.ErrorIs(t, err, domain.ErrRoundNotFound)
}

func TestMinesRevealValidation(t *testing.T) {
	f := newFixture(t, []int{0, 0, 0})
	f.fund(t, "100.00")
	ctx := context.Background()

	res := startMinesRound(t, f)

	_, err := f.coordinator.Reveal(ctx, testRef, res.RoundID, 25)
	assert.ErrorIs(t, err, domain.ErrTileOutOfRange)
	_, err = f.coordinator.Reveal(ctx, testRef, res.RoundID, -1)
	assert.ErrorIs(t, err, domain.ErrTileOutOfRange)

	// cashing out before any reveal is rejected
	_, err = f.coordinator.Cashout(ctx, testRef, res.RoundID)
	assert.ErrorIs(t, err, domain.ErrNoTilesRevealed)

	// another account cannot touch the round
	other := walletdomain.AccountRef{UserID: 2, Currency: "USD"}
	_, err = f.coordinator.Reveal(ctx, other, res.RoundID, 3)
	assert.ErrorIs(t, err, domain.ErrNotRoundOwner)
	_, err = f.coordinator.Cashout(ctx, other, res.RoundID)
	assert.ErrorIs(t, err, domain.ErrNotRoundOwner)

	_, err = f.coordinator.Reveal(ctx, testRef, "no-such-round", 3)
	assert.ErrorIs(t, err, domain.ErrRoundNotFound)
}

func TestMinesInvalidMineCount(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "100.00")

	_, err := f.coordinator.PlaceBet(context.Background(), minesBet("10.00", "mines-1", 0))
	assert.ErrorIs(t, err, engine.ErrInvalidParams)
	_, err = f.coordinator.PlaceBet(context.Background(), minesBet("10.00", "mines-2", 25))
	assert.ErrorIs(t, err, engine.ErrInvalidParams)

	assert.True(t, f.balance(t).Equal(decimal.RequireFromString("100.00")))
}
