package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frankieli/instant_games/internal/modules/engine"
	"github.com/frankieli/instant_games/internal/modules/settlement/domain"
	"github.com/frankieli/instant_games/internal/modules/settlement/repository/memory"
	"github.com/frankieli/instant_games/internal/modules/settlement/usecase"
	walletdomain "github.com/frankieli/instant_games/internal/modules/wallet/domain"
	walletmemory "github.com/frankieli/instant_games/internal/modules/wallet/repository/memory"
	walletusecase "github.com/frankieli/instant_games/internal/modules/wallet/usecase"
	"github.com/frankieli/instant_games/pkg/logger"
	"github.com/frankieli/instant_games/pkg/service"
)

func init() {
	logger.Init(logger.Config{Level: "error", Format: "console"})
}

var testRef = walletdomain.AccountRef{UserID: 1, Currency: "USD"}

// recordingPush captures published transactions in order
type recordingPush struct {
	mu  sync.Mutex
	txs []*walletdomain.Transaction
}

func (p *recordingPush) PublishTransaction(ctx context.Context, tx *walletdomain.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.txs = append(p.txs, tx)
}

func (p *recordingPush) published() []*walletdomain.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*walletdomain.Transaction{}, p.txs...)
}

// flakyLedger fails WIN applies a fixed number of times before recovering
type flakyLedger struct {
	service.LedgerService
	mu       sync.Mutex
	failures int
	attempts int
}

func (f *flakyLedger) Apply(ctx context.Context, ref walletdomain.AccountRef, entry walletdomain.Entry) (*walletdomain.Transaction, bool, error) {
	if entry.Kind == walletdomain.KindWin {
		f.mu.Lock()
		f.attempts++
		fail := f.failures > 0
		if fail {
			f.failures--
		}
		f.mu.Unlock()
		if fail {
			return nil, false, errors.New("storage unavailable")
		}
	}
	return f.LedgerService.Apply(ctx, ref, entry)
}

// scriptFactory hands out scripted draw sources in order
type scriptFactory struct {
	mu      sync.Mutex
	scripts [][]int
	calls   int
}

func (f *scriptFactory) next(ref walletdomain.AccountRef) (engine.Source, usecase.DrawMeta) {
	f.mu.Lock()
	defer f.mu.Unlock()

	script := f.scripts[f.calls%len(f.scripts)]
	meta := usecase.DrawMeta{SeedHash: "test-hash", ClientSeed: "test-client", Nonce: uint64(f.calls)}
	f.calls++
	return engine.NewScriptSource(script...), meta
}

func testLimits() domain.Limits {
	return domain.Limits{
		engine.GameDice:   {Min: decimal.RequireFromString("0.10"), Max: decimal.NewFromInt(1000)},
		engine.GameMines:  {Min: decimal.RequireFromString("0.10"), Max: decimal.NewFromInt(1000)},
		engine.GameSlots:  {Min: decimal.RequireFromString("0.10"), Max: decimal.NewFromInt(1000)},
		engine.GamePlinko: {Min: decimal.RequireFromString("0.10"), Max: decimal.NewFromInt(1000)},
	}
}

type fixture struct {
	coordinator *usecase.Coordinator
	ledger      service.LedgerService
	push        *recordingPush
	factory     *scriptFactory
}

func newFixture(t *testing.T, scripts ...[]int) *fixture {
	t.Helper()
	if len(scripts) == 0 {
		scripts = [][]int{{0}}
	}

	ledger := walletusecase.NewLedgerUseCase(walletmemory.NewLedgerRepository())
	push := &recordingPush{}
	factory := &scriptFactory{scripts: scripts}

	coordinator := usecase.NewCoordinator(
		ledger, push, memory.NewRoundRepository(), nil,
		engine.DefaultConfig(), testLimits(),
	).WithSourceFactory(factory.next).WithSleep(func(time.Duration) {})

	return &fixture{coordinator: coordinator, ledger: ledger, push: push, factory: factory}
}

func (f *fixture) fund(t *testing.T, amount string) {
	t.Helper()
	_, err := f.coordinator.Adjust(context.Background(), testRef,
		decimal.RequireFromString(amount), "grant-"+amount, "test grant")
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	balance, err := f.coordinator.Balance(context.Background(), testRef)
	require.NoError(t, err)
	return balance
}

func diceBet(amount, idemKey string) domain.BetRequest {
	return domain.BetRequest{
		Account:        testRef,
		Game:           engine.GameDice,
		Amount:         decimal.RequireFromString(amount),
		Params:         engine.Params{DiceTarget: decimal.NewFromInt(50), DiceRollOver: true},
		IdempotencyKey: idemKey,
	}
}

// Balance 100.00, bet 10.00 on dice target 50 rollOver (multiplier 1.98),
// forced winning draw: resulting balance 100 - 10 + 19.80 = 109.80.
func TestSimpleWinScenario(t *testing.T) {
	f := newFixture(t, []int{9999})
	f.fund(t, "100.00")

	res, err := f.coordinator.PlaceBet(context.Background(), diceBet("10.00", "bet-1"))
	require.NoError(t, err)

	assert.True(t, res.IsWin)
	assert.True(t, res.Multiplier.Equal(decimal.RequireFromString("1.98")))
	assert.True(t, res.WinAmount.Equal(decimal.RequireFromString("19.80")))
	assert.True(t, res.ResultingBalance.Equal(decimal.RequireFromString("109.80")),
		"got %s", res.ResultingBalance)
	assert.True(t, f.balance(t).Equal(decimal.RequireFromString("109.80")))

	// grant, debit, credit published in ledger order
	events := f.push.published()
	require.Len(t, events, 3)
	assert.Equal(t, walletdomain.KindAdjustment, events[0].Kind)
	assert.Equal(t, walletdomain.KindBet, events[1].Kind)
	assert.Equal(t, walletdomain.KindWin, events[2].Kind)
	assert.True(t, events[1].ResultingBalance.Equal(decimal.RequireFromString("90.00")))
}

func TestDuplicateSubmissionIdenticalResponses(t *testing.T) {
	f := newFixture(t, []int{9999})
	f.fund(t, "100.00")
	ctx := context.Background()

	first, err := f.coordinator.PlaceBet(ctx, diceBet("10.00", "bet-1"))
	require.NoError(t, err)
	second, err := f.coordinator.PlaceBet(ctx, diceBet("10.00", "bet-1"))
	require.NoError(t, err)

	assert.Equal(t, first, second, "both responses must be identical")
	assert.True(t, f.balance(t).Equal(decimal.RequireFromString("109.80")),
		"balance must change exactly once")

	// the replay must not publish again: grant + bet + win only
	assert.Len(t, f.push.published(), 3)
	assert.Equal(t, 1, f.factory.calls, "replay must not consume randomness")
}

func TestDuplicateKeyMismatchedParams(t *testing.T) {
	f := newFixture(t, []int{9999})
	f.fund(t, "100.00")
	ctx := context.Background()

	_, err := f.coordinator.PlaceBet(ctx, diceBet("10.00", "bet-1"))
	require.NoError(t, err)

	_, err = f.coordinator.PlaceBet(ctx, diceBet("20.00", "bet-1"))
	assert.ErrorIs(t, err, walletdomain.ErrDuplicateTransaction)
	assert.True(t, f.balance(t).Equal(decimal.RequireFromString("109.80")))
}

func TestDuplicateKeyMismatchedGameParams(t *testing.T) {
	f := newFixture(t, []int{9999})
	f.fund(t, "100.00")
	ctx := context.Background()

	first, err := f.coordinator.PlaceBet(ctx, diceBet("10.00", "bet-1"))
	require.NoError(t, err)
	require.True(t, first.Multiplier.Equal(decimal.RequireFromString("1.98")))

	// same key and stake, different target: a collision, never a replay
	req := diceBet("10.00", "bet-1")
	req.Params.DiceTarget = decimal.NewFromInt(98)
	_, err = f.coordinator.PlaceBet(ctx, req)
	assert.ErrorIs(t, err, walletdomain.ErrDuplicateTransaction)

	// same key, different game
	req = diceBet("10.00", "bet-1")
	req.Game = engine.GameSlots
	req.Params = engine.Params{}
	_, err = f.coordinator.PlaceBet(ctx, req)
	assert.ErrorIs(t, err, walletdomain.ErrDuplicateTransaction)

	assert.True(t, f.balance(t).Equal(decimal.RequireFromString("109.80")))
	assert.Len(t, f.push.published(), 3, "the collision must not move money")
}

func TestInsufficientFundsLeavesBalanceUnchanged(t *testing.T) {
	f := newFixture(t, []int{9999})
	f.fund(t, "5.00")

	_, err := f.coordinator.PlaceBet(context.Background(), diceBet("10.00", "bet-1"))
	assert.ErrorIs(t, err, walletdomain.ErrInsufficientFunds)
	assert.True(t, f.balance(t).Equal(decimal.RequireFromString("5.00")))

	// only the grant was published
	assert.Len(t, f.push.published(), 1)
}

func TestValidationRejectsBeforeAnyStateChange(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "100.00")
	ctx := context.Background()

	req := diceBet("10.00", "bet-1")
	req.Params.DiceTarget = decimal.NewFromInt(1) // outside [2,98]
	_, err := f.coordinator.PlaceBet(ctx, req)
	assert.ErrorIs(t, err, engine.ErrInvalidParams)

	req = diceBet("5000.00", "bet-2")
	_, err = f.coordinator.PlaceBet(ctx, req)
	assert.ErrorIs(t, err, domain.ErrBetOutOfRange)

	req = diceBet("10.00", "")
	_, err = f.coordinator.PlaceBet(ctx, req)
	assert.ErrorIs(t, err, engine.ErrInvalidParams)

	assert.True(t, f.balance(t).Equal(decimal.RequireFromString("100.00")))
	assert.Equal(t, 0, f.factory.calls, "validation failures must not consume randomness")
}

func TestCreditRetriesUntilApplied(t *testing.T) {
	ledger := walletusecase.NewLedgerUseCase(walletmemory.NewLedgerRepository())
	flaky := &flakyLedger{LedgerService: ledger, failures: 4}
	push := &recordingPush{}
	factory := &scriptFactory{scripts: [][]int{{9999}}}

	var slept []time.Duration
	coordinator := usecase.NewCoordinator(
		flaky, push, memory.NewRoundRepository(), nil,
		engine.DefaultConfig(), testLimits(),
	).WithSourceFactory(factory.next).WithSleep(func(d time.Duration) {
		slept = append(slept, d)
	})

	_, err := coordinator.Adjust(context.Background(), testRef, decimal.RequireFromString("100.00"), "grant", "test")
	require.NoError(t, err)

	res, err := coordinator.PlaceBet(context.Background(), diceBet("10.00", "bet-1"))
	require.NoError(t, err, "a debited win must eventually be credited")

	assert.True(t, res.ResultingBalance.Equal(decimal.RequireFromString("109.80")))
	assert.Equal(t, 5, flaky.attempts, "4 failures then success")
	require.Len(t, slept, 4)
	for i := 1; i < len(slept); i++ {
		assert.GreaterOrEqual(t, slept[i], slept[i-1], "backoff must not shrink")
	}
}

// disconnectLedger refuses WIN applies once the caller's context is gone,
// the way a context-aware store does
type disconnectLedger struct {
	service.LedgerService
	mu          sync.Mutex
	winAttempts int
}

func (l *disconnectLedger) Apply(ctx context.Context, ref walletdomain.AccountRef, entry walletdomain.Entry) (*walletdomain.Transaction, bool, error) {
	if entry.Kind == walletdomain.KindWin {
		l.mu.Lock()
		l.winAttempts++
		l.mu.Unlock()
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
	}
	return l.LedgerService.Apply(ctx, ref, entry)
}

// collidingLedger fails WIN applies with a permanent key collision
type collidingLedger struct {
	service.LedgerService
	mu          sync.Mutex
	winAttempts int
}

func (l *collidingLedger) Apply(ctx context.Context, ref walletdomain.AccountRef, entry walletdomain.Entry) (*walletdomain.Transaction, bool, error) {
	if entry.Kind == walletdomain.KindWin {
		l.mu.Lock()
		l.winAttempts++
		l.mu.Unlock()
		return nil, false, walletdomain.ErrDuplicateTransaction
	}
	return l.LedgerService.Apply(ctx, ref, entry)
}

// A client that disconnects after the debit must still be credited: the
// credit runs detached from the request context.
func TestCreditSurvivesClientDisconnect(t *testing.T) {
	ledger := walletusecase.NewLedgerUseCase(walletmemory.NewLedgerRepository())
	disconnect := &disconnectLedger{LedgerService: ledger}
	push := &recordingPush{}
	factory := &scriptFactory{scripts: [][]int{{9999}}}

	coordinator := usecase.NewCoordinator(
		disconnect, push, memory.NewRoundRepository(), nil,
		engine.DefaultConfig(), testLimits(),
	).WithSourceFactory(factory.next).WithSleep(func(time.Duration) {})

	_, err := coordinator.Adjust(context.Background(), testRef, decimal.RequireFromString("100.00"), "grant", "test")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // the request context is gone before crediting starts

	res, err := coordinator.PlaceBet(ctx, diceBet("10.00", "bet-1"))
	require.NoError(t, err, "a debited win must be credited even after disconnect")
	assert.True(t, res.ResultingBalance.Equal(decimal.RequireFromString("109.80")))
	assert.Equal(t, 1, disconnect.winAttempts, "detached credit must land on the first attempt")
}

func TestCreditKeyCollisionIsNotRetried(t *testing.T) {
	ledger := walletusecase.NewLedgerUseCase(walletmemory.NewLedgerRepository())
	colliding := &collidingLedger{LedgerService: ledger}
	push := &recordingPush{}
	factory := &scriptFactory{scripts: [][]int{{9999}}}

	coordinator := usecase.NewCoordinator(
		colliding, push, memory.NewRoundRepository(), nil,
		engine.DefaultConfig(), testLimits(),
	).WithSourceFactory(factory.next).WithSleep(func(time.Duration) {})

	_, err := coordinator.Adjust(context.Background(), testRef, decimal.RequireFromString("100.00"), "grant", "test")
	require.NoError(t, err)

	_, err = coordinator.PlaceBet(context.Background(), diceBet("10.00", "bet-1"))
	assert.ErrorIs(t, err, walletdomain.ErrDuplicateTransaction)
	assert.Equal(t, 1, colliding.winAttempts, "a permanent collision must not spin the retry loop")
}

// A restart loses the in-memory seed state. A bet that was debited under
// the old seed must not be silently re-drawn under the new one.
func TestDebitedBetWithLostSeedEscalates(t *testing.T) {
	ledger := walletusecase.NewLedgerUseCase(walletmemory.NewLedgerRepository())
	ctx := context.Background()

	_, _, err := ledger.Apply(ctx, testRef, walletdomain.Entry{
		IdempotencyKey: "grant", Kind: walletdomain.KindAdjustment,
		Amount: decimal.RequireFromString("100.00"),
	})
	require.NoError(t, err)

	// the debit recorded before the restart, committed against a seed this
	// process does not hold
	_, _, err = ledger.Apply(ctx, testRef, walletdomain.Entry{
		IdempotencyKey: "bet-1", Kind: walletdomain.KindBet,
		Amount: decimal.RequireFromString("-10.00"), GameType: "dice",
		GameData: `{"params":{"dice_target":"50","dice_roll_over":true},"draw_meta":{"seed_hash":"pre-restart-hash","client_seed":"default","nonce":3}}`,
	})
	require.NoError(t, err)

	// fresh coordinator with its own random seed commitment
	coordinator := usecase.NewCoordinator(
		ledger, &recordingPush{}, memory.NewRoundRepository(), nil,
		engine.DefaultConfig(), testLimits(),
	).WithSleep(func(time.Duration) {})

	_, err = coordinator.PlaceBet(ctx, diceBet("10.00", "bet-1"))
	assert.ErrorIs(t, err, domain.ErrOutcomeUnrecoverable)

	// the debit stands untouched for manual reconciliation
	balance, err := ledger.Balance(ctx, testRef)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("90.00")))
}

// TestPerAccountOrdering hammers one account concurrently and checks that
// published events carry strictly increasing ledger sequence numbers, i.e.
// the broadcast never reorders relative to ledger order.
func TestPerAccountOrdering(t *testing.T) {
	f := newFixture(t, []int{9999}, []int{0})
	f.fund(t, "10000.00")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.coordinator.PlaceBet(context.Background(), diceBet("1.00", fmt.Sprintf("bet-%d", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	events := f.push.published()
	for i := 1; i < len(events); i++ {
		assert.Equal(t, events[i-1].Seq+1, events[i].Seq,
			"event %d out of order: seq %d after %d", i, events[i].Seq, events[i-1].Seq)
	}
}

func TestAdjustIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.coordinator.Adjust(ctx, testRef, decimal.RequireFromString("50.00"), "adj-1", "comp credit")
	require.NoError(t, err)
	second, err := f.coordinator.Adjust(ctx, testRef, decimal.RequireFromString("50.00"), "adj-1", "comp credit")
	require.NoError(t, err)

	assert.Equal(t, first.TxID, second.TxID)
	assert.True(t, f.balance(t).Equal(decimal.RequireFromString("50.00")))
	assert.Len(t, f.push.published(), 1, "replayed adjustment must not publish again")
}

func TestPaytableLookup(t *testing.T) {
	f := newFixture(t)

	table, err := f.coordinator.Paytable(engine.GameSlots)
	require.NoError(t, err)
	assert.IsType(t, &engine.SlotsPaytable{}, table)

	_, err = f.coordinator.Paytable(engine.GameDice)
	assert.ErrorIs(t, err, domain.ErrUnknownGame)
}

func TestRotateSeedRevealsAndRecommits(t *testing.T) {
	f := newFixture(t)

	before := f.coordinator.Fairness(testRef)
	assert.NotEmpty(t, before.SeedHash)

	rotation, err := f.coordinator.RotateSeed(testRef, "my-seed")
	require.NoError(t, err)

	assert.Equal(t, before.SeedHash, rotation.Previous.SeedHash)
	assert.NotEqual(t, rotation.Previous.SeedHash, rotation.Current.SeedHash)
	assert.Equal(t, "my-seed", rotation.Current.ClientSeed)
	assert.NotEmpty(t, rotation.RevealedSeed)

	after := f.coordinator.Fairness(testRef)
	assert.Equal(t, rotation.Current.SeedHash, after.SeedHash)
	assert.Equal(t, uint64(0), after.NextNonce)
}
