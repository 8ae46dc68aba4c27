// Package usecase implements the settlement coordinator: it orchestrates
// one wager end-to-end through VALIDATING, DEBITING, RESOLVING, CREDITING
// and SETTLED, with at most one in-flight settlement per account.
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/frankieli/instant_games/internal/modules/engine"
	"github.com/frankieli/instant_games/internal/modules/settlement/domain"
	walletdomain "github.com/frankieli/instant_games/internal/modules/wallet/domain"
	"github.com/frankieli/instant_games/pkg/logger"
	"github.com/frankieli/instant_games/pkg/service"
)

const (
	creditBackoffInitial = 100 * time.Millisecond
	creditBackoffMax     = 5 * time.Second
	creditEscalateAfter  = 10 // attempts before the failure is escalated to the ops log

	resultCacheMax = 16384
)

// DrawMeta records which committed seed pair and nonce produced a wager's
// draws, so the outcome can be replayed and audited.
type DrawMeta struct {
	SeedHash   string `json:"seed_hash"`
	ClientSeed string `json:"client_seed"`
	Nonce      uint64 `json:"nonce"`
}

// SourceFactory yields a fresh draw source for one wager on the account
type SourceFactory func(ref walletdomain.AccountRef) (engine.Source, DrawMeta)

// Coordinator settles wagers against the ledger. All balance mutations for
// an account happen inside that account's critical section, which also
// serializes the broadcast publishes so subscribers observe ledger order.
type Coordinator struct {
	ledger  service.LedgerService
	push    service.PushService
	rounds  domain.RoundRepository
	archive domain.ArchiveRepository // optional, may be nil
	cfg     engine.Config
	limits  domain.Limits

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	seedsMu sync.Mutex
	seeds   map[string]*seedState

	resultsMu    sync.Mutex
	results      map[string]settledResult
	resultsOrder []string

	// injectable for tests
	newSource SourceFactory
	sleep     func(time.Duration)
}

type seedState struct {
	serverSeed []byte
	clientSeed string
	nonce      uint64
}

// settledResult pairs a cached outcome with the fingerprint of the request
// that produced it, so a key reuse with different parameters is detected
// instead of replayed
type settledResult struct {
	fingerprint string
	res         *domain.BetResult
}

// NewCoordinator creates a settlement coordinator
func NewCoordinator(
	ledger service.LedgerService,
	push service.PushService,
	rounds domain.RoundRepository,
	archive domain.ArchiveRepository,
	cfg engine.Config,
	limits domain.Limits,
) *Coordinator {
	c := &Coordinator{
		ledger:  ledger,
		push:    push,
		rounds:  rounds,
		archive: archive,
		cfg:     cfg,
		limits:  limits,
		locks:   make(map[string]*sync.Mutex),
		seeds:   make(map[string]*seedState),
		results: make(map[string]settledResult),
		sleep:   time.Sleep,
	}
	c.newSource = c.fairSource
	return c
}

// WithSourceFactory overrides the draw source factory (for tests and audit
// replay)
func (c *Coordinator) WithSourceFactory(f SourceFactory) *Coordinator {
	c.newSource = f
	return c
}

// WithSleep overrides the retry sleeper (for tests)
func (c *Coordinator) WithSleep(sleep func(time.Duration)) *Coordinator {
	c.sleep = sleep
	return c
}

// PlaceBet settles one wager. Single-shot games (dice, slots, plinko)
// return the final outcome; mines creates an active round instead and
// settles through Reveal/Cashout.
func (c *Coordinator) PlaceBet(ctx context.Context, req domain.BetRequest) (*domain.BetResult, error) {
	ctx = logger.WithFields(ctx, map[string]interface{}{
		"user_id":  req.Account.UserID,
		"currency": req.Account.Currency,
		"game":     string(req.Game),
	})

	// VALIDATING: static rules only, no ledger interaction on failure
	if err := c.validate(req); err != nil {
		logger.Warn(ctx).Err(err).Str("amount", req.Amount.String()).Msg("bet rejected in validation")
		return nil, err
	}

	if req.Game == engine.GameMines {
		return c.startRound(ctx, req)
	}

	lock := c.accountLock(req.Account)
	lock.Lock()
	defer lock.Unlock()

	fingerprint := requestFingerprint(req)
	cached, err := c.cachedResult(req.IdempotencyKey, fingerprint)
	if err != nil {
		logger.Warn(ctx).Str("idempotency_key", req.IdempotencyKey).Msg("idempotency key reused with different parameters")
		return nil, err
	}
	if cached != nil {
		logger.Info(ctx).Str("idempotency_key", req.IdempotencyKey).Msg("bet replayed from settled result")
		return cached, nil
	}

	src, meta := c.newSource(req.Account)
	gameData := marshalGameData(req.Params, meta)

	// DEBITING
	betTx, applied, err := c.ledger.Apply(ctx, req.Account, walletdomain.Entry{
		IdempotencyKey: req.IdempotencyKey,
		Kind:           walletdomain.KindBet,
		Amount:         req.Amount.Neg(),
		GameType:       string(req.Game),
		GameData:       gameData,
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		// Debit landed on a previous attempt but the settled result is
		// gone (restart). Replay the recorded draw meta so the outcome is
		// identical to the one the original draw would have produced.
		if recovered, ok := c.recoverMeta(betTx); ok {
			replay, rerr := c.sourceAt(req.Account, recovered)
			if rerr != nil {
				logger.Error(ctx).
					Err(rerr).
					Str("tx_id", betTx.TxID).
					Str("recorded_seed_hash", recovered.SeedHash).
					Str("escalation", "manual_reconciliation_candidate").
					Msg("debited bet cannot be re-resolved under current seed")
				return nil, rerr
			}
			meta = recovered
			src = replay
			logger.Warn(ctx).
				Str("tx_id", betTx.TxID).
				Uint64("nonce", meta.Nonce).
				Msg("re-resolving debited bet from recorded draw meta")
		}
	}
	c.push.PublishTransaction(ctx, betTx)

	// RESOLVING: pure; held inside the lock only to keep publish order
	outcome, err := c.cfg.Resolve(req.Game, req.Amount, req.Params, src)
	if err != nil {
		// Parameters were validated above; reaching this is a contract bug.
		return nil, fmt.Errorf("resolve after debit: %w", err)
	}

	res := &domain.BetResult{
		TxID:             betTx.TxID,
		Game:             req.Game,
		IsWin:            outcome.IsWin,
		Multiplier:       outcome.Multiplier,
		BetAmount:        req.Amount,
		WinAmount:        outcome.WinAmount,
		ResultingBalance: betTx.ResultingBalance,
		GameData:         marshalArtifacts(outcome.Artifacts, meta),
		SettledAt:        time.Now(),
	}

	// CREDITING: a debited bet that never resolves is a fund-loss bug, so
	// crediting retries until it lands.
	if outcome.WinAmount.IsPositive() {
		winTx, err := c.creditWithRetry(ctx, req.Account, walletdomain.Entry{
			IdempotencyKey: req.IdempotencyKey + ":win",
			Kind:           walletdomain.KindWin,
			Amount:         outcome.WinAmount,
			GameType:       string(req.Game),
			GameData:       res.GameData,
		})
		if err != nil {
			return nil, fmt.Errorf("credit win: %w", err)
		}
		res.ResultingBalance = winTx.ResultingBalance
		c.push.PublishTransaction(ctx, winTx)
	}

	// SETTLED
	c.storeResult(req.IdempotencyKey, fingerprint, res)
	logger.Info(ctx).
		Str("tx_id", res.TxID).
		Bool("is_win", res.IsWin).
		Str("multiplier", res.Multiplier.String()).
		Str("win_amount", res.WinAmount.String()).
		Str("resulting_balance", res.ResultingBalance.String()).
		Msg("bet settled")
	return res, nil
}

// Adjust applies an ADJUSTMENT transaction through the same locking and
// idempotency discipline as bets. Used by the admin boundary; the outcome
// engine is bypassed.
func (c *Coordinator) Adjust(ctx context.Context, ref walletdomain.AccountRef, amount decimal.Decimal, idemKey, reason string) (*walletdomain.Transaction, error) {
	lock := c.accountLock(ref)
	lock.Lock()
	defer lock.Unlock()

	tx, applied, err := c.ledger.Apply(ctx, ref, walletdomain.Entry{
		IdempotencyKey: idemKey,
		Kind:           walletdomain.KindAdjustment,
		Amount:         amount,
		GameData:       fmt.Sprintf(`{"reason":%q}`, reason),
	})
	if err != nil {
		return nil, err
	}
	if applied {
		c.push.PublishTransaction(ctx, tx)
	}
	return tx, nil
}

// Balance returns the account's authoritative balance
func (c *Coordinator) Balance(ctx context.Context, ref walletdomain.AccountRef) (decimal.Decimal, error) {
	return c.ledger.Balance(ctx, ref)
}

// Transactions returns the account's most recent transactions
func (c *Coordinator) Transactions(ctx context.Context, ref walletdomain.AccountRef, limit int) ([]*walletdomain.Transaction, error) {
	return c.ledger.Transactions(ctx, ref, limit)
}

// Paytable exposes the auditable paytable data for a game
func (c *Coordinator) Paytable(game engine.GameType) (interface{}, error) {
	switch game {
	case engine.GameSlots:
		return c.cfg.Slots, nil
	case engine.GamePlinko:
		return c.cfg.Plinko, nil
	default:
		return nil, domain.ErrUnknownGame
	}
}

func (c *Coordinator) validate(req domain.BetRequest) error {
	if req.IdempotencyKey == "" {
		return fmt.Errorf("%w: missing idempotency key", engine.ErrInvalidParams)
	}
	if !req.Amount.IsPositive() {
		return fmt.Errorf("%w: bet must be positive", engine.ErrInvalidParams)
	}
	if err := c.limits.Check(req.Game, req.Amount); err != nil {
		return err
	}
	switch req.Game {
	case engine.GameDice:
		_, err := c.cfg.DiceMultiplier(req.Params.DiceTarget, req.Params.DiceRollOver)
		return err
	case engine.GameMines:
		return engine.ValidateMineCount(req.Params.MineCount)
	}
	return nil
}

// creditWithRetry applies a WIN credit, retrying with exponential backoff
// until it succeeds. The idempotency key stays constant across attempts so
// a retry of an already-applied credit returns the stored transaction.
// Crediting runs detached from the request context: a client disconnect
// after the debit must not abort the credit. A key collision is permanent
// and is returned instead of retried.
func (c *Coordinator) creditWithRetry(ctx context.Context, ref walletdomain.AccountRef, entry walletdomain.Entry) (*walletdomain.Transaction, error) {
	ctx = context.WithoutCancel(ctx)

	backoff := creditBackoffInitial
	for attempt := 1; ; attempt++ {
		tx, _, err := c.ledger.Apply(ctx, ref, entry)
		if err == nil {
			return tx, nil
		}
		if errors.Is(err, walletdomain.ErrDuplicateTransaction) {
			logger.Error(ctx).
				Err(err).
				Str("idempotency_key", entry.IdempotencyKey).
				Str("escalation", "manual_reconciliation_candidate").
				Msg("credit key collision, not retryable")
			return nil, err
		}

		event := logger.Warn(ctx)
		if attempt >= creditEscalateAfter {
			event = logger.Error(ctx).Str("escalation", "manual_reconciliation_candidate")
		}
		event.
			Err(err).
			Int("attempt", attempt).
			Str("idempotency_key", entry.IdempotencyKey).
			Str("amount", entry.Amount.String()).
			Msg("credit failed, retrying")

		c.sleep(backoff)
		backoff *= 2
		if backoff > creditBackoffMax {
			backoff = creditBackoffMax
		}
	}
}

func (c *Coordinator) accountLock(ref walletdomain.AccountRef) *sync.Mutex {
	c.locksMu.Lock()
	defer c.locksMu.Unlock()

	lock, ok := c.locks[ref.Key()]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[ref.Key()] = lock
	}
	return lock
}

// cachedResult looks up a settled result for the key. A hit with a
// different request fingerprint is a key collision, not a replay.
func (c *Coordinator) cachedResult(idemKey, fingerprint string) (*domain.BetResult, error) {
	c.resultsMu.Lock()
	defer c.resultsMu.Unlock()

	stored, ok := c.results[idemKey]
	if !ok {
		return nil, nil
	}
	if stored.fingerprint != fingerprint {
		return nil, walletdomain.ErrDuplicateTransaction
	}
	return stored.res, nil
}

func (c *Coordinator) storeResult(idemKey, fingerprint string, res *domain.BetResult) {
	c.resultsMu.Lock()
	defer c.resultsMu.Unlock()

	if _, ok := c.results[idemKey]; !ok {
		c.resultsOrder = append(c.resultsOrder, idemKey)
	}
	c.results[idemKey] = settledResult{fingerprint: fingerprint, res: res}

	for len(c.resultsOrder) > resultCacheMax {
		oldest := c.resultsOrder[0]
		c.resultsOrder = c.resultsOrder[1:]
		delete(c.results, oldest)
	}
}

type gameDataPayload struct {
	Params   paramsPayload `json:"params"`
	DrawMeta DrawMeta      `json:"draw_meta"`
}

type paramsPayload struct {
	DiceTarget   *decimal.Decimal `json:"dice_target,omitempty"`
	DiceRollOver *bool            `json:"dice_roll_over,omitempty"`
	MineCount    *int             `json:"mine_count,omitempty"`
}

func buildParams(params engine.Params) paramsPayload {
	var p paramsPayload
	if !params.DiceTarget.IsZero() {
		p.DiceTarget = &params.DiceTarget
		p.DiceRollOver = &params.DiceRollOver
	}
	if params.MineCount > 0 {
		p.MineCount = &params.MineCount
	}
	return p
}

func marshalGameData(params engine.Params, meta DrawMeta) string {
	data, _ := json.Marshal(gameDataPayload{Params: buildParams(params), DrawMeta: meta})
	return string(data)
}

// requestFingerprint normalizes the identity of a bet request: the game,
// the stake and the caller-supplied parameters. Draw meta is excluded, it
// differs between attempts of the same request.
func requestFingerprint(req domain.BetRequest) string {
	params, _ := json.Marshal(buildParams(req.Params))
	return string(req.Game) + "|" + req.Amount.String() + "|" + string(params)
}

func marshalArtifacts(artifacts interface{}, meta DrawMeta) string {
	data, _ := json.Marshal(map[string]interface{}{
		"artifacts": artifacts,
		"draw_meta": meta,
	})
	return string(data)
}

func (c *Coordinator) recoverMeta(tx *walletdomain.Transaction) (DrawMeta, bool) {
	var payload gameDataPayload
	if err := json.Unmarshal([]byte(tx.GameData), &payload); err != nil {
		return DrawMeta{}, false
	}
	if payload.DrawMeta.SeedHash == "" {
		return DrawMeta{}, false
	}
	return payload.DrawMeta, true
}

// fairSource hands out the account's next committed draw source
func (c *Coordinator) fairSource(ref walletdomain.AccountRef) (engine.Source, DrawMeta) {
	c.seedsMu.Lock()
	defer c.seedsMu.Unlock()

	state := c.seedState(ref)
	meta := DrawMeta{
		SeedHash:   engine.SeedHash(state.serverSeed),
		ClientSeed: state.clientSeed,
		Nonce:      state.nonce,
	}
	src := engine.NewFairSource(state.serverSeed, state.clientSeed, state.nonce)
	state.nonce++
	return src, meta
}

// sourceAt rebuilds the source for a recorded draw meta. The rebuilt draws
// only match the original when the account's current server seed is the one
// the meta was committed against; anything else must not be re-drawn.
func (c *Coordinator) sourceAt(ref walletdomain.AccountRef, meta DrawMeta) (engine.Source, error) {
	c.seedsMu.Lock()
	defer c.seedsMu.Unlock()

	state := c.seedState(ref)
	if engine.SeedHash(state.serverSeed) != meta.SeedHash {
		return nil, domain.ErrOutcomeUnrecoverable
	}
	return engine.NewFairSource(state.serverSeed, meta.ClientSeed, meta.Nonce), nil
}

// seedState must be called with seedsMu held
func (c *Coordinator) seedState(ref walletdomain.AccountRef) *seedState {
	state, ok := c.seeds[ref.Key()]
	if !ok {
		seed, err := engine.RandomServerSeed()
		if err != nil {
			panic(fmt.Sprintf("settlement: server seed generation failed: %v", err))
		}
		state = &seedState{serverSeed: seed, clientSeed: "default"}
		c.seeds[ref.Key()] = state
	}
	return state
}

// FairnessInfo is the public commitment for an account's current seed pair
type FairnessInfo struct {
	SeedHash   string `json:"seed_hash"`
	ClientSeed string `json:"client_seed"`
	NextNonce  uint64 `json:"next_nonce"`
}

// Fairness returns the current commitment for the account
func (c *Coordinator) Fairness(ref walletdomain.AccountRef) FairnessInfo {
	c.seedsMu.Lock()
	defer c.seedsMu.Unlock()

	state := c.seedState(ref)
	return FairnessInfo{
		SeedHash:   engine.SeedHash(state.serverSeed),
		ClientSeed: state.clientSeed,
		NextNonce:  state.nonce,
	}
}

// SeedRotation is the result of rotating an account's server seed: the old
// seed is revealed for verification and a fresh commitment takes effect.
type SeedRotation struct {
	RevealedSeed string       `json:"revealed_seed"`
	Previous     FairnessInfo `json:"previous"`
	Current      FairnessInfo `json:"current"`
}

// RotateSeed reveals the account's current server seed and commits to a new
// one. An empty clientSeed keeps the previous client seed.
func (c *Coordinator) RotateSeed(ref walletdomain.AccountRef, clientSeed string) (*SeedRotation, error) {
	c.seedsMu.Lock()
	defer c.seedsMu.Unlock()

	state := c.seedState(ref)
	previous := FairnessInfo{
		SeedHash:   engine.SeedHash(state.serverSeed),
		ClientSeed: state.clientSeed,
		NextNonce:  state.nonce,
	}
	revealed := fmt.Sprintf("%x", state.serverSeed)

	seed, err := engine.RandomServerSeed()
	if err != nil {
		return nil, err
	}
	state.serverSeed = seed
	state.nonce = 0
	if clientSeed != "" {
		state.clientSeed = clientSeed
	}

	return &SeedRotation{
		RevealedSeed: revealed,
		Previous:     previous,
		Current: FairnessInfo{
			SeedHash:   engine.SeedHash(state.serverSeed),
			ClientSeed: state.clientSeed,
			NextNonce:  0,
		},
	}, nil
}
