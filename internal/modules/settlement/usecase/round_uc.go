package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/frankieli/instant_games/internal/modules/engine"
	"github.com/frankieli/instant_games/internal/modules/settlement/domain"
	walletdomain "github.com/frankieli/instant_games/internal/modules/wallet/domain"
	"github.com/frankieli/instant_games/pkg/logger"
)

// startRound opens a mines round: the stake is debited up front and the
// mine positions are committed before the first reveal. Caller has already
// validated the request.
func (c *Coordinator) startRound(ctx context.Context, req domain.BetRequest) (*domain.BetResult, error) {
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
		logger.Info(ctx).Str("idempotency_key", req.IdempotencyKey).Msg("round start replayed from settled result")
		return cached, nil
	}

	active, err := c.rounds.GetActiveForAccount(ctx, req.Account)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, domain.ErrRoundInProgress
	}

	src, meta := c.newSource(req.Account)

	betTx, applied, err := c.ledger.Apply(ctx, req.Account, walletdomain.Entry{
		IdempotencyKey: req.IdempotencyKey,
		Kind:           walletdomain.KindBet,
		Amount:         req.Amount.Neg(),
		GameType:       string(req.Game),
		GameData:       marshalGameData(req.Params, meta),
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		if recovered, ok := c.recoverMeta(betTx); ok {
			replay, rerr := c.sourceAt(req.Account, recovered)
			if rerr != nil {
				logger.Error(ctx).
					Err(rerr).
					Str("tx_id", betTx.TxID).
					Str("recorded_seed_hash", recovered.SeedHash).
					Str("escalation", "manual_reconciliation_candidate").
					Msg("debited round cannot be re-opened under current seed")
				return nil, rerr
			}
			src = replay
			logger.Warn(ctx).
				Str("tx_id", betTx.TxID).
				Uint64("nonce", recovered.Nonce).
				Msg("re-opening debited round from recorded draw meta")
		}
	}
	c.push.PublishTransaction(ctx, betTx)

	positions, err := engine.DrawMinePositions(req.Params.MineCount, src)
	if err != nil {
		return nil, fmt.Errorf("draw mines after debit: %w", err)
	}
	multiplier, err := c.cfg.MinesMultiplier(req.Params.MineCount, 0)
	if err != nil {
		return nil, fmt.Errorf("mines multiplier after debit: %w", err)
	}

	round := domain.NewGameRound(req.Account, req.Amount, req.Params.MineCount, positions, req.IdempotencyKey, multiplier)
	if err := c.rounds.Save(ctx, round); err != nil {
		return nil, err
	}

	res := &domain.BetResult{
		TxID:             betTx.TxID,
		RoundID:          round.RoundID,
		Game:             req.Game,
		Multiplier:       multiplier,
		BetAmount:        req.Amount,
		ResultingBalance: betTx.ResultingBalance,
		SettledAt:        time.Now(),
	}
	c.storeResult(req.IdempotencyKey, fingerprint, res)
	logger.Info(ctx).
		Str("round_id", round.RoundID).
		Int("mine_count", req.Params.MineCount).
		Str("resulting_balance", res.ResultingBalance.String()).
		Msg("round started")
	return res, nil
}

// Reveal uncovers one tile of the caller's active round. A safe tile grows
// the multiplier; a mine busts the round. The stake was debited at round
// start, so a bust writes no ledger transaction.
func (c *Coordinator) Reveal(ctx context.Context, ref walletdomain.AccountRef, roundID string, tile int) (*domain.RevealResult, error) {
	lock := c.accountLock(ref)
	lock.Lock()
	defer lock.Unlock()

	round, err := c.ownedActiveRound(ctx, ref, roundID)
	if err != nil {
		return nil, err
	}
	if tile < 0 || tile >= engine.MinesGridSize {
		return nil, domain.ErrTileOutOfRange
	}
	if round.IsRevealed(tile) {
		return nil, domain.ErrTileRevealed
	}

	ctx = logger.WithFields(ctx, map[string]interface{}{
		"user_id":  ref.UserID,
		"round_id": roundID,
	})

	if round.IsMine(tile) {
		round.Status = domain.RoundStatusBusted
		c.finishRound(ctx, round)
		logger.Info(ctx).Int("tile", tile).Int("revealed", len(round.RevealedTiles)).Msg("round busted")
		return &domain.RevealResult{
			RoundID:       round.RoundID,
			Tile:          tile,
			IsMine:        true,
			Status:        round.Status,
			Multiplier:    round.Multiplier,
			RevealedTiles: round.RevealedTiles,
			MinePositions: round.MinePositions,
		}, nil
	}

	round.RevealedTiles = append(round.RevealedTiles, tile)
	multiplier, err := c.cfg.MinesMultiplier(round.MineCount, len(round.RevealedTiles))
	if err != nil {
		return nil, err
	}
	round.Multiplier = multiplier
	if err := c.rounds.Save(ctx, round); err != nil {
		return nil, err
	}

	return &domain.RevealResult{
		RoundID:       round.RoundID,
		Tile:          tile,
		Status:        round.Status,
		Multiplier:    round.Multiplier,
		RevealedTiles: round.RevealedTiles,
		PotentialWin:  round.BetAmount.Mul(round.Multiplier).Truncate(2),
	}, nil
}

// Cashout settles the caller's active round at its current multiplier. At
// least one tile must be revealed.
func (c *Coordinator) Cashout(ctx context.Context, ref walletdomain.AccountRef, roundID string) (*domain.BetResult, error) {
	lock := c.accountLock(ref)
	lock.Lock()
	defer lock.Unlock()

	round, err := c.ownedActiveRound(ctx, ref, roundID)
	if err != nil {
		return nil, err
	}
	if len(round.RevealedTiles) == 0 {
		return nil, domain.ErrNoTilesRevealed
	}

	ctx = logger.WithFields(ctx, map[string]interface{}{
		"user_id":  ref.UserID,
		"round_id": roundID,
	})

	winAmount := round.BetAmount.Mul(round.Multiplier).Truncate(2)
	round.Status = domain.RoundStatusCashedOut
	winTx, err := c.creditWithRetry(ctx, ref, walletdomain.Entry{
		IdempotencyKey: round.IdempotencyKey + ":cashout",
		Kind:           walletdomain.KindWin,
		Amount:         winAmount,
		GameType:       string(engine.GameMines),
		GameData:       marshalRoundResult(round),
	})
	if err != nil {
		round.Status = domain.RoundStatusActive
		return nil, fmt.Errorf("credit cashout: %w", err)
	}
	c.push.PublishTransaction(ctx, winTx)
	c.finishRound(ctx, round)

	logger.Info(ctx).
		Str("multiplier", round.Multiplier.String()).
		Str("win_amount", winAmount.String()).
		Msg("round cashed out")
	return &domain.BetResult{
		TxID:             winTx.TxID,
		RoundID:          round.RoundID,
		Game:             engine.GameMines,
		IsWin:            true,
		Multiplier:       round.Multiplier,
		BetAmount:        round.BetAmount,
		WinAmount:        winAmount,
		ResultingBalance: winTx.ResultingBalance,
		GameData:         marshalRoundResult(round),
		SettledAt:        time.Now(),
	}, nil
}

// ActiveRound returns the caller's active round with the mine positions
// withheld
func (c *Coordinator) ActiveRound(ctx context.Context, ref walletdomain.AccountRef) (*domain.GameRound, error) {
	round, err := c.rounds.GetActiveForAccount(ctx, ref)
	if err != nil || round == nil {
		return nil, err
	}
	redacted := *round
	redacted.MinePositions = nil
	return &redacted, nil
}

func (c *Coordinator) ownedActiveRound(ctx context.Context, ref walletdomain.AccountRef, roundID string) (*domain.GameRound, error) {
	round, err := c.rounds.Get(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if round.UserID != ref.UserID || round.Currency != ref.Currency {
		return nil, domain.ErrNotRoundOwner
	}
	if round.Status != domain.RoundStatusActive {
		return nil, domain.ErrRoundNotActive
	}
	return round, nil
}

// finishRound archives the terminal round and destroys the session state.
// Archive failures are logged, not propagated: the ledger already carries
// the money movement and session state must not outlive the round.
func (c *Coordinator) finishRound(ctx context.Context, round *domain.GameRound) {
	if c.archive != nil {
		archive := &domain.RoundArchive{
			RoundID:    round.RoundID,
			UserID:     round.UserID,
			Currency:   round.Currency,
			GameCode:   string(engine.GameMines),
			BetAmount:  round.BetAmount,
			Status:     string(round.Status),
			Result:     marshalRoundResult(round),
			StartedAt:  round.StartedAt,
			FinishedAt: time.Now(),
		}
		if round.Status == domain.RoundStatusCashedOut {
			archive.Payout = round.BetAmount.Mul(round.Multiplier).Truncate(2)
		}
		if err := c.archive.Create(ctx, archive); err != nil {
			logger.Error(ctx).Err(err).Str("round_id", round.RoundID).Msg("round archive write failed")
		}
	}
	if err := c.rounds.Delete(ctx, round.RoundID); err != nil {
		logger.Error(ctx).Err(err).Str("round_id", round.RoundID).Msg("round delete failed")
	}
}

func marshalRoundResult(round *domain.GameRound) string {
	data, _ := json.Marshal(map[string]interface{}{
		"mine_positions": round.MinePositions,
		"revealed_tiles": round.RevealedTiles,
		"multiplier":     round.Multiplier,
		"status":         round.Status,
	})
	return string(data)
}
