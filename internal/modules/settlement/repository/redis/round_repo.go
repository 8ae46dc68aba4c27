// Package redis provides the Redis-backed round repository, used when the
// server runs more than one instance and round state must survive restarts.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/frankieli/instant_games/internal/modules/settlement/domain"
	walletdomain "github.com/frankieli/instant_games/internal/modules/wallet/domain"
)

// RoundRepository implements domain.RoundRepository using Redis
type RoundRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRoundRepository creates a new Redis round repository
func NewRoundRepository(rdb *redis.Client) *RoundRepository {
	return &RoundRepository{
		rdb: rdb,
		ttl: 24 * time.Hour, // abandoned rounds expire after a day
	}
}

func roundKey(roundID string) string {
	return fmt.Sprintf("round:%s", roundID)
}

func accountKey(ref walletdomain.AccountRef) string {
	return fmt.Sprintf("round_active:%s", ref.Key())
}

func (r *RoundRepository) Save(ctx context.Context, round *domain.GameRound) error {
	data, err := json.Marshal(round)
	if err != nil {
		return err
	}

	pipe := r.rdb.Pipeline()
	pipe.Set(ctx, roundKey(round.RoundID), data, r.ttl)
	if round.Status == domain.RoundStatusActive {
		pipe.Set(ctx, accountKey(round.Ref()), round.RoundID, r.ttl)
	} else {
		pipe.Del(ctx, accountKey(round.Ref()))
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RoundRepository) Get(ctx context.Context, roundID string) (*domain.GameRound, error) {
	data, err := r.rdb.Get(ctx, roundKey(roundID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrRoundNotFound
		}
		return nil, err
	}

	var round domain.GameRound
	if err := json.Unmarshal([]byte(data), &round); err != nil {
		return nil, err
	}
	return &round, nil
}

func (r *RoundRepository) GetActiveForAccount(ctx context.Context, ref walletdomain.AccountRef) (*domain.GameRound, error) {
	roundID, err := r.rdb.Get(ctx, accountKey(ref)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	round, err := r.Get(ctx, roundID)
	if errors.Is(err, domain.ErrRoundNotFound) {
		return nil, nil
	}
	return round, err
}

func (r *RoundRepository) Delete(ctx context.Context, roundID string) error {
	round, err := r.Get(ctx, roundID)
	if errors.Is(err, domain.ErrRoundNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	pipe := r.rdb.Pipeline()
	pipe.Del(ctx, roundKey(roundID))
	pipe.Del(ctx, accountKey(round.Ref()))
	_, err = pipe.Exec(ctx)
	return err
}
