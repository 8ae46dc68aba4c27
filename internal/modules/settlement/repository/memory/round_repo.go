// Package memory provides memory-based repositories for the settlement module.
package memory

import (
	"context"
	"sync"

	"github.com/frankieli/instant_games/internal/modules/settlement/domain"
	walletdomain "github.com/frankieli/instant_games/internal/modules/wallet/domain"
)

// RoundRepository implements domain.RoundRepository using memory
type RoundRepository struct {
	rounds    map[string]*domain.GameRound // roundID -> round
	byAccount map[string]string            // account key -> active roundID
	mu        sync.RWMutex
}

// NewRoundRepository creates a new memory round repository
func NewRoundRepository() *RoundRepository {
	return &RoundRepository{
		rounds:    make(map[string]*domain.GameRound),
		byAccount: make(map[string]string),
	}
}

func (r *RoundRepository) Save(ctx context.Context, round *domain.GameRound) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rounds[round.RoundID] = round
	if round.Status == domain.RoundStatusActive {
		r.byAccount[round.Ref().Key()] = round.RoundID
	} else {
		delete(r.byAccount, round.Ref().Key())
	}
	return nil
}

func (r *RoundRepository) Get(ctx context.Context, roundID string) (*domain.GameRound, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	round, ok := r.rounds[roundID]
	if !ok {
		return nil, domain.ErrRoundNotFound
	}
	return round, nil
}

func (r *RoundRepository) GetActiveForAccount(ctx context.Context, ref walletdomain.AccountRef) (*domain.GameRound, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roundID, ok := r.byAccount[ref.Key()]
	if !ok {
		return nil, nil
	}
	return r.rounds[roundID], nil
}

func (r *RoundRepository) Delete(ctx context.Context, roundID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if round, ok := r.rounds[roundID]; ok {
		delete(r.byAccount, round.Ref().Key())
		delete(r.rounds, roundID)
	}
	return nil
}
