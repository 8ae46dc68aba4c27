package domain

import (
	"context"

	walletdomain "github.com/frankieli/instant_games/internal/modules/wallet/domain"
)

// RoundRepository stores active multi-step rounds
type RoundRepository interface {
	// Save creates or updates a round
	Save(ctx context.Context, round *GameRound) error

	// Get returns the round by ID. ErrRoundNotFound when absent.
	Get(ctx context.Context, roundID string) (*GameRound, error)

	// GetActiveForAccount returns the account's active round, nil when none
	GetActiveForAccount(ctx context.Context, ref walletdomain.AccountRef) (*GameRound, error)

	// Delete removes a round (called on terminal status)
	Delete(ctx context.Context, roundID string) error
}
