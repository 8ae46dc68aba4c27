package service

import (
	"context"

	"github.com/frankieli/instant_games/internal/modules/wallet/domain"
)

// PushService defines the interface for pushing authoritative ledger events
// to every live session of the affected account
type PushService interface {
	// PublishTransaction fans the transaction out to all sessions of the
	// account. Delivery is at-least-once; consumers dedupe on TxID.
	PublishTransaction(ctx context.Context, tx *domain.Transaction)
}
