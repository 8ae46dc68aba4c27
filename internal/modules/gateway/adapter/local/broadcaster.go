// Package local provides local adapters for the gateway module.
package local

import (
	"context"
	"encoding/json"
	"time"

	"github.com/frankieli/instant_games/internal/modules/gateway/ws"
	walletdomain "github.com/frankieli/instant_games/internal/modules/wallet/domain"
	"github.com/frankieli/instant_games/pkg/logger"
)

// Broadcaster turns settled ledger transactions into balance_update events
// and fans them out to the owning user's WebSocket sessions. It implements
// service.PushService.
type Broadcaster struct {
	manager *ws.Manager
}

func NewBroadcaster(manager *ws.Manager) *Broadcaster {
	return &Broadcaster{manager: manager}
}

// balanceUpdate is the wire shape of one broadcast event. Seq and
// transaction_id let the client deduplicate and order events; a gap in seq
// tells it to refetch the authoritative balance.
type balanceUpdate struct {
	UserID        int64  `json:"user_id"`
	Currency      string `json:"currency"`
	Balance       string `json:"balance"`
	Seq           int64  `json:"seq"`
	TransactionID string `json:"transaction_id"`
	Kind          string `json:"kind"`
	Amount        string `json:"amount"`
	GameType      string `json:"game_type,omitempty"`
	Timestamp     int64  `json:"timestamp"`
}

// PublishTransaction emits one balance_update event. The coordinator calls
// this inside the account's critical section, so events reach the manager
// in ledger order per account.
func (b *Broadcaster) PublishTransaction(ctx context.Context, tx *walletdomain.Transaction) {
	msg, err := json.Marshal(map[string]interface{}{
		"type": "balance_update",
		"data": balanceUpdate{
			UserID:        tx.UserID,
			Currency:      tx.Currency,
			Balance:       tx.ResultingBalance.String(),
			Seq:           tx.Seq,
			TransactionID: tx.TxID,
			Kind:          string(tx.Kind),
			Amount:        tx.Amount.String(),
			GameType:      tx.GameType,
			Timestamp:     time.Now().UnixMilli(),
		},
	})
	if err != nil {
		logger.Error(ctx).Err(err).Str("tx_id", tx.TxID).Msg("balance event marshal failed")
		return
	}
	b.manager.SendToUser(tx.UserID, msg)
}
