package domain

import (
	"encoding/json"
	"reflect"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// TransactionKind classifies a ledger entry
type TransactionKind string

const (
	KindBet        TransactionKind = "BET"        // debit placed by the coordinator
	KindWin        TransactionKind = "WIN"        // credit for a winning outcome
	KindAdjustment TransactionKind = "ADJUSTMENT" // manual credit/debit via the admin boundary
)

// Entry is the caller-supplied part of a transaction, consumed by Apply
type Entry struct {
	IdempotencyKey string
	Kind           TransactionKind
	Amount         decimal.Decimal // signed: negative for BET, positive for WIN
	GameType       string
	GameData       string // opaque JSON payload (dice roll, grid state, reels...)
}

// Transaction is one immutable row of the append-only account log.
// Seq is server-assigned and totally orders transactions per account;
// ResultingBalance of Seq N equals ResultingBalance of Seq N-1 plus Amount.
type Transaction struct {
	TxID             string          `gorm:"primaryKey;type:varchar(64)" json:"tx_id"`
	UserID           int64           `gorm:"not null;uniqueIndex:idx_txs_account_idem,priority:1;index:idx_txs_account_seq,priority:1" json:"user_id"`
	Currency         string          `gorm:"type:varchar(8);not null;uniqueIndex:idx_txs_account_idem,priority:2;index:idx_txs_account_seq,priority:2" json:"currency"`
	IdempotencyKey   string          `gorm:"type:varchar(128);not null;uniqueIndex:idx_txs_account_idem,priority:3" json:"idempotency_key"`
	Seq              int64           `gorm:"not null;index:idx_txs_account_seq,priority:3" json:"seq"`
	Kind             TransactionKind `gorm:"type:varchar(16);not null" json:"kind"`
	Amount           decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	ResultingBalance decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"resulting_balance"`
	GameType         string          `gorm:"type:varchar(32)" json:"game_type"`
	GameData         string          `gorm:"type:text" json:"game_data,omitempty"`
	CreatedAt        time.Time       `gorm:"not null;index" json:"created_at"`
}

// TableName overrides the table name
func (Transaction) TableName() string {
	return "account_transactions"
}

// Ref returns the owning account's reference
func (t *Transaction) Ref() AccountRef {
	return AccountRef{UserID: t.UserID, Currency: t.Currency}
}

// Matches reports whether the stored transaction was produced by the same
// request parameters. Used to distinguish an idempotent replay from a key
// collision with different parameters. Draw metadata inside GameData varies
// between attempts of one request, so only the caller-supplied params half
// of the payload participates in the comparison.
func (t *Transaction) Matches(e Entry) bool {
	if t.Kind != e.Kind || !t.Amount.Equal(e.Amount) || t.GameType != e.GameType {
		return false
	}
	return reflect.DeepEqual(requestParams(t.GameData), requestParams(e.GameData))
}

// requestParams extracts the "params" object of a game data payload, or nil
// when the payload carries none
func requestParams(gameData string) interface{} {
	if gameData == "" {
		return nil
	}
	var payload struct {
		Params interface{} `json:"params"`
	}
	if json.Unmarshal([]byte(gameData), &payload) != nil {
		return nil
	}
	return payload.Params
}

var (
	node *snowflake.Node
	once sync.Once
)

func initSnowflake() {
	var err error
	// TODO: Get NodeID from config or environment variable.
	// Each instance MUST have a unique NodeID in a multi-instance deployment.
	node, err = snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
}

// NewTxID generates a globally unique transaction ID
func NewTxID() string {
	once.Do(initSnowflake)
	return node.Generate().String()
}
