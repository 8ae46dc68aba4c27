package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/frankieli/instant_games/pkg/logger"
)

const (
	submitAttempts = 3
	attemptTimeout = 10 * time.Second
	retryPause     = 500 * time.Millisecond
)

// Client drives the wagering API for one account with optimistic balance
// updates. Submissions are serialized; a timed-out request is retried with
// the identical idempotency key so the ledger can return the original
// result instead of double-betting.
type Client struct {
	base     string
	userID   int64
	currency string
	http     *http.Client
	view     *BalanceView

	submitMu sync.Mutex
}

// BetAck is the server's confirmation of one settled wager
type BetAck struct {
	TransactionID    string          `json:"transaction_id"`
	RoundID          string          `json:"round_id"`
	IsWin            bool            `json:"is_win"`
	Multiplier       decimal.Decimal `json:"multiplier"`
	WinAmount        decimal.Decimal `json:"win_amount"`
	ResultingBalance decimal.Decimal `json:"resulting_balance"`
	Outcome          Outcome         `json:"-"`
}

// New creates a client seeded with the account's current balance
func New(base string, userID int64, currency string, balance decimal.Decimal) *Client {
	return &Client{
		base:     base,
		userID:   userID,
		currency: currency,
		http:     &http.Client{Timeout: attemptTimeout},
		view:     NewBalanceView(balance),
	}
}

// View exposes the balance view (for display and push-event handling)
func (c *Client) View() *BalanceView {
	return c.view
}

// PlaceBet submits one wager. The displayed balance drops by the stake
// immediately and is reconciled when the server answers; on failure the
// optimistic delta is reverted exactly.
func (c *Client) PlaceBet(ctx context.Context, game string, amount decimal.Decimal, params map[string]interface{}) (*BetAck, error) {
	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	idemKey := uuid.NewString()
	if err := c.view.Stage(idemKey, amount.Neg()); err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"game":            game,
		"currency":        c.currency,
		"amount":          amount,
		"idempotency_key": idemKey,
	}
	for k, val := range params {
		body[k] = val
	}

	ack, err := c.post(ctx, "/api/bets", body)
	if err != nil {
		c.view.Revert(idemKey)
		logger.Warn(ctx).
			Err(err).
			Str("idempotency_key", idemKey).
			Str("displayed", c.view.Displayed().String()).
			Msg("bet failed, optimistic update reverted")
		return nil, err
	}

	ack.Outcome = c.view.Resolve(idemKey, ack.ResultingBalance)
	return ack, nil
}

// post sends the request with bounded retries, reusing the same payload
// (and therefore the same idempotency key) on every attempt
func (c *Client) post(ctx context.Context, path string, body map[string]interface{}) (*BetAck, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= submitAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(retryPause):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		ack, retryable, err := c.attempt(ctx, path, payload)
		if err == nil {
			return ack, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, fmt.Errorf("bet not confirmed after %d attempts: %w", submitAttempts, lastErr)
}

func (c *Client) attempt(ctx context.Context, path string, payload []byte) (*BetAck, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", strconv.FormatInt(c.userID, 10))

	resp, err := c.http.Do(req)
	if err != nil {
		// Transport failure: the server may or may not have settled the
		// bet, so retry with the same key.
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("server error: %s", resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&apiErr)
		return nil, false, fmt.Errorf("bet rejected (%d): %s", resp.StatusCode, apiErr.Error)
	}

	var ack BetAck
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return nil, false, err
	}
	return &ack, false, nil
}

// HandleMessage parses one push frame and folds balance_update events into
// the view
func (c *Client) HandleMessage(raw []byte) {
	var frame struct {
		Type string `json:"type"`
		Data struct {
			TransactionID string `json:"transaction_id"`
			Seq           int64  `json:"seq"`
			Balance       string `json:"balance"`
			Currency      string `json:"currency"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Type != "balance_update" {
		return
	}
	if frame.Data.Currency != c.currency {
		return
	}
	balance, err := decimal.NewFromString(frame.Data.Balance)
	if err != nil {
		return
	}
	c.view.ApplyEvent(Event{
		TransactionID: frame.Data.TransactionID,
		Seq:           frame.Data.Seq,
		Balance:       balance,
	})
}

// FetchBalance refetches the authoritative balance (used after a sequence
// gap on the push channel)
func (c *Client) FetchBalance(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/balance?currency="+c.currency, nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("X-User-ID", strconv.FormatInt(c.userID, 10))

	resp, err := c.http.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	var body struct {
		Balance decimal.Decimal `json:"balance"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, err
	}
	return body.Balance, nil
}
