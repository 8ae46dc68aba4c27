package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/frankieli/instant_games/internal/modules/client"
	"github.com/frankieli/instant_games/pkg/logger"
)

// Config holds the robot configuration
type Config struct {
	Host      string
	AdminHost string
	UserCount int
	Currency  string
	Bankroll  string
	BetsEach  int
}

// Robot simulates one player driving the optimistic client
type Robot struct {
	ID     int
	UserID int64
	cfg    Config
	api    *client.Client
	conn   *websocket.Conn
	done   chan struct{}
	ctx    context.Context
}

func main() {
	host := flag.String("host", "localhost:8080", "Server host address")
	adminHost := flag.String("admin-host", "localhost:8099", "Admin host address (used to fund accounts)")
	users := flag.Int("users", 50, "Number of concurrent users")
	bets := flag.Int("bets", 20, "Bets per user")
	flag.Parse()

	cfg := Config{
		Host:      *host,
		AdminHost: *adminHost,
		UserCount: *users,
		Currency:  "USD",
		Bankroll:  "1000.00",
		BetsEach:  *bets,
	}

	logger.Init(logger.Config{
		Level:  "info",
		Format: "console",
	})

	ctx := context.Background()
	logger.Info(ctx).
		Int("users", cfg.UserCount).
		Str("host", cfg.Host).
		Msg("starting test robots")

	var wg sync.WaitGroup
	wg.Add(cfg.UserCount)

	for i := 0; i < cfg.UserCount; i++ {
		time.Sleep(20 * time.Millisecond)
		go func(id int) {
			defer wg.Done()
			robot := NewRobot(id, cfg)
			if err := robot.Run(); err != nil {
				logger.Error(ctx).Int("robot_id", id).Err(err).Msg("robot failed")
			}
		}(i + 1)
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	select {
	case <-interrupt:
		logger.Info(ctx).Msg("stopping robots")
	case <-finished:
		logger.Info(ctx).Msg("all robots finished")
	}
}

func NewRobot(id int, cfg Config) *Robot {
	return &Robot{
		ID:     id,
		UserID: int64(1000000 + id), // distinct synthetic identities per run
		cfg:    cfg,
		done:   make(chan struct{}),
		ctx:    context.Background(),
	}
}

func (r *Robot) Run() error {
	// 1. Fund the account through the admin boundary
	if err := r.fund(); err != nil {
		return fmt.Errorf("fund failed: %w", err)
	}
	bankroll := decimal.RequireFromString(r.cfg.Bankroll)
	r.api = client.New("http://"+r.cfg.Host, r.UserID, r.cfg.Currency, bankroll)
	logger.Info(r.ctx).Int("robot_id", r.ID).Int64("user_id", r.UserID).Msg("robot funded")

	// 2. Subscribe to balance events
	if err := r.connectWS(); err != nil {
		return fmt.Errorf("websocket connect failed: %w", err)
	}
	defer r.conn.Close()
	go r.listenLoop()

	// 3. Play
	r.playLoop()

	// 4. Verify the displayed balance against the server
	authoritative, err := r.api.FetchBalance(r.ctx)
	if err != nil {
		return fmt.Errorf("final balance fetch failed: %w", err)
	}
	displayed := r.api.View().Displayed()
	if !displayed.Equal(authoritative) {
		logger.Warn(r.ctx).
			Int("robot_id", r.ID).
			Str("displayed", displayed.String()).
			Str("authoritative", authoritative.String()).
			Msg("balance drift detected, resyncing")
		r.api.View().Resync(authoritative, 0)
	}
	logger.Info(r.ctx).
		Int("robot_id", r.ID).
		Str("final_balance", authoritative.String()).
		Msg("robot done")
	return nil
}

func (r *Robot) fund() error {
	var err error
	for i := 0; i < 3; i++ {
		if i > 0 {
			time.Sleep(time.Second * time.Duration(i))
		}

		body := map[string]interface{}{
			"user_id":         r.UserID,
			"currency":        r.cfg.Currency,
			"amount":          r.cfg.Bankroll,
			"idempotency_key": fmt.Sprintf("robot-grant-%d-%d", time.Now().Unix(), r.UserID),
			"reason":          "load test grant",
		}
		jsonBody, _ := json.Marshal(body)

		resp, reqErr := http.Post(
			fmt.Sprintf("http://%s/admin/adjustments", r.cfg.AdminHost),
			"application/json", bytes.NewBuffer(jsonBody))
		if reqErr != nil {
			err = reqErr
			continue
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			err = fmt.Errorf("grant rejected: %s", resp.Status)
			continue
		}
		return nil
	}
	return err
}

func (r *Robot) connectWS() error {
	u := url.URL{
		Scheme:   "ws",
		Host:     r.cfg.Host,
		Path:     "/ws",
		RawQuery: fmt.Sprintf("user_id=%d", r.UserID),
	}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return err
	}
	r.conn = c
	return nil
}

func (r *Robot) listenLoop() {
	defer close(r.done)

	for {
		_, message, err := r.conn.ReadMessage()
		if err != nil {
			return
		}
		r.api.HandleMessage(message)

		if r.api.View().NeedsResync() {
			if balance, err := r.api.FetchBalance(r.ctx); err == nil {
				r.api.View().Resync(balance, 0)
				logger.Info(r.ctx).Int("robot_id", r.ID).Msg("resynced after sequence gap")
			}
		}
	}
}

func (r *Robot) playLoop() {
	for i := 0; i < r.cfg.BetsEach; i++ {
		// Spread bets out to simulate human pacing
		time.Sleep(time.Duration(rand.Intn(2000)) * time.Millisecond)

		amount := decimal.NewFromInt(int64((rand.Intn(10) + 1))) // 1..10
		game, params := r.randomGame()

		ack, err := r.api.PlaceBet(r.ctx, game, amount, params)
		if err != nil {
			logger.Warn(r.ctx).
				Int("robot_id", r.ID).
				Str("game", game).
				Err(err).
				Str("displayed", r.api.View().Displayed().String()).
				Msg("bet failed, balance reverted")
			continue
		}

		logger.Info(r.ctx).
			Int("robot_id", r.ID).
			Str("game", game).
			Str("amount", amount.String()).
			Bool("is_win", ack.IsWin).
			Str("multiplier", ack.Multiplier.String()).
			Str("balance", ack.ResultingBalance.String()).
			Str("outcome", string(ack.Outcome)).
			Msg("bet settled")
	}
}

func (r *Robot) randomGame() (string, map[string]interface{}) {
	switch rand.Intn(3) {
	case 0:
		target := 2 + rand.Intn(97) // [2, 98]
		return "dice", map[string]interface{}{
			"target":    target,
			"roll_over": rand.Intn(2) == 0,
		}
	case 1:
		return "slots", nil
	default:
		return "plinko", nil
	}
}
