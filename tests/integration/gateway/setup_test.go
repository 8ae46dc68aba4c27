package gateway_test

import (
	"context"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/frankieli/instant_games/internal/modules/engine"
	gatewayhttp "github.com/frankieli/instant_games/internal/modules/gateway/adapter/http"
	"github.com/frankieli/instant_games/internal/modules/gateway/adapter/local"
	"github.com/frankieli/instant_games/internal/modules/gateway/ws"
	"github.com/frankieli/instant_games/internal/modules/settlement/domain"
	"github.com/frankieli/instant_games/internal/modules/settlement/repository/memory"
	"github.com/frankieli/instant_games/internal/modules/settlement/usecase"
	walletdomain "github.com/frankieli/instant_games/internal/modules/wallet/domain"
	walletmemory "github.com/frankieli/instant_games/internal/modules/wallet/repository/memory"
	walletusecase "github.com/frankieli/instant_games/internal/modules/wallet/usecase"
	"github.com/frankieli/instant_games/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
	logger.Init(logger.Config{Level: "error", Format: "console"})
}

// stack is the full server wired in memory: ledger, coordinator, websocket
// manager and HTTP router, served over a real listener.
type stack struct {
	server      *httptest.Server
	coordinator *usecase.Coordinator
	manager     *ws.Manager
}

// newStack builds the server with scripted draws so outcomes are
// deterministic. Scripts are consumed one per bet, cycling.
func newStack(t *testing.T, scripts ...[]int) *stack {
	t.Helper()
	if len(scripts) == 0 {
		scripts = [][]int{{0}}
	}

	manager := ws.NewManager()
	go manager.Run()

	ledger := walletusecase.NewLedgerUseCase(walletmemory.NewLedgerRepository())
	limits := domain.Limits{
		engine.GameDice:   {Min: decimal.RequireFromString("0.10"), Max: decimal.NewFromInt(1000)},
		engine.GameMines:  {Min: decimal.RequireFromString("0.10"), Max: decimal.NewFromInt(1000)},
		engine.GameSlots:  {Min: decimal.RequireFromString("0.10"), Max: decimal.NewFromInt(1000)},
		engine.GamePlinko: {Min: decimal.RequireFromString("0.10"), Max: decimal.NewFromInt(1000)},
	}

	calls := 0
	coordinator := usecase.NewCoordinator(
		ledger, local.NewBroadcaster(manager), memory.NewRoundRepository(), nil,
		engine.DefaultConfig(), limits,
	).WithSourceFactory(func(ref walletdomain.AccountRef) (engine.Source, usecase.DrawMeta) {
		script := scripts[calls%len(scripts)]
		calls++
		return engine.NewScriptSource(script...), usecase.DrawMeta{SeedHash: "h", ClientSeed: "c", Nonce: uint64(calls)}
	})

	router := gin.New()
	gatewayhttp.NewHandler(coordinator, manager).RegisterRoutes(router)

	server := httptest.NewServer(router)
	t.Cleanup(func() {
		server.Close()
		manager.Shutdown()
	})
	return &stack{server: server, coordinator: coordinator, manager: manager}
}

// fund credits the account through the same adjustment path the admin API
// uses, so the grant also fans out on the push channel
func (s *stack) fund(t *testing.T, userID int64, amount string) {
	t.Helper()
	ref := walletdomain.AccountRef{UserID: userID, Currency: "USD"}
	_, err := s.coordinator.Adjust(context.Background(), ref, decimal.RequireFromString(amount), "grant-"+amount, "integration test")
	require.NoError(t, err)
}

// dialWS opens a push channel for the user against the real listener
func (s *stack) dialWS(t *testing.T, userID int64) *websocket.Conn {
	t.Helper()
	before := s.manager.Sessions(userID)

	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws?user_id=" + strconv.FormatInt(userID, 10)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// registration runs on the manager loop; wait until the session counts
	waitFor(t, func() bool { return s.manager.Sessions(userID) > before })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}
