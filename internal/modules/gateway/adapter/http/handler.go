// Package http exposes the public REST and WebSocket surface of the
// wagering core. Authentication lives at an outer edge; this layer trusts
// the X-User-ID header the edge injects.
package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/frankieli/instant_games/internal/modules/engine"
	"github.com/frankieli/instant_games/internal/modules/gateway/ws"
	"github.com/frankieli/instant_games/internal/modules/settlement/domain"
	"github.com/frankieli/instant_games/internal/modules/settlement/usecase"
	walletdomain "github.com/frankieli/instant_games/internal/modules/wallet/domain"
	"github.com/frankieli/instant_games/pkg/logger"
)

const defaultCurrency = "USD"

// Handler handles HTTP and WebSocket requests
type Handler struct {
	coordinator *usecase.Coordinator
	manager     *ws.Manager
}

// NewHandler creates a new HTTP handler
func NewHandler(coordinator *usecase.Coordinator, manager *ws.Manager) *Handler {
	return &Handler{
		coordinator: coordinator,
		manager:     manager,
	}
}

// RegisterRoutes registers the public routes
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.POST("/bets", h.PlaceBet)
	api.GET("/rounds/active", h.ActiveRound)
	api.POST("/rounds/:round_id/reveal", h.Reveal)
	api.POST("/rounds/:round_id/cashout", h.Cashout)
	api.GET("/balance", h.Balance)
	api.GET("/transactions", h.Transactions)
	api.GET("/paytables/:game", h.Paytable)
	api.GET("/fairness", h.Fairness)
	api.POST("/fairness/rotate", h.RotateSeed)

	router.GET("/ws", h.HandleWebSocket)
}

// DTOs
type betRequest struct {
	Game           string          `json:"game" binding:"required"`
	Currency       string          `json:"currency"`
	Amount         decimal.Decimal `json:"amount" binding:"required"`
	IdempotencyKey string          `json:"idempotency_key" binding:"required"`
	Target         decimal.Decimal `json:"target"`
	RollOver       bool            `json:"roll_over"`
	MineCount      int             `json:"mine_count"`
}

type revealRequest struct {
	Currency string `json:"currency"`
	Tile     *int   `json:"tile" binding:"required"`
}

type rotateRequest struct {
	Currency   string `json:"currency"`
	ClientSeed string `json:"client_seed"`
}

// identity resolves the calling account from the trusted identity header
func identity(c *gin.Context, currency string) (walletdomain.AccountRef, bool) {
	raw := c.GetHeader("X-User-ID")
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid identity"})
		return walletdomain.AccountRef{}, false
	}
	if currency == "" {
		currency = defaultCurrency
	}
	return walletdomain.AccountRef{UserID: userID, Currency: currency}, true
}

// PlaceBet handles POST /api/bets
func (h *Handler) PlaceBet(c *gin.Context) {
	var req betRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ref, ok := identity(c, req.Currency)
	if !ok {
		return
	}

	result, err := h.coordinator.PlaceBet(c.Request.Context(), domain.BetRequest{
		Account: ref,
		Game:    engine.GameType(req.Game),
		Amount:  req.Amount,
		Params: engine.Params{
			DiceTarget:   req.Target,
			DiceRollOver: req.RollOver,
			MineCount:    req.MineCount,
		},
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ActiveRound handles GET /api/rounds/active
func (h *Handler) ActiveRound(c *gin.Context) {
	ref, ok := identity(c, c.Query("currency"))
	if !ok {
		return
	}

	round, err := h.coordinator.ActiveRound(c.Request.Context(), ref)
	if err != nil {
		writeError(c, err)
		return
	}
	if round == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active round"})
		return
	}
	c.JSON(http.StatusOK, round)
}

// Reveal handles POST /api/rounds/:round_id/reveal
func (h *Handler) Reveal(c *gin.Context) {
	var req revealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ref, ok := identity(c, req.Currency)
	if !ok {
		return
	}

	result, err := h.coordinator.Reveal(c.Request.Context(), ref, c.Param("round_id"), *req.Tile)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Cashout handles POST /api/rounds/:round_id/cashout
func (h *Handler) Cashout(c *gin.Context) {
	ref, ok := identity(c, c.Query("currency"))
	if !ok {
		return
	}

	result, err := h.coordinator.Cashout(c.Request.Context(), ref, c.Param("round_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Balance handles GET /api/balance
func (h *Handler) Balance(c *gin.Context) {
	ref, ok := identity(c, c.Query("currency"))
	if !ok {
		return
	}

	balance, err := h.coordinator.Balance(c.Request.Context(), ref)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":  ref.UserID,
		"currency": ref.Currency,
		"balance":  balance,
	})
}

// Transactions handles GET /api/transactions
func (h *Handler) Transactions(c *gin.Context) {
	ref, ok := identity(c, c.Query("currency"))
	if !ok {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		limit = 50
	}

	txs, err := h.coordinator.Transactions(c.Request.Context(), ref, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

// Paytable handles GET /api/paytables/:game
func (h *Handler) Paytable(c *gin.Context) {
	table, err := h.coordinator.Paytable(engine.GameType(c.Param("game")))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, table)
}

// Fairness handles GET /api/fairness
func (h *Handler) Fairness(c *gin.Context) {
	ref, ok := identity(c, c.Query("currency"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.coordinator.Fairness(ref))
}

// RotateSeed handles POST /api/fairness/rotate
func (h *Handler) RotateSeed(c *gin.Context) {
	var req rotateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ref, ok := identity(c, req.Currency)
	if !ok {
		return
	}

	rotation, err := h.coordinator.RotateSeed(ref, req.ClientSeed)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rotation)
}

// writeError maps domain errors to HTTP statuses. Validation failures are
// 422 so clients can distinguish them from malformed requests (400).
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, walletdomain.ErrInsufficientFunds):
		status = http.StatusPaymentRequired
	case errors.Is(err, walletdomain.ErrDuplicateTransaction),
		errors.Is(err, domain.ErrRoundInProgress):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrRoundNotFound),
		errors.Is(err, walletdomain.ErrAccountNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrNotRoundOwner):
		status = http.StatusForbidden
	case errors.Is(err, engine.ErrInvalidParams),
		errors.Is(err, walletdomain.ErrInvalidAmount),
		errors.Is(err, domain.ErrBetOutOfRange),
		errors.Is(err, domain.ErrUnknownGame),
		errors.Is(err, domain.ErrRoundNotActive),
		errors.Is(err, domain.ErrTileOutOfRange),
		errors.Is(err, domain.ErrTileRevealed),
		errors.Is(err, domain.ErrNoTilesRevealed):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		logger.Error(c.Request.Context()).Err(err).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin is enforced at the edge
	},
}

// HandleWebSocket upgrades GET /ws and subscribes the session to the
// user's balance events. Inbound frames are limited to pings; the channel
// is push-only.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	ctx := logger.WebSocketContext(c.Request)

	raw := c.GetHeader("X-User-ID")
	if raw == "" {
		raw = c.Query("user_id")
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid identity"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error(ctx).Err(err).Msg("websocket upgrade failed")
		return
	}

	client := h.manager.Register(conn, userID)
	logger.Info(ctx).
		Int64("user_id", userID).
		Uint64("conn_id", client.ConnID).
		Int("sessions", h.manager.Sessions(userID)).
		Msg("websocket session opened")

	go client.WritePump()
	go client.ReadPump(func(userID int64, message []byte) {
		// Push-only channel: client frames carry no commands
		logger.Debug(ctx).
			Int64("user_id", userID).
			Int("message_size", len(message)).
			Msg("ignoring inbound websocket frame")
	})
}
