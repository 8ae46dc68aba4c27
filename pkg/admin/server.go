// Package admin hosts the internal ops surface: manual ledger adjustments,
// account inspection and on-demand performance capture. It binds on its own
// port and must never be exposed publicly.
package admin

import (
	"archive/zip"
	"bytes"
	"fmt"
	"net/http"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/frankieli/instant_games/internal/modules/settlement/usecase"
	walletdomain "github.com/frankieli/instant_games/internal/modules/wallet/domain"
	"github.com/frankieli/instant_games/pkg/logger"
	"github.com/frankieli/instant_games/pkg/netutil"
)

// Server is the admin HTTP server
type Server struct {
	coordinator *usecase.Coordinator
	engine      *gin.Engine
	port        string
}

// NewServer creates the admin server. Adjustments run through the
// coordinator so they share the per-account locking and idempotency
// discipline with bets.
func NewServer(coordinator *usecase.Coordinator, port string) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), logger.GinMiddleware())

	s := &Server{
		coordinator: coordinator,
		engine:      r,
		port:        port,
	}

	r.POST("/admin/adjustments", s.Adjust)
	r.GET("/admin/accounts/:user_id/:currency", s.Account)
	r.GET("/admin/profile", s.Profile)
	return s
}

// Run starts the admin server. If the configured port is taken the server
// falls back to a random port so the ops surface still comes up.
func (s *Server) Run() error {
	lis, port, err := netutil.ListenWithFallback(s.port)
	if err != nil {
		return err
	}
	if strconv.Itoa(port) != s.port {
		logger.WarnGlobal().
			Str("preferred_port", s.port).
			Int("actual_port", port).
			Msg("admin port in use, listening on fallback")
	}
	return http.Serve(lis, s.engine)
}

type adjustmentRequest struct {
	UserID         int64           `json:"user_id" binding:"required"`
	Currency       string          `json:"currency" binding:"required"`
	Amount         decimal.Decimal `json:"amount" binding:"required"`
	IdempotencyKey string          `json:"idempotency_key"`
	Reason         string          `json:"reason" binding:"required"`
}

// Adjust handles POST /admin/adjustments
func (s *Server) Adjust(c *gin.Context) {
	var req adjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = "adj:" + uuid.NewString()
	}

	ref := walletdomain.AccountRef{UserID: req.UserID, Currency: req.Currency}
	tx, err := s.coordinator.Adjust(c.Request.Context(), ref, req.Amount, req.IdempotencyKey, req.Reason)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	logger.Info(c.Request.Context()).
		Int64("user_id", req.UserID).
		Str("amount", req.Amount.String()).
		Str("reason", req.Reason).
		Str("tx_id", tx.TxID).
		Msg("manual adjustment applied")
	c.JSON(http.StatusOK, tx)
}

// Account handles GET /admin/accounts/:user_id/:currency
func (s *Server) Account(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}
	ref := walletdomain.AccountRef{UserID: userID, Currency: c.Param("currency")}

	balance, err := s.coordinator.Balance(c.Request.Context(), ref)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	txs, err := s.coordinator.Transactions(c.Request.Context(), ref, 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":      ref.UserID,
		"currency":     ref.Currency,
		"balance":      balance,
		"transactions": txs,
	})
}

// Profile handles GET /admin/profile: captures CPU, trace, heap, goroutine,
// block and mutex profiles over the requested duration and returns them as
// one zip archive.
func (s *Server) Profile(c *gin.Context) {
	duration := 30 * time.Second
	if raw := c.Query("duration_seconds"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 && secs <= 300 {
			duration = time.Duration(secs) * time.Second
		}
	}

	var cpuBuf, traceBuf bytes.Buffer

	// Block & mutex profiling is off by default; enable at full rate for
	// the capture window and restore afterwards to avoid a standing
	// production performance hit.
	runtime.SetBlockProfileRate(1)
	runtime.SetMutexProfileFraction(1)
	defer func() {
		runtime.SetBlockProfileRate(0)
		runtime.SetMutexProfileFraction(0)
	}()

	if err := pprof.StartCPUProfile(&cpuBuf); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("could not start CPU profile: %v", err)})
		return
	}
	if err := trace.Start(&traceBuf); err != nil {
		pprof.StopCPUProfile()
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("could not start trace: %v", err)})
		return
	}

	select {
	case <-time.After(duration):
	case <-c.Request.Context().Done():
		pprof.StopCPUProfile()
		trace.Stop()
		return
	}

	pprof.StopCPUProfile()
	trace.Stop()

	var archive bytes.Buffer
	zw := zip.NewWriter(&archive)

	writeEntry := func(name string, fill func(w *zip.Writer) error) {
		if err := fill(zw); err != nil {
			logger.Warn(c.Request.Context()).Err(err).Str("entry", name).Msg("profile entry skipped")
		}
	}

	writeEntry("cpu.pprof", func(w *zip.Writer) error {
		f, err := w.Create("cpu.pprof")
		if err != nil {
			return err
		}
		_, err = f.Write(cpuBuf.Bytes())
		return err
	})
	writeEntry("trace.out", func(w *zip.Writer) error {
		f, err := w.Create("trace.out")
		if err != nil {
			return err
		}
		_, err = f.Write(traceBuf.Bytes())
		return err
	})
	writeEntry("heap.pprof", func(w *zip.Writer) error {
		f, err := w.Create("heap.pprof")
		if err != nil {
			return err
		}
		return pprof.WriteHeapProfile(f)
	})
	for _, name := range []string{"goroutine", "block", "mutex"} {
		profileName := name
		writeEntry(profileName+".pprof", func(w *zip.Writer) error {
			p := pprof.Lookup(profileName)
			if p == nil {
				return fmt.Errorf("profile %s not found", profileName)
			}
			f, err := w.Create(profileName + ".pprof")
			if err != nil {
				return err
			}
			return p.WriteTo(f, 0)
		})
	}

	if err := zw.Close(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	filename := fmt.Sprintf("profile_%d.zip", time.Now().Unix())
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "application/zip", archive.Bytes())
}
