package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof" // Register pprof handlers
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/frankieli/instant_games/internal/config"
	"github.com/frankieli/instant_games/internal/modules/engine"
	gatewayHttp "github.com/frankieli/instant_games/internal/modules/gateway/adapter/http"
	gatewayLocal "github.com/frankieli/instant_games/internal/modules/gateway/adapter/local"
	"github.com/frankieli/instant_games/internal/modules/gateway/ws"
	settlementDomain "github.com/frankieli/instant_games/internal/modules/settlement/domain"
	settlementDB "github.com/frankieli/instant_games/internal/modules/settlement/repository/db"
	settlementMemory "github.com/frankieli/instant_games/internal/modules/settlement/repository/memory"
	settlementRedis "github.com/frankieli/instant_games/internal/modules/settlement/repository/redis"
	settlementUseCase "github.com/frankieli/instant_games/internal/modules/settlement/usecase"
	walletDomain "github.com/frankieli/instant_games/internal/modules/wallet/domain"
	walletDB "github.com/frankieli/instant_games/internal/modules/wallet/repository/db"
	walletMemory "github.com/frankieli/instant_games/internal/modules/wallet/repository/memory"
	walletUseCase "github.com/frankieli/instant_games/internal/modules/wallet/usecase"
	"github.com/frankieli/instant_games/pkg/admin"
	"github.com/frankieli/instant_games/pkg/logger"
)

func main() {
	pprofPort := flag.String("pprof-port", "", "Port to run pprof server on (e.g., 6060)")
	background := flag.Bool("d", false, "Run in background mode (disable console logging)")
	flag.Parse()

	cfg := config.Load()

	logFile := cfg.Log.File
	if logFile == "" {
		logFile = "logs/instant_games/server.log"
	}
	logger.InitWithFile(logFile, cfg.Log.Level, cfg.Log.Format, cfg.Log.Console && !*background)
	defer logger.Flush()

	if *pprofPort != "" {
		go func() {
			addr := "localhost:" + *pprofPort
			logger.InfoGlobal().Str("addr", addr).Msg("starting pprof server")
			if err := http.ListenAndServe(addr, nil); err != nil {
				logger.ErrorGlobal().Err(err).Msg("pprof server failed")
			}
		}()
	}

	logger.InfoGlobal().Msg("starting instant games server")

	// Outcome engine configuration
	engineCfg := engine.DefaultConfig()
	engineCfg.DicePayoutNumerator = cfg.Games.DicePayoutNumerator
	engineCfg.MinesRTP = cfg.Games.MinesRTP

	limits := settlementDomain.Limits{}
	for game, l := range cfg.Games.Limits {
		limits[engine.GameType(game)] = settlementDomain.BetLimits{Min: l.Min, Max: l.Max}
	}

	// Ledger backend
	var (
		ledgerRepo  walletDomain.LedgerRepository
		archiveRepo settlementDomain.ArchiveRepository
	)
	if cfg.Wallet.RepoType == "db" {
		db, err := gorm.Open(postgres.Open(cfg.Wallet.Database.DSN()), &gorm.Config{
			Logger: logger.NewGormLogger(),
		})
		if err != nil {
			logger.FatalGlobal().Err(err).Msg("failed to connect to database")
		}
		sqlDB, err := db.DB()
		if err != nil {
			logger.FatalGlobal().Err(err).Msg("failed to get database instance")
		}
		// Postgres default max_connections is usually 100; stay well below
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetConnMaxLifetime(time.Hour)
		defer sqlDB.Close()

		if err := sqlDB.Ping(); err != nil {
			logger.FatalGlobal().Err(err).Msg("failed to ping database")
		}

		dbLedger := walletDB.NewLedgerRepository(db)
		if err := dbLedger.AutoMigrate(); err != nil {
			logger.FatalGlobal().Err(err).Msg("ledger migration failed")
		}
		dbArchive := settlementDB.NewArchiveRepository(db)
		if err := dbArchive.AutoMigrate(); err != nil {
			logger.FatalGlobal().Err(err).Msg("archive migration failed")
		}
		ledgerRepo = dbLedger
		archiveRepo = dbArchive
		logger.InfoGlobal().Msg("ledger repository: db")
	} else {
		ledgerRepo = walletMemory.NewLedgerRepository()
		logger.InfoGlobal().Msg("ledger repository: memory")
	}

	// Round state backend
	var roundRepo settlementDomain.RoundRepository
	if cfg.Gateway.RoundRepoType == "redis" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Gateway.Redis.Addr()})
		defer rdb.Close()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.FatalGlobal().Err(err).Msg("failed to ping redis")
		}
		roundRepo = settlementRedis.NewRoundRepository(rdb)
		logger.InfoGlobal().Msg("round repository: redis")
	} else {
		roundRepo = settlementMemory.NewRoundRepository()
		logger.InfoGlobal().Msg("round repository: memory")
	}

	// Modules
	ledgerUC := walletUseCase.NewLedgerUseCase(ledgerRepo)

	wsManager := ws.NewManager()
	go wsManager.Run()
	broadcaster := gatewayLocal.NewBroadcaster(wsManager)

	coordinator := settlementUseCase.NewCoordinator(ledgerUC, broadcaster, roundRepo, archiveRepo, engineCfg, limits)
	logger.InfoGlobal().Msg("settlement coordinator initialized")

	// Public surface
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.GinMiddleware())
	gatewayHttp.NewHandler(coordinator, wsManager).RegisterRoutes(router)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.HTTPPort,
		Handler: router,
	}

	// Admin surface on its own port
	if cfg.Admin.Enabled {
		adminSrv := admin.NewServer(coordinator, cfg.Admin.Port)
		go func() {
			logger.InfoGlobal().Str("port", cfg.Admin.Port).Msg("starting admin server")
			if err := adminSrv.Run(); err != nil {
				logger.ErrorGlobal().Err(err).Msg("admin server failed")
			}
		}()
	}

	go func() {
		logger.InfoGlobal().
			Str("port", cfg.Server.HTTPPort).
			Str("ws_url", fmt.Sprintf("ws://localhost:%s/ws", cfg.Server.HTTPPort)).
			Msg("instant games server running")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.FatalGlobal().Err(err).Msg("server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.InfoGlobal().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.ErrorGlobal().Err(err).Msg("server forced to shutdown")
	}

	logger.InfoGlobal().Msg("closing all websocket connections")
	wsManager.Shutdown()

	logger.InfoGlobal().Msg("server exited properly")
}
