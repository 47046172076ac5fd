package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/tessera-erp/tessera-erp/internal/app"
	"github.com/tessera-erp/tessera-erp/internal/bom"
	"github.com/tessera-erp/tessera-erp/internal/manufacturing"
	"github.com/tessera-erp/tessera-erp/internal/masterdata"
	"github.com/tessera-erp/tessera-erp/internal/observability"
	"github.com/tessera-erp/tessera-erp/internal/planning"
	"github.com/tessera-erp/tessera-erp/internal/platform/cache"
	"github.com/tessera-erp/tessera-erp/internal/platform/db"
	"github.com/tessera-erp/tessera-erp/internal/shared"
	"github.com/tessera-erp/tessera-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable", slog.Any("error", err))
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	auditStore := shared.NewAuditStore(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	metrics := observability.NewMetrics()
	validate := validator.New()

	masterdataRepo := masterdata.NewRepository(pool)
	masterdataHandler := masterdata.NewHandler(logger, masterdataRepo)

	bomRepo := bom.NewRepository(pool, logger)
	bomEngine := bom.NewEngine(bomRepo, masterdataRepo, cfg.Planning.MaxBomDepth)
	var treeCache *bom.TreeCache
	if redisClient != nil {
		treeCache = bom.NewTreeCache(redisClient, cfg.Planning.CacheTTL)
	}
	bomService := bom.NewService(bomRepo, bomEngine, treeCache)
	bomHandler := bom.NewHandler(logger, bomService)

	enqueuer := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := enqueuer.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()

	snapshots := planning.NewPgSnapshots(pool, logger)
	previewService := planning.NewPreviewService(snapshots, logger, metrics, cfg.Planning.MaxBomDepth)
	planRepo := planning.NewRepository(pool)
	commitService := planning.NewCommitService(planRepo, idempotencyStore, auditStore, enqueuer, metrics, logger)
	planningHandler := planning.NewHandler(logger, validate, previewService, commitService)

	manufacturingRepo := manufacturing.NewRepository(pool)
	manufacturingService := manufacturing.NewService(manufacturingRepo, auditStore)
	manufacturingHandler := manufacturing.NewHandler(logger, manufacturingService)

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		MasterDataHandler:    masterdataHandler,
		BomHandler:           bomHandler,
		PlanningHandler:      planningHandler,
		ManufacturingHandler: manufacturingHandler,
		Metrics:              metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
