package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"settlement/internal/config"
	cronrunner "settlement/internal/cron"
	"settlement/internal/db"
	"settlement/internal/handler"
	"settlement/internal/logger"
	gormrepository "settlement/internal/repository/gorm"
	"settlement/internal/settlement"
	"settlement/internal/wallet"
)

func main() {
	cfgPath := os.Getenv("SETTLE_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("SETTLE_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := gormrepository.New(dbConn.Gorm)
	gateway := &wallet.Client{
		BaseURL: cfg.Wallet.BaseURL,
		APIKey:  cfg.Wallet.APIKey,
		HTTP:    &http.Client{Timeout: cfg.Wallet.Timeout},
	}

	batches := settlement.NewRegistry()
	monitor := &settlement.EscalationMonitor{
		Repo:    store,
		Logger:  logger,
		Wait:    cfg.Settlement.EscalationWait,
		BaseCtx: ctx,
	}
	pipeline := &settlement.Pipeline{
		Repo:    store,
		Wallet:  gateway,
		Logger:  logger,
		Config:  cfg.Settlement,
		Batch:   cfg.Batch,
		Batches: batches,
		Monitor: monitor,
	}
	processor := &settlement.Processor{
		Repo:    store,
		Wallet:  gateway,
		Logger:  logger,
		Config:  cfg.Batch,
		Batches: batches,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	engine.Use(handler.RequireBearerMiddleware(cfg.Server.AuthToken))
	engine.Use(handler.WriteAuditMiddleware(logger))

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	settlementHandler := &handler.SettlementHandler{
		Repo:     store,
		Pipeline: pipeline,
		Batches:  batches,
	}
	settlementHandler.Register(engine)
	redemptionHandler := &handler.RedemptionHandler{Pipeline: pipeline}
	redemptionHandler.Register(engine)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	go func() {
		if err := processor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("batch processor stopped", zap.Error(err))
		}
	}()

	if cfg.Cron.Enabled {
		cronRunner := cronrunner.New(logger, ctx)
		_, err := cronRunner.Add(cfg.Cron.BatchReconcile, func(ctx context.Context) {
			if err := processor.Reconcile(ctx); err != nil {
				logger.Warn("batch reconcile failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register batch reconcile failed", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
