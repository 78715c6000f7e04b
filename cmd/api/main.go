package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wallet-ledger/internal/audit"
	"wallet-ledger/internal/auth"
	"wallet-ledger/internal/config"
	"wallet-ledger/internal/events"
	"wallet-ledger/internal/fees"
	"wallet-ledger/internal/httpapi"
	"wallet-ledger/internal/metrics"
	"wallet-ledger/internal/migrations"
	"wallet-ledger/internal/reporting"
	"wallet-ledger/internal/wallet"
	"wallet-ledger/pkg/logger"
	"wallet-ledger/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A .env file is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn(".env not loaded", "err", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.DB.AutoMigrate {
		if err := migrations.Apply(rootCtx, db); err != nil {
			log.Error("schema bootstrap failed", "err", err)
			os.Exit(1)
		}
		log.Info("schema bootstrap applied")
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	m := metrics.New()

	feeResolver := fees.NewResolver(cfg.Fees,
		fees.WithCache(rdb, cfg.Fees.CacheTTL),
		fees.WithLogger(log),
	)
	feeResolver.OnFallback = m.FeeFallback

	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	store := wallet.NewPostgresStore(db)
	ledger := wallet.NewService(store, feeResolver, wallet.Options{
		ClearingPeriod: cfg.Ledger.ClearingPeriod,
		MaxAttempts:    cfg.Ledger.MaxTxAttempts,
		Logger:         log,
		Events:         wallet.MultiSink{auditSvc, events.NewRedisSink(rdb)},
		Observer:       m,
	})

	limiter := httpapi.NewRateLimiter(cfg.HTTP.RateLimitPerSecond, cfg.HTTP.RateLimitBurst)
	limiter.OnReject = m.Rejected
	limiter.StartSweeper(rootCtx, time.Minute)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(m.Middleware())

	registerRoutes(r, routeDeps{
		auth:    authManager,
		metrics: m,
		limiter: limiter,
		slots:   httpapi.NewRedisSlots(rdb, cfg.HTTP.MaxInFlightPerUser, cfg.HTTP.InFlightTTL),
		health: func(ctx context.Context) error {
			if err := utils.HealthCheck(ctx, db, 2*time.Second); err != nil {
				return err
			}
			return rdb.Ping(ctx).Err()
		},
		handlers: httpapi.Handlers{
			Wallet:  ledger,
			Reports: reporting.NewService(store),
			Audit:   auditSvc,
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
