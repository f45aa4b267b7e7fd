package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/foundpay/backend/internal/auth"
	"github.com/foundpay/backend/internal/config"
	"github.com/foundpay/backend/internal/dashboard"
	"github.com/foundpay/backend/internal/escrow"
	"github.com/foundpay/backend/internal/gateway"
	"github.com/foundpay/backend/internal/handlers"
	"github.com/foundpay/backend/internal/notify"
	"github.com/foundpay/backend/internal/repository"
	"github.com/foundpay/backend/internal/router"
	"github.com/foundpay/backend/internal/scheduler"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	businessRules := cfg.Rules()

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL (connection refused or invalid). Ensure Postgres is running, e.g. docker-compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL database successfully!")

	// River migrations (job queue tables)
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed. If the error is 'connection refused', start PostgreSQL first", "error", err)
		os.Exit(1)
	}
	slog.Info("River migrations applied")

	// Gateway selection is explicit at startup: a configured processor key
	// means live, otherwise everything is simulated in-process.
	var gw gateway.Gateway
	if cfg.LiveGateway() {
		gw = gateway.NewLive(cfg.ProcessorURL, cfg.ProcessorAPIKey)
		slog.Info("Using live payment gateway", "url", cfg.ProcessorURL)
	} else {
		gw = gateway.NewSimulated()
		slog.Info("Using simulated payment gateway")
	}

	// Repositories
	txRepo := repository.NewTransactionRepo(pool)
	caseRepo := repository.NewCaseRepo(pool)
	claimRepo := repository.NewClaimRepo(pool)
	userRepo := repository.NewUserRepo(pool)
	notificationRepo := repository.NewNotificationRepo(pool)
	apiKeyRepo := repository.NewAPIKeyRepo(pool)

	// Core services
	escrowSvc := escrow.NewService(txRepo, caseRepo, claimRepo, userRepo, gw, businessRules, logger)
	notifier := notify.NewStoreNotifier(notificationRepo, logger)
	sweeper := scheduler.NewSweeper(escrowSvc, caseRepo, txRepo, notifier, businessRules, logger)

	sched, err := scheduler.New(pool, sweeper, scheduler.Intervals{
		Sweep:   cfg.SweepInterval,
		Warning: cfg.WarningInterval,
		Cleanup: cfg.CleanupInterval,
	}, businessRules, logger)
	if err != nil {
		slog.Error("Failed to create scheduler", "error", err)
		os.Exit(1)
	}
	if err := sched.StartJobs(ctx); err != nil {
		slog.Error("Failed to start scheduler", "error", err)
		os.Exit(1)
	}

	// Auth
	authSvc := auth.NewService(userRepo, cfg.JWTSecret)
	authHandler := auth.NewHandler(authSvc, logger)

	// HTTP surface
	escrowHandler := &handlers.EscrowHandler{
		Escrow: escrowSvc,
		Txs:    txRepo,
		Cases:  caseRepo,
		Logger: logger,
	}
	caseHandler := &handlers.CaseHandler{
		Cases:    caseRepo,
		Rules:    businessRules,
		Currency: cfg.Currency,
		Logger:   logger,
	}
	claimHandler := &handlers.ClaimHandler{
		Claims: claimRepo,
		Cases:  caseRepo,
		Logger: logger,
	}
	opsHandler := &handlers.OpsHandler{
		Sweeper:   sweeper,
		Scheduler: sched,
		Logger:    logger,
	}
	dashHandler := dashboard.NewHandler(userRepo, apiKeyRepo, logger)

	apiRouter := router.New(authHandler, escrowHandler, caseHandler, claimHandler, opsHandler, dashHandler,
		authSvc, apiKeyRepo, claimRepo, businessRules.MaxClaimsPerDay)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(apiRouter)

	serverAddr := "0.0.0.0:" + cfg.Port
	srv := &http.Server{Addr: serverAddr, Handler: corsHandler}

	go func() {
		slog.Info("Starting HTTP server", "addr", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Clean stop: let in-flight sweeps finish before halting ticks.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sched.StopJobs(shutdownCtx); err != nil {
		slog.Error("Scheduler stop failed", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}
}
