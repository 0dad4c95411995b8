package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	httpapi "github.com/settlement-hub/settlement-hub/internal/api/http"
	appidem "github.com/settlement-hub/settlement-hub/internal/application/idempotency"
	appledger "github.com/settlement-hub/settlement-hub/internal/application/ledger"
	applock "github.com/settlement-hub/settlement-hub/internal/application/lock"
	"github.com/settlement-hub/settlement-hub/internal/application/nonce"
	"github.com/settlement-hub/settlement-hub/internal/application/orchestrator"
	"github.com/settlement-hub/settlement-hub/internal/application/replay"
	"github.com/settlement-hub/settlement-hub/internal/application/verifier"
	"github.com/settlement-hub/settlement-hub/internal/config"
	"github.com/settlement-hub/settlement-hub/internal/domain/policy"
	"github.com/settlement-hub/settlement-hub/internal/infrastructure/chainrpc"
	"github.com/settlement-hub/settlement-hub/internal/infrastructure/directory"
	"github.com/settlement-hub/settlement-hub/internal/infrastructure/postgres"
	"github.com/settlement-hub/settlement-hub/internal/infrastructure/resilience"
	"github.com/settlement-hub/settlement-hub/internal/infrastructure/sse"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db error: %v", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool, "internal/migrations"); err != nil {
		log.Fatalf("migration error: %v", err)
	}

	// repositories and shared store
	ledgerRepo := postgres.NewLedgerRepository(pool)
	idempotencyRepo := postgres.NewIdempotencyRepository(pool)
	kvStore := postgres.NewKVStore(pool)

	// collaborators
	agentDirectory, err := directory.NewFromEnv()
	if err != nil {
		log.Fatalf("agent directory error: %v", err)
	}
	chainClient := chainrpc.NewClient(cfg.ChainRPCURL, cfg.ChainRPCTimeout)

	var policyEval policy.Evaluator = policy.AllowAll{}
	if len(cfg.PolicyRules) > 0 {
		policyEval, err = policy.NewRuleEvaluator(cfg.PolicyRules)
		if err != nil {
			log.Fatalf("policy rules error: %v", err)
		}
	}

	// core services
	breaker := resilience.NewBreaker("chain_rpc", cfg.BreakerMaxFail, cfg.BreakerReset, logger)
	limiter := resilience.NewRateLimiter(cfg.RateLimitRPM, cfg.RateLimitBurst)
	replayGuard := replay.NewGuard(kvStore, cfg.ReplayTTL, logger)
	verifierSvc := verifier.NewService(agentDirectory, replayGuard, cfg.SignatureMaxWindow, logger)
	nonceManager := nonce.NewManager(kvStore, chainClient, logger)
	lockManager := applock.NewManager(kvStore, cfg.LockTTL, logger)
	coordinator := appidem.NewCoordinator(idempotencyRepo, cfg.IdempotencyTTL, cfg.IdempotencyGrace, logger)
	ledgerEngine := appledger.NewEngine(ledgerRepo, cfg.LedgerBatchSize, logger)

	orchestratorSvc := orchestrator.New(
		verifierSvc,
		policyEval,
		nonceManager,
		lockManager,
		coordinator,
		ledgerEngine,
		chainClient,
		breaker,
		cfg.SettlementAddress,
		logger,
	)

	// API server
	eventHub := sse.NewHub(cfg.EventBuffer)
	defer eventHub.Stop()
	apiServer := httpapi.NewServer(orchestratorSvc, ledgerEngine, replayGuard, nonceManager, breaker, limiter, eventHub)

	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// background sweepers
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			sweepCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if _, err := kvStore.PurgeExpired(sweepCtx); err != nil {
				logger.Warn().Err(err).Msg("kv purge failed")
			}
			if _, err := coordinator.SweepExpired(sweepCtx); err != nil {
				logger.Warn().Err(err).Msg("idempotency sweep failed")
			}
			if _, err := nonceManager.Sync(sweepCtx, cfg.SettlementAddress); err != nil {
				logger.Warn().Err(err).Msg("nonce sync failed")
			}
			limiter.Sweep(10 * time.Minute)
			cancel()
		}
	}()

	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("settlement hub listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
}
