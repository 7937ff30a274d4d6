package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"crypto-payment-ledger/config"
	httpHandler "crypto-payment-ledger/internal/adapter/http/handler"
	"crypto-payment-ledger/internal/adapter/rail"
	pgStorage "crypto-payment-ledger/internal/adapter/storage/postgres"
	redisStorage "crypto-payment-ledger/internal/adapter/storage/redis"
	"crypto-payment-ledger/internal/core/ports"
	"crypto-payment-ledger/internal/service"
	"crypto-payment-ledger/pkg/logger"

	"github.com/rs/zerolog"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Crypto Payment Ledger")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	balanceRepo := pgStorage.NewBalanceRepo(pool)
	entryRepo := pgStorage.NewLedgerEntryRepo(pool)
	paymentRepo := pgStorage.NewPaymentRepo(pool)
	refundRepo := pgStorage.NewRefundRepo(pool)
	payoutRepo := pgStorage.NewPayoutRepo(pool)
	webhookRepo := pgStorage.NewWebhookEventRepo(pool)
	merchantStore := pgStorage.NewMerchantStore(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)
	deliveryLease := redisStorage.NewDeliveryLease(rdb)

	// Initialize rail client (rates, disbursements, reversals)
	railClient := rail.NewClient(cfg.Rail.BaseURL, cfg.Rail.APIKey, cfg.Rail.Timeout, log)

	// Initialize core services
	sigSvc := service.NewHMACSignatureService()
	ledgerSvc := service.NewLedgerService(balanceRepo, entryRepo, transactor, log)
	allocSvc := service.NewAllocationService(railClient, log)
	webhookSvc := service.NewWebhookService(
		webhookRepo, merchantStore, sigSvc, deliveryLease,
		&http.Client{Timeout: cfg.Webhook.Timeout},
		cfg.Webhook.BaseBackoff, cfg.Webhook.MaxBackoff, log,
	)
	paymentSvc := service.NewPaymentService(
		paymentRepo, ledgerSvc, allocSvc, webhookSvc, merchantStore,
		idempotencyCache, transactor, cfg.Payment.Expiry, log,
	)
	refundSvc := service.NewRefundService(
		refundRepo, paymentRepo, ledgerSvc, webhookSvc, merchantStore,
		railClient, transactor, log,
	)
	payoutSvc := service.NewPayoutService(
		payoutRepo, paymentRepo, refundRepo, ledgerSvc, webhookSvc,
		merchantStore, railClient, transactor, log,
	)
	reportingSvc := service.NewReportingService(
		balanceRepo, paymentRepo, refundRepo, payoutRepo, webhookRepo, log,
	)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		PaymentSvc:     paymentSvc,
		RefundSvc:      refundSvc,
		PayoutSvc:      payoutSvc,
		ReportingSvc:   reportingSvc,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

	// Background workers
	workerCtx, stopWorkers := context.WithCancel(ctx)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		webhookSvc.RunDeliveryLoop(workerCtx, cfg.Webhook.PollInterval)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runExpirySweeper(workerCtx, paymentSvc, cfg.Payment.SweepInterval, cfg.Payment.SweepBatch, log)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runPayoutScheduler(workerCtx, payoutSvc, merchantStore, cfg.Payout.Interval, log)
	}()

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	stopWorkers()
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// runExpirySweeper periodically expires open payments past their deadline.
func runExpirySweeper(ctx context.Context, paymentSvc ports.PaymentService, interval time.Duration, batch int, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("expiry sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("expiry sweeper stopped")
			return
		case <-ticker.C:
			n, err := paymentSvc.SweepExpired(ctx, batch)
			if err != nil {
				log.Error().Err(err).Msg("expiry sweep failed")
				continue
			}
			if n > 0 {
				log.Info().Int("expired", n).Msg("expiry sweep")
			}
		}
	}
}

// runPayoutScheduler periodically runs payout passes for due merchants.
func runPayoutScheduler(ctx context.Context, payoutSvc ports.PayoutService, merchants ports.MerchantStore, interval time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("payout scheduler started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("payout scheduler stopped")
			return
		case <-ticker.C:
			ids, err := merchants.ListPayoutDue(ctx)
			if err != nil {
				log.Error().Err(err).Msg("list payout merchants failed")
				continue
			}
			for _, id := range ids {
				if _, err := payoutSvc.TriggerPayouts(ctx, id); err != nil {
					log.Error().Err(err).Str("merchant_id", id.String()).Msg("payout pass failed")
				}
			}
		}
	}
}
