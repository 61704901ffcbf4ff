package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bcolabs/fightcards-backend/internal/cron"
	"github.com/bcolabs/fightcards-backend/internal/fighters"
	"github.com/bcolabs/fightcards-backend/internal/holdings"
	"github.com/bcolabs/fightcards-backend/internal/orders"
	"github.com/bcolabs/fightcards-backend/internal/pricing"
	"github.com/bcolabs/fightcards-backend/internal/supply"
	"github.com/bcolabs/fightcards-backend/internal/trades"
	"github.com/bcolabs/fightcards-backend/internal/users"
	"github.com/bcolabs/fightcards-backend/internal/voucher"
	"github.com/bcolabs/fightcards-backend/pkg/config"
	"github.com/bcolabs/fightcards-backend/pkg/db"
	"github.com/bcolabs/fightcards-backend/pkg/logger"
	"github.com/bcolabs/fightcards-backend/pkg/metrics"
	"github.com/bcolabs/fightcards-backend/pkg/migrate"
	"github.com/bcolabs/fightcards-backend/pkg/redis"
)

const lockKeyFormat = "cron-worker:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	orderService, err := buildOrderService(cfg, dbClient, redisClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build order service", err)
		os.Exit(1)
	}

	orderTTLJob, err := cron.NewOrderTTLJob(cron.OrderTTLJobParams{
		Logger:         logg,
		Orders:         orderService,
		CheckoutWindow: cfg.Cron.CheckoutWindow,
		PaidWindow:     cfg.Cron.PaidMintWindow,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build order ttl job", err)
		os.Exit(1)
	}

	settlementJob, err := cron.NewSettlementRetryJob(cron.SettlementRetryJobParams{
		Logger: logg,
		Orders: orderService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build settlement retry job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockKey(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(orderTTLJob, settlementJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "jobs": registry.Names()})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

// buildOrderService wires the settlement path the retry job replays. The
// worker never issues vouchers or talks to Stripe, but the order service
// carries the full mint pipeline for replayed settlements.
func buildOrderService(cfg *config.Config, dbClient *db.Client, redisClient *redis.Client, logg *logger.Logger) (orders.Service, error) {
	signer, err := buildSigner(cfg.Mint, logg)
	if err != nil {
		return nil, err
	}

	supplyService, err := supply.NewService(supply.Params{
		Tx:         dbClient,
		Repo:       supply.NewRepository(dbClient.DB()),
		TrustedKey: signer.PublicKey(),
	})
	if err != nil {
		return nil, err
	}

	calculator, err := pricing.NewCalculator(cfg.Pricing)
	if err != nil {
		return nil, err
	}

	holdingsService, err := holdings.NewService(dbClient, holdings.NewRepository(dbClient.DB()), users.NewRepository(dbClient.DB()))
	if err != nil {
		return nil, err
	}

	tradesService, err := trades.NewService(redisClient, cfg.Trades.FeedCapacity)
	if err != nil {
		return nil, err
	}

	return orders.NewService(orders.Params{
		Repo:     orders.NewRepository(dbClient.DB()),
		Fighters: fighters.NewRepository(dbClient.DB()),
		Pricing:  calculator,
		Issuer:   signer,
		Ledger:   supplyService,
		Settler:  holdingsService,
		Feed:     tradesService,
		Claims:   redisClient,
		ClaimTTL: cfg.Mint.FinalizeClaimTTL,
		Logger:   logg,
	})
}

func buildSigner(cfg config.MintConfig, logg *logger.Logger) (*voucher.Signer, error) {
	switch cfg.Mode {
	case config.MintModeSandbox:
		logg.Warn(context.Background(), "sandbox mint mode: using an ephemeral signing key")
		return voucher.NewEphemeralSigner(cfg.VoucherTTL)
	default:
		return voucher.NewSigner(cfg.SignerKeyHex, cfg.VoucherTTL)
	}
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
