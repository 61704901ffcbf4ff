package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bcolabs/fightcards-backend/api/routes"
	"github.com/bcolabs/fightcards-backend/internal/auth"
	checkoutsvc "github.com/bcolabs/fightcards-backend/internal/checkout"
	"github.com/bcolabs/fightcards-backend/internal/fighters"
	"github.com/bcolabs/fightcards-backend/internal/holdings"
	"github.com/bcolabs/fightcards-backend/internal/orders"
	"github.com/bcolabs/fightcards-backend/internal/pricing"
	"github.com/bcolabs/fightcards-backend/internal/supply"
	"github.com/bcolabs/fightcards-backend/internal/trades"
	"github.com/bcolabs/fightcards-backend/internal/users"
	"github.com/bcolabs/fightcards-backend/internal/voucher"
	stripewebhook "github.com/bcolabs/fightcards-backend/internal/webhooks/stripe"
	"github.com/bcolabs/fightcards-backend/pkg/config"
	"github.com/bcolabs/fightcards-backend/pkg/db"
	"github.com/bcolabs/fightcards-backend/pkg/logger"
	"github.com/bcolabs/fightcards-backend/pkg/metrics"
	"github.com/bcolabs/fightcards-backend/pkg/migrate"
	"github.com/bcolabs/fightcards-backend/pkg/redis"
	pkgstripe "github.com/bcolabs/fightcards-backend/pkg/stripe"
)

const webhookDedupeTTL = 24 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	signer, err := buildSigner(cfg.Mint, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build voucher signer", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	mintMetrics := metrics.NewMintMetrics(registry)

	supplyService, err := supply.NewService(supply.Params{
		Tx:         dbClient,
		Repo:       supply.NewRepository(dbClient.DB()),
		TrustedKey: signer.PublicKey(),
		Metrics:    mintMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create supply service", err)
		os.Exit(1)
	}

	fighterService, err := fighters.NewService(fighters.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create fighter service", err)
		os.Exit(1)
	}

	calculator, err := pricing.NewCalculator(cfg.Pricing)
	if err != nil {
		logg.Error(context.Background(), "failed to create pricing calculator", err)
		os.Exit(1)
	}

	usersRepo := users.NewRepository(dbClient.DB())

	holdingsService, err := holdings.NewService(dbClient, holdings.NewRepository(dbClient.DB()), usersRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create holdings service", err)
		os.Exit(1)
	}

	tradesService, err := trades.NewService(redisClient, cfg.Trades.FeedCapacity)
	if err != nil {
		logg.Error(context.Background(), "failed to create trade feed", err)
		os.Exit(1)
	}

	ordersRepo := orders.NewRepository(dbClient.DB())
	orderService, err := orders.NewService(orders.Params{
		Repo:     ordersRepo,
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
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	checkoutService, err := checkoutsvc.NewService(checkoutsvc.Params{
		Orders:     orderService,
		OrdersRepo: ordersRepo,
		Stripe:     checkoutsvc.NewStripeClient(stripeClient),
		SuccessURL: cfg.App.BaseURL + "/checkout/success",
		CancelURL:  cfg.App.BaseURL + "/checkout/cancel",
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Orders:  orderService,
		Metrics: mintMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, webhookDedupeTTL, "stripe-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:    usersRepo,
		JWTConfig:   cfg.JWT,
		PasswordCfg: cfg.Password,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":       cfg.App.Env,
		"addr":      addr,
		"mint_mode": cfg.Mint.Mode,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:          cfg,
			Logger:          logg,
			DB:              dbClient,
			Redis:           redisClient,
			Registry:        registry,
			AuthService:     authService,
			FighterService:  fighterService,
			SupplyService:   supplyService,
			OrderService:    orderService,
			CheckoutService: checkoutService,
			HoldingsService: holdingsService,
			TradesService:   tradesService,
			StripeWebhook:   webhookService,
			StripeGuard:     webhookGuard,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
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
