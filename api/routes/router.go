package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bcolabs/fightcards-backend/api/controllers"
	webhookcontrollers "github.com/bcolabs/fightcards-backend/api/controllers/webhooks"
	"github.com/bcolabs/fightcards-backend/api/middleware"
	"github.com/bcolabs/fightcards-backend/internal/auth"
	checkoutsvc "github.com/bcolabs/fightcards-backend/internal/checkout"
	"github.com/bcolabs/fightcards-backend/internal/fighters"
	"github.com/bcolabs/fightcards-backend/internal/holdings"
	"github.com/bcolabs/fightcards-backend/internal/orders"
	"github.com/bcolabs/fightcards-backend/internal/supply"
	"github.com/bcolabs/fightcards-backend/internal/trades"
	stripewebhook "github.com/bcolabs/fightcards-backend/internal/webhooks/stripe"
	"github.com/bcolabs/fightcards-backend/pkg/config"
	"github.com/bcolabs/fightcards-backend/pkg/db"
	"github.com/bcolabs/fightcards-backend/pkg/logger"
	"github.com/bcolabs/fightcards-backend/pkg/redis"
)

// Deps gathers everything the router mounts.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *db.Client
	Redis    *redis.Client
	Registry prometheus.Gatherer

	AuthService     auth.Service
	FighterService  fighters.Service
	SupplyService   supply.Service
	OrderService    orders.Service
	CheckoutService checkoutsvc.Service
	HoldingsService holdings.Service
	TradesService   trades.Service
	StripeWebhook   *stripewebhook.Service
	StripeGuard     *stripewebhook.IdempotencyGuard
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive())
		r.Get("/ready", controllers.HealthReady(deps.DB, deps.Redis, logg))
	})

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhook, cfg.Stripe.WebhookSecret, deps.StripeGuard, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/register", controllers.AuthRegister(deps.AuthService, logg))
		r.Post("/login", controllers.AuthLogin(deps.AuthService, logg))
	})

	// Public catalog and trade feed.
	r.Route("/api/v1/fighters", func(r chi.Router) {
		r.Get("/", controllers.FightersList(deps.FighterService, logg))
		r.Get("/{fighterId}", controllers.FighterDetail(deps.FighterService, deps.SupplyService, logg))
	})
	r.Get("/api/v1/trades", controllers.TradesRecent(deps.TradesService, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Get("/auth/me", controllers.AuthMe(deps.AuthService, logg))

		r.Post("/mints/quote", controllers.MintQuote(deps.OrderService, logg))
		r.Post("/mints", controllers.MintFinalize(deps.OrderService, logg))
		r.Post("/checkout", controllers.CheckoutStart(deps.CheckoutService, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.OrdersList(deps.OrderService, logg))
			r.Get("/{orderId}", controllers.OrderDetail(deps.OrderService, logg))
			r.Get("/{orderId}/receipt", controllers.ReceiptDetail(deps.HoldingsService, logg))
		})

		r.Get("/holdings", controllers.HoldingsList(deps.HoldingsService, logg))
		r.Get("/receipts", controllers.ReceiptsList(deps.HoldingsService, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireAdmin(logg))

		r.Post("/fighters", controllers.AdminFighterCreate(deps.FighterService, logg))
		r.Patch("/fighters/{fighterId}/active", controllers.AdminFighterSetActive(deps.FighterService, logg))

		r.Route("/supply/{fighterId}", func(r chi.Router) {
			r.Get("/", controllers.AdminSupplyDetail(deps.SupplyService, logg))
			r.Post("/attendance", controllers.AdminRecordAttendance(deps.SupplyService, logg))
			r.Post("/cap", controllers.AdminIncreaseCap(deps.SupplyService, logg))
		})
		r.Post("/supply/signer-key", controllers.AdminRotateSignerKey(deps.SupplyService, logg))

		r.Get("/orders/failed", controllers.AdminFailedOrders(deps.OrderService, logg))
	})

	return r
}
