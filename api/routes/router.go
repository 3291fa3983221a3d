package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nexusarena/payment-service/api/controllers"
	paymentcontrollers "github.com/nexusarena/payment-service/api/controllers/payments"
	payoutcontrollers "github.com/nexusarena/payment-service/api/controllers/payouts"
	subscriptioncontrollers "github.com/nexusarena/payment-service/api/controllers/subscriptions"
	webhookcontrollers "github.com/nexusarena/payment-service/api/controllers/webhooks"
	"github.com/nexusarena/payment-service/api/middleware"
	"github.com/nexusarena/payment-service/pkg/config"
	"github.com/nexusarena/payment-service/pkg/logger"
	"github.com/nexusarena/payment-service/pkg/metrics"
	"github.com/nexusarena/payment-service/pkg/redis"
	"github.com/nexusarena/payment-service/pkg/stripe"
)

// Services bundles the domain services exposed over HTTP.
type Services struct {
	Payments      paymentcontrollers.Service
	Payouts       payoutcontrollers.Service
	Ledger        payoutcontrollers.TransactionLister
	Subscriptions subscriptioncontrollers.Service
	Webhooks      webhookcontrollers.EventProcessor
}

// Observability carries the metric sinks and the registry scraped at /metrics.
type Observability struct {
	Gatherer prometheus.Gatherer
	HTTP     *metrics.HTTPMetrics
	Webhooks *metrics.WebhookMetrics
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient *redis.Client,
	stripeClient *stripe.Client,
	svc Services,
	obs Observability,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(obs.HTTP),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	var redisPinger controllers.Pinger
	if redisClient != nil {
		redisPinger = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisPinger))
	})

	if obs.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(obs.Gatherer, promhttp.HandlerOpts{}))
	}

	apiPolicy := middleware.NewRateLimitPolicy("api", cfg.RateLimit.Window, cfg.RateLimit.IPLimit, cfg.RateLimit.UserLimit)
	webhookPolicy := middleware.NewRateLimitPolicy("webhook", cfg.RateLimit.Window, cfg.RateLimit.IPLimit, 0)

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		if redisClient != nil {
			r.Use(middleware.RateLimit(webhookPolicy, redisClient, logg))
		}
		handler := webhookcontrollers.StripeWebhook(svc.Webhooks, stripeClient, obs.Webhooks, logg)
		r.Post("/provider", handler)
		r.Post("/stripe", handler)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		if redisClient != nil {
			r.Use(middleware.RateLimit(apiPolicy, redisClient, logg))
			r.Use(middleware.Idempotency(redisClient, logg))
		}

		r.Route("/payments", func(r chi.Router) {
			r.Post("/create-intent", paymentcontrollers.CreateIntent(svc.Payments, logg))
			r.Post("/confirm", paymentcontrollers.Confirm(svc.Payments, logg))
			r.Get("/history", paymentcontrollers.History(svc.Payments, logg))
			r.Post("/refund", paymentcontrollers.Refund(svc.Payments, logg))
			r.Get("/methods", paymentcontrollers.ListMethods(svc.Payments, logg))
			r.Post("/methods", paymentcontrollers.AttachMethod(svc.Payments, logg))
			r.Delete("/methods/{methodId}", paymentcontrollers.DetachMethod(svc.Payments, logg))
		})

		r.Route("/payouts", func(r chi.Router) {
			r.Post("/connect-account", payoutcontrollers.ConnectAccount(svc.Payouts, logg))
			r.Get("/account-status", payoutcontrollers.AccountStatus(svc.Payouts, logg))
			r.Post("/request", payoutcontrollers.Request(svc.Payouts, logg))
			r.Get("/history", payoutcontrollers.History(svc.Payouts, logg))
			r.Get("/wallet/balance", payoutcontrollers.Balance(svc.Payouts, logg))
			r.Get("/wallet/transactions", payoutcontrollers.Transactions(svc.Payouts, svc.Ledger, logg))
			r.Get("/{payoutId}", payoutcontrollers.Detail(svc.Payouts, logg))
			r.Post("/{payoutId}/cancel", payoutcontrollers.Cancel(svc.Payouts, logg))
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/plans", subscriptioncontrollers.Plans(svc.Subscriptions, logg))
			r.Get("/current", subscriptioncontrollers.Current(svc.Subscriptions, logg))
			r.Get("/history", subscriptioncontrollers.History(svc.Subscriptions, logg))
			r.Post("/create", subscriptioncontrollers.Create(svc.Subscriptions, logg))
			r.Put("/update", subscriptioncontrollers.Update(svc.Subscriptions, logg))
			r.Post("/cancel", subscriptioncontrollers.Cancel(svc.Subscriptions, logg))
			r.Post("/reactivate", subscriptioncontrollers.Reactivate(svc.Subscriptions, logg))
		})
	})

	return r
}
