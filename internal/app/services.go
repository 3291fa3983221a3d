// Package app assembles the domain services shared by the API and the
// background workers.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nexusarena/payment-service/internal/ledger"
	"github.com/nexusarena/payment-service/internal/payments"
	"github.com/nexusarena/payment-service/internal/payouts"
	"github.com/nexusarena/payment-service/internal/subscriptions"
	"github.com/nexusarena/payment-service/pkg/config"
	"github.com/nexusarena/payment-service/pkg/db"
	"github.com/nexusarena/payment-service/pkg/logger"
	"github.com/nexusarena/payment-service/pkg/metrics"
	"github.com/nexusarena/payment-service/pkg/outbox"
	pkgstripe "github.com/nexusarena/payment-service/pkg/stripe"
	"github.com/nexusarena/payment-service/pkg/tournaments"
)

// Params carries the bootstrapped infrastructure.
type Params struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *db.Client
	Stripe   *pkgstripe.Client
	Registry prometheus.Registerer
}

// Services is the wired domain layer.
type Services struct {
	Outbox        *outbox.Service
	Ledger        *ledger.Service
	Payments      *payments.Service
	Payouts       *payouts.Service
	Subscriptions *subscriptions.Service
	LedgerMetrics *metrics.LedgerMetrics
}

// NewServices builds the ledger and every service that moves money through it.
func NewServices(ctx context.Context, params Params) (*Services, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Stripe == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	cfg := params.Config
	logg := params.Logger

	ledgerMetrics := metrics.NewLedgerMetrics(params.Registry)
	outboxService := outbox.NewService(outbox.NewRepository(params.DB.DB()), logg)

	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		Repository:        ledger.NewRepository(params.DB.DB()),
		TransactionRunner: params.DB,
		Emitter:           outboxService,
		Metrics:           ledgerMetrics,
		Logger:            logg,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger service: %w", err)
	}

	paymentService, err := payments.NewService(payments.ServiceParams{
		Repository:        payments.NewRepository(params.DB.DB()),
		Ledger:            ledgerService,
		Stripe:            payments.NewStripeClient(params.Stripe),
		TransactionRunner: params.DB,
		Emitter:           outboxService,
		Logger:            logg,
	})
	if err != nil {
		return nil, fmt.Errorf("payment service: %w", err)
	}

	payoutParams := payouts.ServiceParams{
		Repository:         payouts.NewRepository(params.DB.DB()),
		Ledger:             ledgerService,
		Stripe:             payouts.NewStripeClient(params.Stripe),
		TransactionRunner:  params.DB,
		Emitter:            outboxService,
		Logger:             logg,
		ProviderTimeout:    cfg.Payouts.ProviderTimeout,
		DefaultArrival:     cfg.Payouts.DefaultArrival,
		FrontendURL:        params.Stripe.FrontendURL(),
		ConnectAccountType: params.Stripe.ConnectAccountType(),
	}
	if cfg.Tournament.BaseURL != "" {
		tournamentClient, err := tournaments.NewClient(cfg.Tournament.BaseURL, cfg.Tournament.Timeout)
		if err != nil {
			return nil, fmt.Errorf("tournament client: %w", err)
		}
		payoutParams.Tournaments = tournamentClient
	} else {
		logg.Warn(ctx, "tournament service url not set; payouts skip tournament checks")
	}
	payoutService, err := payouts.NewService(payoutParams)
	if err != nil {
		return nil, fmt.Errorf("payout service: %w", err)
	}

	subscriptionService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repository:        subscriptions.NewRepository(params.DB.DB()),
		Stripe:            subscriptions.NewStripeClient(params.Stripe),
		Customers:         paymentService,
		Wallets:           ledgerService,
		Catalog:           subscriptions.NewCatalog(cfg.Stripe),
		TransactionRunner: params.DB,
		Emitter:           outboxService,
		Logger:            logg,
	})
	if err != nil {
		return nil, fmt.Errorf("subscription service: %w", err)
	}

	return &Services{
		Outbox:        outboxService,
		Ledger:        ledgerService,
		Payments:      paymentService,
		Payouts:       payoutService,
		Subscriptions: subscriptionService,
		LedgerMetrics: ledgerMetrics,
	}, nil
}
