package app

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/nexusarena/payment-service/internal/ledger"
	"github.com/nexusarena/payment-service/pkg/config"
	"github.com/nexusarena/payment-service/pkg/db/dbtest"
	"github.com/nexusarena/payment-service/pkg/enums"
	"github.com/nexusarena/payment-service/pkg/logger"
	pkgstripe "github.com/nexusarena/payment-service/pkg/stripe"
)

func TestNewServicesWiresLedger(t *testing.T) {
	client := dbtest.New(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	services, err := NewServices(context.Background(), Params{
		Config:   &config.Config{},
		Logger:   logg,
		DB:       client,
		Stripe:   pkgstripe.NewWebhookVerifier("whsec_test"),
		Registry: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	require.NotNil(t, services.Payments)
	require.NotNil(t, services.Payouts)
	require.NotNil(t, services.Subscriptions)
	require.Len(t, services.Subscriptions.Plans(), 3)

	userID := uuid.New()
	_, err = services.Ledger.ApplyTransaction(context.Background(), ledger.ApplyInput{
		UserID:      userID,
		Type:        enums.WalletTransactionDeposit,
		AmountCents: 10000,
		Description: "deposit",
	})
	require.NoError(t, err)

	wallet, err := services.Payouts.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	require.EqualValues(t, 10000, wallet.BalanceCents)
}

func TestNewServicesRequiresInfrastructure(t *testing.T) {
	_, err := NewServices(context.Background(), Params{})
	require.Error(t, err)

	_, err = NewServices(context.Background(), Params{
		Config: &config.Config{},
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:     dbtest.New(t),
	})
	require.ErrorContains(t, err, "stripe client required")
}
