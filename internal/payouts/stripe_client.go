package payouts

import (
	"context"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/account"
	"github.com/stripe/stripe-go/v84/accountlink"
	"github.com/stripe/stripe-go/v84/payout"

	pkgstripe "github.com/nexusarena/payment-service/pkg/stripe"
)

// StripePayoutsClient exposes the Stripe Connect and payout calls the engine uses.
type StripePayoutsClient interface {
	CreatePayout(ctx context.Context, params *stripe.PayoutParams) (*stripe.Payout, error)
	GetPayout(ctx context.Context, id string, params *stripe.PayoutParams) (*stripe.Payout, error)
	CreateAccount(ctx context.Context, params *stripe.AccountParams) (*stripe.Account, error)
	GetAccount(ctx context.Context, id string, params *stripe.AccountParams) (*stripe.Account, error)
	CreateAccountLink(ctx context.Context, params *stripe.AccountLinkParams) (*stripe.AccountLink, error)
}

type stripeClientWrapper struct{}

// NewStripeClient wraps the Stripe resource packages so the service can be tested.
func NewStripeClient(api *pkgstripe.Client) StripePayoutsClient {
	if api == nil {
		return nil
	}
	return &stripeClientWrapper{}
}

func (w *stripeClientWrapper) CreatePayout(ctx context.Context, params *stripe.PayoutParams) (*stripe.Payout, error) {
	if params != nil {
		params.Context = ctx
	}
	return payout.New(params)
}

func (w *stripeClientWrapper) GetPayout(ctx context.Context, id string, params *stripe.PayoutParams) (*stripe.Payout, error) {
	if params == nil {
		params = &stripe.PayoutParams{}
	}
	params.Context = ctx
	return payout.Get(id, params)
}

func (w *stripeClientWrapper) CreateAccount(ctx context.Context, params *stripe.AccountParams) (*stripe.Account, error) {
	if params != nil {
		params.Context = ctx
	}
	return account.New(params)
}

func (w *stripeClientWrapper) GetAccount(ctx context.Context, id string, params *stripe.AccountParams) (*stripe.Account, error) {
	if params == nil {
		params = &stripe.AccountParams{}
	}
	params.Context = ctx
	return account.GetByID(id, params)
}

func (w *stripeClientWrapper) CreateAccountLink(ctx context.Context, params *stripe.AccountLinkParams) (*stripe.AccountLink, error) {
	if params != nil {
		params.Context = ctx
	}
	return accountlink.New(params)
}
