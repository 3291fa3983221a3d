package stripewebhook

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/nexusarena/payment-service/internal/payments"
	"github.com/nexusarena/payment-service/internal/subscriptions"
	"github.com/nexusarena/payment-service/pkg/db/models"
	pkgerrors "github.com/nexusarena/payment-service/pkg/errors"
	"github.com/nexusarena/payment-service/pkg/logger"
	"github.com/nexusarena/payment-service/pkg/metrics"
)

type paymentHandler interface {
	OnPaymentSucceeded(ctx context.Context, input payments.PaymentSucceededInput) error
	OnPaymentFailed(ctx context.Context, paymentIntentID string) error
	RecordInvoicePayment(ctx context.Context, input payments.InvoicePaymentInput) (*models.Payment, error)
}

type subscriptionHandler interface {
	SyncFromProvider(ctx context.Context, sub *stripe.Subscription) error
	OnSubscriptionDeleted(ctx context.Context, sub *stripe.Subscription) error
	OnInvoicePaymentFailed(ctx context.Context, providerSubscriptionID string) error
	FindByProviderID(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error)
}

type payoutHandler interface {
	OnPayoutPaid(ctx context.Context, providerPayoutID string) error
	OnPayoutFailed(ctx context.Context, providerPayoutID, reason string) error
}

type eventGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// ServiceParams groups the handlers the reconciler dispatches to. Guard,
// Metrics and Logger are optional.
type ServiceParams struct {
	Payments      paymentHandler
	Subscriptions subscriptionHandler
	Payouts       payoutHandler
	Guard         eventGuard
	Metrics       *metrics.WebhookMetrics
	Logger        *logger.Logger
}

// Service applies verified provider events to local state.
type Service struct {
	payments      paymentHandler
	subscriptions subscriptionHandler
	payouts       payoutHandler
	guard         eventGuard
	metrics       *metrics.WebhookMetrics
	logg          *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment handler required")
	}
	if params.Subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription handler required")
	}
	if params.Payouts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payout handler required")
	}
	return &Service{
		payments:      params.Payments,
		subscriptions: params.Subscriptions,
		payouts:       params.Payouts,
		guard:         params.Guard,
		metrics:       params.Metrics,
		logg:          params.Logger,
	}, nil
}

// Process dedupes the delivery by event id and dispatches it. When the handler
// fails the dedupe key is released so the provider's retry runs again.
func (s *Service) Process(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	eventType := string(event.Type)
	if s.logg != nil {
		ctx = s.logg.WithEventID(ctx, event.ID)
	}

	marked := false
	if s.guard != nil && event.ID != "" {
		seen, err := s.guard.CheckAndMark(ctx, event.ID)
		switch {
		case err != nil:
			s.warn(ctx, "webhook dedupe unavailable", map[string]any{"eventType": eventType, "error": err.Error()})
		case seen:
			s.metrics.Observe(eventType, metrics.WebhookOutcomeDuplicate)
			s.info(ctx, "duplicate webhook skipped", map[string]any{"eventType": eventType})
			return nil
		default:
			marked = true
		}
	}

	handled, err := s.HandleEvent(ctx, event)
	if err != nil {
		if marked {
			if delErr := s.guard.Delete(ctx, event.ID); delErr != nil {
				s.warn(ctx, "release webhook dedupe key", map[string]any{"error": delErr.Error()})
			}
		}
		s.metrics.Observe(eventType, metrics.WebhookOutcomeFailed)
		return err
	}
	if !handled {
		s.metrics.Observe(eventType, metrics.WebhookOutcomeIgnored)
		return nil
	}
	s.metrics.Observe(eventType, metrics.WebhookOutcomeProcessed)
	s.info(ctx, "webhook processed", map[string]any{"eventType": eventType})
	return nil
}

// HandleEvent routes a single event. It reports false for event types the
// service does not act on.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) (bool, error) {
	if event == nil || event.Data == nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		var intent stripe.PaymentIntent
		if err := decode(event, &intent); err != nil {
			return true, err
		}
		input := payments.PaymentSucceededInput{
			PaymentIntentID: intent.ID,
			Metadata:        intent.Metadata,
		}
		if intent.PaymentMethod != nil {
			input.PaymentMethod = intent.PaymentMethod.ID
		}
		return true, s.payments.OnPaymentSucceeded(ctx, input)

	case stripe.EventTypePaymentIntentPaymentFailed:
		var intent stripe.PaymentIntent
		if err := decode(event, &intent); err != nil {
			return true, err
		}
		return true, s.payments.OnPaymentFailed(ctx, intent.ID)

	case stripe.EventTypeCustomerSubscriptionCreated,
		stripe.EventTypeCustomerSubscriptionUpdated:
		var sub stripe.Subscription
		if err := decode(event, &sub); err != nil {
			return true, err
		}
		return true, s.subscriptions.SyncFromProvider(ctx, &sub)

	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := decode(event, &sub); err != nil {
			return true, err
		}
		return true, s.subscriptions.OnSubscriptionDeleted(ctx, &sub)

	case stripe.EventTypeInvoicePaymentSucceeded:
		var invoice stripe.Invoice
		if err := decode(event, &invoice); err != nil {
			return true, err
		}
		return true, s.recordInvoice(ctx, event, &invoice)

	case stripe.EventTypeInvoicePaymentFailed:
		var invoice stripe.Invoice
		if err := decode(event, &invoice); err != nil {
			return true, err
		}
		return true, s.subscriptions.OnInvoicePaymentFailed(ctx, subscriptionIDFromInvoice(event, &invoice))

	case stripe.EventTypePayoutPaid:
		var payout stripe.Payout
		if err := decode(event, &payout); err != nil {
			return true, err
		}
		return true, s.payouts.OnPayoutPaid(ctx, payout.ID)

	case stripe.EventTypePayoutFailed:
		var payout stripe.Payout
		if err := decode(event, &payout); err != nil {
			return true, err
		}
		return true, s.payouts.OnPayoutFailed(ctx, payout.ID, payout.FailureMessage)

	default:
		return false, nil
	}
}

func (s *Service) recordInvoice(ctx context.Context, event *stripe.Event, invoice *stripe.Invoice) error {
	subscriptionID := subscriptionIDFromInvoice(event, invoice)
	if subscriptionID == "" {
		s.info(ctx, "invoice without subscription ignored", map[string]any{"invoiceId": invoice.ID})
		return nil
	}

	userID, ok := userIDFromInvoice(invoice)
	if !ok {
		mirrored, err := s.subscriptions.FindByProviderID(ctx, subscriptionID)
		if err != nil {
			return err
		}
		if mirrored == nil {
			s.warn(ctx, "invoice for untracked subscription ignored", map[string]any{
				"invoiceId":              invoice.ID,
				"providerSubscriptionId": subscriptionID,
			})
			return nil
		}
		userID = mirrored.UserID
	}

	_, err := s.payments.RecordInvoicePayment(ctx, payments.InvoicePaymentInput{
		UserID:          userID,
		InvoiceID:       invoice.ID,
		SubscriptionID:  subscriptionID,
		AmountPaidCents: invoice.AmountPaid,
		Currency:        string(invoice.Currency),
	})
	return err
}

// decode failures on a signed event mean the payload shape drifted from the
// pinned API version; they surface as 500 so the provider keeps retrying.
func decode(event *stripe.Event, target any) error {
	if err := json.Unmarshal(event.Data.Raw, target); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode "+string(event.Type)+" event")
	}
	return nil
}

// subscriptionIDFromInvoice reads the subscription from the invoice parent,
// falling back to the top-level field older API versions send.
func subscriptionIDFromInvoice(event *stripe.Event, invoice *stripe.Invoice) string {
	if invoice != nil && invoice.Parent != nil && invoice.Parent.SubscriptionDetails != nil &&
		invoice.Parent.SubscriptionDetails.Subscription != nil {
		if id := strings.TrimSpace(invoice.Parent.SubscriptionDetails.Subscription.ID); id != "" {
			return id
		}
	}
	return strings.TrimSpace(event.GetObjectValue("subscription"))
}

func userIDFromInvoice(invoice *stripe.Invoice) (uuid.UUID, bool) {
	if invoice == nil || invoice.Parent == nil || invoice.Parent.SubscriptionDetails == nil {
		return uuid.Nil, false
	}
	return subscriptions.UserIDFromMetadata(invoice.Parent.SubscriptionDetails.Metadata)
}

func (s *Service) info(ctx context.Context, msg string, fields map[string]any) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), msg)
}

func (s *Service) warn(ctx context.Context, msg string, fields map[string]any) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithFields(ctx, fields), msg)
}
