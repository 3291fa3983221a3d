package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stripe/stripe-go/v84"

	"github.com/nexusarena/payment-service/internal/payments"
	"github.com/nexusarena/payment-service/pkg/db/models"
	pkgerrors "github.com/nexusarena/payment-service/pkg/errors"
	"github.com/nexusarena/payment-service/pkg/metrics"
)

func TestService_DispatchesEachEventType(t *testing.T) {
	userID := uuid.New()
	cases := []struct {
		name      string
		eventType stripe.EventType
		raw       string
		check     func(t *testing.T, h *recorder)
	}{
		{
			name:      "payment succeeded",
			eventType: stripe.EventTypePaymentIntentSucceeded,
			raw:       `{"id":"pi_1","object":"payment_intent","payment_method":"pm_1","metadata":{"tournamentId":"t-1"}}`,
			check: func(t *testing.T, h *recorder) {
				if len(h.succeeded) != 1 || h.succeeded[0].PaymentIntentID != "pi_1" || h.succeeded[0].PaymentMethod != "pm_1" {
					t.Fatalf("unexpected succeeded calls %+v", h.succeeded)
				}
				if h.succeeded[0].Metadata["tournamentId"] != "t-1" {
					t.Fatalf("expected metadata to be forwarded")
				}
			},
		},
		{
			name:      "payment failed",
			eventType: stripe.EventTypePaymentIntentPaymentFailed,
			raw:       `{"id":"pi_2","object":"payment_intent"}`,
			check: func(t *testing.T, h *recorder) {
				if len(h.failed) != 1 || h.failed[0] != "pi_2" {
					t.Fatalf("unexpected failed calls %v", h.failed)
				}
			},
		},
		{
			name:      "subscription created",
			eventType: stripe.EventTypeCustomerSubscriptionCreated,
			raw:       `{"id":"sub_1","object":"subscription","status":"active"}`,
			check: func(t *testing.T, h *recorder) {
				if len(h.synced) != 1 || h.synced[0] != "sub_1" {
					t.Fatalf("unexpected sync calls %v", h.synced)
				}
			},
		},
		{
			name:      "subscription updated",
			eventType: stripe.EventTypeCustomerSubscriptionUpdated,
			raw:       `{"id":"sub_1","object":"subscription","status":"past_due"}`,
			check: func(t *testing.T, h *recorder) {
				if len(h.synced) != 1 {
					t.Fatalf("unexpected sync calls %v", h.synced)
				}
			},
		},
		{
			name:      "subscription deleted",
			eventType: stripe.EventTypeCustomerSubscriptionDeleted,
			raw:       `{"id":"sub_1","object":"subscription","status":"canceled"}`,
			check: func(t *testing.T, h *recorder) {
				if len(h.deleted) != 1 || h.deleted[0] != "sub_1" {
					t.Fatalf("unexpected delete calls %v", h.deleted)
				}
			},
		},
		{
			name:      "invoice paid",
			eventType: stripe.EventTypeInvoicePaymentSucceeded,
			raw: fmt.Sprintf(`{"id":"in_1","object":"invoice","amount_paid":1999,"currency":"usd",
				"parent":{"type":"subscription_details","subscription_details":{"subscription":"sub_1","metadata":{"user_id":%q}}}}`, userID),
			check: func(t *testing.T, h *recorder) {
				if len(h.invoices) != 1 {
					t.Fatalf("expected one invoice payment, got %d", len(h.invoices))
				}
				got := h.invoices[0]
				if got.UserID != userID || got.InvoiceID != "in_1" || got.SubscriptionID != "sub_1" || got.AmountPaidCents != 1999 || got.Currency != "usd" {
					t.Fatalf("unexpected invoice payment %+v", got)
				}
			},
		},
		{
			name:      "invoice payment failed",
			eventType: stripe.EventTypeInvoicePaymentFailed,
			raw:       `{"id":"in_2","object":"invoice","parent":{"type":"subscription_details","subscription_details":{"subscription":"sub_9"}}}`,
			check: func(t *testing.T, h *recorder) {
				if len(h.invoiceFailed) != 1 || h.invoiceFailed[0] != "sub_9" {
					t.Fatalf("unexpected invoice failures %v", h.invoiceFailed)
				}
			},
		},
		{
			name:      "payout paid",
			eventType: stripe.EventTypePayoutPaid,
			raw:       `{"id":"po_1","object":"payout","status":"paid"}`,
			check: func(t *testing.T, h *recorder) {
				if len(h.paid) != 1 || h.paid[0] != "po_1" {
					t.Fatalf("unexpected paid calls %v", h.paid)
				}
			},
		},
		{
			name:      "payout failed",
			eventType: stripe.EventTypePayoutFailed,
			raw:       `{"id":"po_2","object":"payout","status":"failed","failure_message":"account closed"}`,
			check: func(t *testing.T, h *recorder) {
				if len(h.payoutFailed) != 1 || h.payoutFailed[0] != "po_2:account closed" {
					t.Fatalf("unexpected payout failures %v", h.payoutFailed)
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := &recorder{}
			svc := newTestService(t, h, nil, nil)

			handled, err := svc.HandleEvent(context.Background(), newEvent("evt_"+tc.name, tc.eventType, tc.raw))
			if err != nil {
				t.Fatalf("handle event: %v", err)
			}
			if !handled {
				t.Fatalf("expected %s to be handled", tc.eventType)
			}
			tc.check(t, h)
		})
	}
}

func TestService_IgnoresUnknownEventTypes(t *testing.T) {
	h := &recorder{}
	reg := prometheus.NewRegistry()
	webhookMetrics := metrics.NewWebhookMetrics(reg)
	svc := newTestService(t, h, nil, webhookMetrics)

	err := svc.Process(context.Background(), newEvent("evt_unknown", "charge.captured", `{"id":"ch_1"}`))
	if err != nil {
		t.Fatalf("expected unknown types to be acknowledged, got %v", err)
	}
	if h.calls() != 0 {
		t.Fatalf("expected no handler calls")
	}
	if got := testutil.ToFloat64(webhookMetrics.Counter("charge.captured", metrics.WebhookOutcomeIgnored)); got != 1 {
		t.Fatalf("expected ignored counter 1, got %v", got)
	}
}

func TestService_InvoiceFallsBackToMirroredSubscription(t *testing.T) {
	userID := uuid.New()
	h := &recorder{mirrored: map[string]uuid.UUID{"sub_legacy": userID}}
	svc := newTestService(t, h, nil, nil)

	event := newEvent("evt_legacy", stripe.EventTypeInvoicePaymentSucceeded,
		`{"id":"in_legacy","object":"invoice","amount_paid":500,"currency":"usd","subscription":"sub_legacy"}`)
	event.Data.Object = map[string]any{"id": "in_legacy", "subscription": "sub_legacy"}

	if _, err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(h.invoices) != 1 || h.invoices[0].UserID != userID {
		t.Fatalf("expected invoice recorded for mirrored user, got %+v", h.invoices)
	}
}

func TestService_InvoiceForUntrackedSubscriptionIsAcknowledged(t *testing.T) {
	h := &recorder{}
	svc := newTestService(t, h, nil, nil)

	raw := `{"id":"in_x","object":"invoice","amount_paid":500,"parent":{"type":"subscription_details","subscription_details":{"subscription":"sub_unknown"}}}`
	if _, err := svc.HandleEvent(context.Background(), newEvent("evt_x", stripe.EventTypeInvoicePaymentSucceeded, raw)); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(h.invoices) != 0 {
		t.Fatalf("expected no invoice payment, got %d", len(h.invoices))
	}
}

func TestService_ProcessSkipsRedelivery(t *testing.T) {
	h := &recorder{}
	guard := newTestGuard(t)
	reg := prometheus.NewRegistry()
	webhookMetrics := metrics.NewWebhookMetrics(reg)
	svc := newTestService(t, h, guard, webhookMetrics)
	event := newEvent("evt_dup", stripe.EventTypePayoutFailed, `{"id":"po_1","object":"payout","failure_message":"closed"}`)

	for i := 0; i < 2; i++ {
		if err := svc.Process(context.Background(), event); err != nil {
			t.Fatalf("process %d: %v", i, err)
		}
	}
	if len(h.payoutFailed) != 1 {
		t.Fatalf("expected handler to run once, got %d", len(h.payoutFailed))
	}
	if got := testutil.ToFloat64(webhookMetrics.Counter(string(stripe.EventTypePayoutFailed), metrics.WebhookOutcomeDuplicate)); got != 1 {
		t.Fatalf("expected duplicate counter 1, got %v", got)
	}
}

func TestService_ProcessReleasesKeyOnFailure(t *testing.T) {
	h := &recorder{payoutErr: errors.New("db unavailable")}
	guard := newTestGuard(t)
	svc := newTestService(t, h, guard, nil)
	event := newEvent("evt_retry", stripe.EventTypePayoutPaid, `{"id":"po_1","object":"payout"}`)

	if err := svc.Process(context.Background(), event); err == nil {
		t.Fatal("expected handler error")
	}

	h.payoutErr = nil
	if err := svc.Process(context.Background(), event); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if len(h.paid) != 2 {
		t.Fatalf("expected retry to reach the handler, got %d calls", len(h.paid))
	}
}

func TestService_ProcessContinuesWhenGuardFails(t *testing.T) {
	h := &recorder{}
	store := newMemoryStore()
	store.err = errors.New("redis down")
	guard, err := NewIdempotencyGuard(store, time.Hour, "stripe")
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	svc := newTestService(t, h, guard, nil)

	if err := svc.Process(context.Background(), newEvent("evt_1", stripe.EventTypePayoutPaid, `{"id":"po_1"}`)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(h.paid) != 1 {
		t.Fatalf("expected handler to run without dedupe")
	}
}

func TestService_RejectsMalformedPayload(t *testing.T) {
	h := &recorder{}
	svc := newTestService(t, h, nil, nil)

	_, err := svc.HandleEvent(context.Background(), newEvent("evt_bad", stripe.EventTypePayoutPaid, `{"id":`))
	if err == nil {
		t.Fatal("expected decode error")
	}
	if !pkgerrors.Is(err, pkgerrors.CodeInternal) {
		t.Fatalf("expected retryable internal error, got %v", err)
	}
	if status := pkgerrors.MetadataFor(pkgerrors.CodeInternal).HTTPStatus; status < 500 {
		t.Fatalf("expected 5xx for decode failure, got %d", status)
	}
	if _, err := svc.HandleEvent(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil event")
	}
}

func TestNewServiceRequiresHandlers(t *testing.T) {
	if _, err := NewService(ServiceParams{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestIdempotencyGuard(t *testing.T) {
	guard := newTestGuard(t)
	ctx := context.Background()

	seen, err := guard.CheckAndMark(ctx, "evt_1")
	if err != nil || seen {
		t.Fatalf("first mark: seen=%t err=%v", seen, err)
	}
	seen, err = guard.CheckAndMark(ctx, "evt_1")
	if err != nil || !seen {
		t.Fatalf("second mark: seen=%t err=%v", seen, err)
	}
	if err := guard.Delete(ctx, "evt_1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	seen, _ = guard.CheckAndMark(ctx, "evt_1")
	if seen {
		t.Fatal("expected key to be released")
	}
	if _, err := guard.CheckAndMark(ctx, ""); err == nil {
		t.Fatal("expected error for empty id")
	}
	if _, err := NewIdempotencyGuard(nil, time.Hour, "stripe"); err == nil {
		t.Fatal("expected error for nil store")
	}
}

func newTestService(t *testing.T, h *recorder, guard *IdempotencyGuard, m *metrics.WebhookMetrics) *Service {
	t.Helper()
	params := ServiceParams{
		Payments:      h,
		Subscriptions: h,
		Payouts:       h,
		Metrics:       m,
	}
	if guard != nil {
		params.Guard = guard
	}
	svc, err := NewService(params)
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	return svc
}

func newTestGuard(t *testing.T) *IdempotencyGuard {
	t.Helper()
	guard, err := NewIdempotencyGuard(newMemoryStore(), time.Hour, "stripe")
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	return guard
}

func newEvent(id string, eventType stripe.EventType, raw string) *stripe.Event {
	return &stripe.Event{
		ID:   id,
		Type: eventType,
		Data: &stripe.EventData{Raw: []byte(raw)},
	}
}

type recorder struct {
	succeeded     []payments.PaymentSucceededInput
	failed        []string
	invoices      []payments.InvoicePaymentInput
	synced        []string
	deleted       []string
	invoiceFailed []string
	paid          []string
	payoutFailed  []string
	mirrored      map[string]uuid.UUID
	payoutErr     error
}

func (r *recorder) calls() int {
	return len(r.succeeded) + len(r.failed) + len(r.invoices) + len(r.synced) +
		len(r.deleted) + len(r.invoiceFailed) + len(r.paid) + len(r.payoutFailed)
}

func (r *recorder) OnPaymentSucceeded(_ context.Context, input payments.PaymentSucceededInput) error {
	r.succeeded = append(r.succeeded, input)
	return nil
}

func (r *recorder) OnPaymentFailed(_ context.Context, paymentIntentID string) error {
	r.failed = append(r.failed, paymentIntentID)
	return nil
}

func (r *recorder) RecordInvoicePayment(_ context.Context, input payments.InvoicePaymentInput) (*models.Payment, error) {
	r.invoices = append(r.invoices, input)
	return &models.Payment{}, nil
}

func (r *recorder) SyncFromProvider(_ context.Context, sub *stripe.Subscription) error {
	r.synced = append(r.synced, sub.ID)
	return nil
}

func (r *recorder) OnSubscriptionDeleted(_ context.Context, sub *stripe.Subscription) error {
	r.deleted = append(r.deleted, sub.ID)
	return nil
}

func (r *recorder) OnInvoicePaymentFailed(_ context.Context, providerSubscriptionID string) error {
	r.invoiceFailed = append(r.invoiceFailed, providerSubscriptionID)
	return nil
}

func (r *recorder) FindByProviderID(_ context.Context, providerSubscriptionID string) (*models.Subscription, error) {
	userID, ok := r.mirrored[providerSubscriptionID]
	if !ok {
		return nil, nil
	}
	return &models.Subscription{UserID: userID, ProviderSubscriptionID: providerSubscriptionID}, nil
}

func (r *recorder) OnPayoutPaid(_ context.Context, providerPayoutID string) error {
	r.paid = append(r.paid, providerPayoutID)
	return r.payoutErr
}

func (r *recorder) OnPayoutFailed(_ context.Context, providerPayoutID, reason string) error {
	r.payoutFailed = append(r.payoutFailed, providerPayoutID+":"+reason)
	return nil
}

type memoryStore struct {
	keys map[string]string
	err  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]string{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	return m.keys[key], m.err
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	if m.err != nil {
		return m.err
	}
	m.keys[key] = fmt.Sprint(value)
	return nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "nexus:idempotency:" + scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.keys, key)
	}
	return m.err
}
