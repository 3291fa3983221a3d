package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nexusarena/payment-service/pkg/config"
	"github.com/nexusarena/payment-service/pkg/db/models"
	"github.com/nexusarena/payment-service/pkg/enums"
	"github.com/nexusarena/payment-service/pkg/logger"
	"github.com/nexusarena/payment-service/pkg/outbox"
	"github.com/nexusarena/payment-service/pkg/outbox/payloads"
	"github.com/nexusarena/payment-service/pkg/outbox/registry"
)

var testTopics = config.PubSubConfig{
	WalletTopic:  "wallet-topic",
	PayoutTopic:  "payout-topic",
	BillingTopic: "billing-topic",
}

func TestProcessBatchContinuesAfterTransientFailure(t *testing.T) {
	userID := uuid.New()
	first := walletEvent(t, userID, 0)
	second := walletEvent(t, userID, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{first, second}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{err: errors.New("deadline exceeded")},
		fakePublishResult{},
	}}
	dlq := &fakeDLQRepo{}
	svc := newTestService(t, repo, dlq, func(string) publisher { return pub }, nil)

	claimed, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if !claimed {
		t.Fatal("expected rows to be claimed")
	}
	if len(repo.failed) != 1 || repo.failed[0] != first.ID {
		t.Fatalf("expected first row marked failed, got %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != second.ID {
		t.Fatalf("expected second row published, got %v", repo.published)
	}
	if len(dlq.entries) != 0 {
		t.Fatalf("transient failure must not dead-letter, got %d", len(dlq.entries))
	}
}

func TestProcessBatchRoutesByEventTypeAndSetsAttributes(t *testing.T) {
	userID := uuid.New()
	payoutID := uuid.New()
	payoutEvent := newEvent(t, enums.EventPayoutPaid, enums.AggregatePayout, payoutID, outbox.ProviderActor(), payloads.PayoutStatusChanged{
		PayoutID:     payoutID,
		UserID:       userID,
		Status:       enums.PayoutStatusPaid,
		AmountCents:  5000,
		Currency:     enums.CurrencyUSD,
		PayoutMethod: enums.PayoutMethodBankAccount,
	}, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{walletEvent(t, userID, 0), payoutEvent}}

	byTopic := map[string]*fakePublisher{}
	factory := func(topic string) publisher {
		if byTopic[topic] == nil {
			byTopic[topic] = &fakePublisher{results: []publishResult{fakePublishResult{}}}
		}
		return byTopic[topic]
	}
	svc := newTestService(t, repo, &fakeDLQRepo{}, factory, nil)

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(repo.published) != 2 {
		t.Fatalf("expected both rows published, got %d", len(repo.published))
	}
	if got := len(byTopic["wallet-topic"].sent); got != 1 {
		t.Fatalf("expected one wallet message, got %d", got)
	}
	sent := byTopic["payout-topic"].sent
	if len(sent) != 1 {
		t.Fatalf("expected one payout message, got %d", len(sent))
	}
	attrs := sent[0].Attributes
	if attrs["event_type"] != string(enums.EventPayoutPaid) {
		t.Fatalf("unexpected event_type %q", attrs["event_type"])
	}
	if attrs["aggregate_id"] != payoutID.String() {
		t.Fatalf("unexpected aggregate_id %q", attrs["aggregate_id"])
	}
	if attrs["source"] != outbox.SourceProvider {
		t.Fatalf("unexpected source %q", attrs["source"])
	}
	if _, ok := attrs["user_id"]; ok {
		t.Fatal("provider events carry no user_id attribute")
	}
	if attrs["version"] != "1" {
		t.Fatalf("unexpected version %q", attrs["version"])
	}
}

func TestProcessBatchDeadLettersUndecodableRow(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventPaymentSucceeded,
		AggregateType: enums.AggregatePayment,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1,"eventId":"x","data":null}`),
	}
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQRepo{}
	pub := &fakePublisher{}
	svc := newTestService(t, repo, dlq, func(string) publisher { return pub }, nil)

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(dlq.entries) != 1 {
		t.Fatalf("expected one dlq entry, got %d", len(dlq.entries))
	}
	if dlq.entries[0].reason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("unexpected reason %s", dlq.entries[0].reason)
	}
	if dlq.entries[0].event.ID != event.ID {
		t.Fatal("dead-lettered the wrong row")
	}
	if len(pub.sent) != 0 {
		t.Fatal("undecodable rows must not be published")
	}
}

func TestProcessBatchDeadLettersWhenTopicHasNoPublisher(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{walletEvent(t, uuid.New(), 0)}}
	dlq := &fakeDLQRepo{}
	svc := newTestService(t, repo, dlq, func(string) publisher { return nil }, nil)

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(dlq.entries) != 1 || dlq.entries[0].reason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("expected non-retryable dlq entry, got %+v", dlq.entries)
	}
	if len(repo.failed) != 0 {
		t.Fatal("non-retryable failures are not retried")
	}
}

func TestProcessBatchDeadLettersAfterMaxAttempts(t *testing.T) {
	event := walletEvent(t, uuid.New(), 2)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQRepo{}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{err: errors.New("unavailable")}}}
	svc := newTestService(t, repo, dlq, func(string) publisher { return pub }, &config.OutboxConfig{
		BatchSize:   1,
		MaxAttempts: 3,
	})

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(dlq.entries) != 1 {
		t.Fatalf("expected dlq entry, got %d", len(dlq.entries))
	}
	if dlq.entries[0].reason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("unexpected reason %s", dlq.entries[0].reason)
	}
	if len(repo.failed) != 0 {
		t.Fatal("terminal rows are not marked failed")
	}
}

func TestProcessBatchReportsIdleWhenQueueEmpty(t *testing.T) {
	svc := newTestService(t, &fakeRepo{}, &fakeDLQRepo{}, func(string) publisher { return nil }, nil)

	claimed, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if claimed {
		t.Fatal("empty queue must report idle")
	}
}

func TestProcessBatchPropagatesRepositoryError(t *testing.T) {
	repo := &fakeRepo{fetchErr: errors.New("connection reset")}
	svc := newTestService(t, repo, &fakeDLQRepo{}, func(string) publisher { return nil }, nil)

	if _, err := svc.processBatch(context.Background()); err == nil {
		t.Fatal("expected fetch error")
	}
}

func TestNewServiceRequiresDLQRepository(t *testing.T) {
	_, err := NewService(ServiceParams{
		Config:     &config.Config{},
		Logger:     logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:         &fakeDB{},
		PubSub:     &fakePubSubClient{},
		Repository: &fakeRepo{},
		Registry:   &fakeRegistry{},
	})
	if err == nil {
		t.Fatal("expected missing dlq repository error")
	}
}

func TestNextBackoffCapsAtLimit(t *testing.T) {
	base := 500 * time.Millisecond
	if got := nextBackoff(base, base, maxIdleBackoff); got != time.Second {
		t.Fatalf("expected 1s, got %v", got)
	}
	if got := nextBackoff(8*time.Second, base, maxIdleBackoff); got != maxIdleBackoff {
		t.Fatalf("expected cap %v, got %v", maxIdleBackoff, got)
	}
	if got := nextBackoff(0, base, maxIdleBackoff); got != time.Second {
		t.Fatalf("expected zero current to start from base, got %v", got)
	}
}

func TestRunStopsOnCanceledContext(t *testing.T) {
	svc := newTestService(t, &fakeRepo{}, &fakeDLQRepo{}, func(string) publisher { return nil }, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := svc.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func newTestService(t *testing.T, repo outboxRepository, dlq deadLetterRepository, factory publisherFactory, override *config.OutboxConfig) *Service {
	t.Helper()
	outboxCfg := config.OutboxConfig{BatchSize: 10, PollIntervalMS: 10, MaxAttempts: 5}
	if override != nil {
		outboxCfg = *override
	}
	eventRegistry, err := registry.NewEventRegistry(testTopics)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	svc, err := NewService(ServiceParams{
		Config:           &config.Config{Outbox: outboxCfg, PubSub: testTopics},
		Logger:           logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:               &fakeDB{},
		PubSub:           &fakePubSubClient{},
		Repository:       repo,
		DLQRepository:    dlq,
		Registry:         eventRegistry,
		PublisherFactory: factory,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func walletEvent(t *testing.T, userID uuid.UUID, attempts int) models.OutboxEvent {
	t.Helper()
	txID := uuid.New()
	return newEvent(t, enums.EventWalletTransactionRecorded, enums.AggregateWallet, userID, outbox.UserActor(userID), payloads.WalletTransactionRecorded{
		TransactionID:     txID,
		UserID:            userID,
		Type:              enums.WalletTransactionDeposit,
		AmountCents:       2500,
		BalanceAfterCents: 2500,
		RecordedAt:        time.Now().UTC(),
	}, attempts)
}

func newEvent(t *testing.T, eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, aggregateID uuid.UUID, actor *outbox.ActorRef, data any, attempts int) models.OutboxEvent {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Actor:      actor,
		Data:       raw,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: aggregate,
		AggregateID:   aggregateID,
		Payload:       payload,
		AttemptCount:  attempts,
		CreatedAt:     time.Now().UTC(),
	}
}

type fakeRepo struct {
	events    []models.OutboxEvent
	fetchErr  error
	published []uuid.UUID
	failed    []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, f.fetchErr
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

type deadLettered struct {
	event  models.OutboxEvent
	reason enums.OutboxDLQErrorReason
	cause  error
}

type fakeDLQRepo struct {
	entries []deadLettered
}

func (f *fakeDLQRepo) DeadLetter(_ *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	f.entries = append(f.entries, deadLettered{event: event, reason: reason, cause: cause})
	return nil
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type fakePubSubClient struct{}

func (fakePubSubClient) Ping(context.Context) error { return nil }

func (fakePubSubClient) Publisher(string) *gcppubsub.Publisher { return nil }

type fakeRegistry struct{}

func (fakeRegistry) Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error) {
	return nil, errors.New("not used")
}

type fakePublisher struct {
	results []publishResult
	sent    []*gcppubsub.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.sent = append(f.sent, msg)
	if len(f.results) == 0 {
		return fakePublishResult{}
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "msg-id", f.err
}
