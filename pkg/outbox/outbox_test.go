package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nexusarena/payment-service/pkg/db/dbtest"
	"github.com/nexusarena/payment-service/pkg/db/models"
	"github.com/nexusarena/payment-service/pkg/enums"
)

type walletPayload struct {
	AmountCents int64 `json:"amount_cents"`
}

func TestEmitWritesEnvelope(t *testing.T) {
	client := dbtest.New(t)
	svc := NewService(NewRepository(client.DB()), nil)
	aggregateID := uuid.New()
	userID := uuid.New()

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventWalletTransactionRecorded,
			AggregateType: enums.AggregateWallet,
			AggregateID:   aggregateID,
			Actor:         UserActor(userID),
			Data:          walletPayload{AmountCents: 5000},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, client.DB().Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, aggregateID, rows[0].AggregateID)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	require.Equal(t, 1, envelope.Version)
	require.NotEmpty(t, envelope.EventID)
	require.NotNil(t, envelope.Actor)
	require.Equal(t, userID, *envelope.Actor.UserID)

	var data walletPayload
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	require.Equal(t, int64(5000), data.AmountCents)
}

func TestEmitRolledBackWithTransaction(t *testing.T) {
	client := dbtest.New(t)
	svc := NewService(NewRepository(client.DB()), nil)
	boom := errors.New("boom")

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventPayoutRequested,
			AggregateType: enums.AggregatePayout,
			AggregateID:   uuid.New(),
			Data:          map[string]string{},
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestEmitRequiresTransaction(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	err := svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventPayoutPaid})
	require.Error(t, err)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	client := dbtest.New(t)
	repo := NewRepository(client.DB())
	dlq := NewDLQRepository(client.DB())

	first := models.OutboxEvent{
		EventType:     enums.EventPaymentSucceeded,
		AggregateType: enums.AggregatePayment,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
	}
	second := first
	second.AggregateID = uuid.New()
	require.NoError(t, repo.Insert(client.DB(), first))
	require.NoError(t, repo.Insert(client.DB(), second))

	var claimed []models.OutboxEvent
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		claimed, err = repo.FetchUnpublishedForPublish(tx, 10, 3)
		if err != nil {
			return err
		}
		if err := repo.MarkPublishedTx(tx, claimed[0].ID); err != nil {
			return err
		}
		return repo.MarkFailedTx(tx, claimed[1].ID, errors.New("topic unavailable"))
	})
	require.NoError(t, err)
	require.Len(t, claimed, 2)

	pending, err := repo.CountUnpublished()
	require.NoError(t, err)
	require.Equal(t, int64(1), pending)

	err = client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return dlq.DeadLetter(tx, claimed[1], enums.OutboxDLQReasonNonRetryable, errors.New("bad payload"))
	})
	require.NoError(t, err)

	pending, err = repo.CountUnpublished()
	require.NoError(t, err)
	require.Zero(t, pending)

	entry, err := dlq.FindByEventID(context.Background(), claimed[1].ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, enums.OutboxDLQReasonNonRetryable, entry.ErrorReason)
	require.Equal(t, 1, entry.AttemptCount)

	deleted, err := repo.DeletePublishedBefore(time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(2), deleted)
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "abc", truncate("abcdef", 3))
	require.Equal(t, "ab", truncate("ab", 3))
}
