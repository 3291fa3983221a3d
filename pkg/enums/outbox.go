package enums

import "fmt"

// OutboxAggregateType names the entity an outbox event describes.
type OutboxAggregateType string

const (
	AggregateWallet       OutboxAggregateType = "wallet"
	AggregatePayment      OutboxAggregateType = "payment"
	AggregatePayout       OutboxAggregateType = "payout"
	AggregateSubscription OutboxAggregateType = "subscription"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateWallet,
	AggregatePayment,
	AggregatePayout,
	AggregateSubscription,
}

// IsValid reports whether the value matches the outbox_aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the outbox_event_type enum in Postgres.
type OutboxEventType string

const (
	EventWalletTransactionRecorded OutboxEventType = "wallet_transaction_recorded"
	EventPaymentSucceeded          OutboxEventType = "payment_succeeded"
	EventPaymentFailed             OutboxEventType = "payment_failed"
	EventPaymentRefunded           OutboxEventType = "payment_refunded"
	EventPayoutRequested           OutboxEventType = "payout_requested"
	EventPayoutPaid                OutboxEventType = "payout_paid"
	EventPayoutFailed              OutboxEventType = "payout_failed"
	EventPayoutCanceled            OutboxEventType = "payout_canceled"
	EventSubscriptionChanged       OutboxEventType = "subscription_changed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventWalletTransactionRecorded,
	EventPaymentSucceeded,
	EventPaymentFailed,
	EventPaymentRefunded,
	EventPayoutRequested,
	EventPayoutPaid,
	EventPayoutFailed,
	EventPayoutCanceled,
	EventSubscriptionChanged,
}

// IsValid reports whether the value matches the outbox_event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
