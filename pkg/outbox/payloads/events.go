package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/nexusarena/payment-service/pkg/enums"
)

// WalletTransactionRecorded is emitted for every appended ledger entry.
type WalletTransactionRecorded struct {
	TransactionID     uuid.UUID                   `json:"transaction_id"`
	UserID            uuid.UUID                   `json:"user_id"`
	Type              enums.WalletTransactionType `json:"type"`
	AmountCents       int64                       `json:"amount_cents"`
	BalanceAfterCents int64                       `json:"balance_after_cents"`
	ReferenceID       *uuid.UUID                  `json:"reference_id,omitempty"`
	ReferenceType     *enums.ReferenceType        `json:"reference_type,omitempty"`
	RecordedAt        time.Time                   `json:"recorded_at"`
}

// PaymentStatusChanged covers succeeded, failed and refunded payments.
type PaymentStatusChanged struct {
	PaymentID           uuid.UUID           `json:"payment_id"`
	UserID              uuid.UUID           `json:"user_id"`
	Status              enums.PaymentStatus `json:"status"`
	AmountCents         int64               `json:"amount_cents"`
	Currency            enums.Currency      `json:"currency"`
	RefundedAmountCents int64               `json:"refunded_amount_cents,omitempty"`
	TournamentID        string              `json:"tournament_id,omitempty"`
	WalletCredited      bool                `json:"wallet_credited"`
}

// PayoutStatusChanged covers every payout transition.
type PayoutStatusChanged struct {
	PayoutID         uuid.UUID          `json:"payout_id"`
	UserID           uuid.UUID          `json:"user_id"`
	Status           enums.PayoutStatus `json:"status"`
	AmountCents      int64              `json:"amount_cents"`
	Currency         enums.Currency     `json:"currency"`
	PayoutMethod     enums.PayoutMethod `json:"payout_method"`
	TournamentID     *uuid.UUID         `json:"tournament_id,omitempty"`
	ProviderPayoutID *string            `json:"provider_payout_id,omitempty"`
	FailureReason    *string            `json:"failure_reason,omitempty"`
	Compensated      bool               `json:"compensated"`
}

// SubscriptionChanged is emitted whenever the local subscription mirror changes.
type SubscriptionChanged struct {
	SubscriptionID         uuid.UUID                `json:"subscription_id"`
	UserID                 uuid.UUID                `json:"user_id"`
	ProviderSubscriptionID string                   `json:"provider_subscription_id"`
	PlanID                 enums.PlanID             `json:"plan_id"`
	Status                 enums.SubscriptionStatus `json:"status"`
	CancelAtPeriodEnd      bool                     `json:"cancel_at_period_end"`
	CurrentPeriodEnd       *time.Time               `json:"current_period_end,omitempty"`
}
