package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nexusarena/payment-service/pkg/enums"
	"github.com/nexusarena/payment-service/pkg/types"
)

// Payout is a withdrawal request. Funds are debited when the row is created.
type Payout struct {
	ID               uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	UserID           uuid.UUID          `gorm:"column:user_id;type:uuid;not null;index"`
	TournamentID     *uuid.UUID         `gorm:"column:tournament_id;type:uuid"`
	AmountCents      int64              `gorm:"column:amount_cents;not null;check:chk_payouts_minimum_amount,amount_cents >= 100"`
	Currency         enums.Currency     `gorm:"column:currency;type:varchar(3);not null;default:'USD'"`
	Status           enums.PayoutStatus `gorm:"column:status;type:payout_status;not null;default:'pending';index"`
	PayoutMethod     enums.PayoutMethod `gorm:"column:payout_method;type:payout_method;not null;default:'bank_account'"`
	ProviderPayoutID *string            `gorm:"column:provider_payout_id;uniqueIndex"`
	Description      string             `gorm:"column:description;not null;default:''"`
	FailureReason    *string            `gorm:"column:failure_reason"`
	Metadata         types.Metadata     `gorm:"column:metadata;type:jsonb"`
	EstimatedArrival *time.Time         `gorm:"column:estimated_arrival"`
	ProcessedAt      *time.Time         `gorm:"column:processed_at"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payout) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
