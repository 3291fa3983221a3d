package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nexusarena/payment-service/pkg/enums"
	"github.com/nexusarena/payment-service/pkg/types"
)

// Payment tracks one provider payment intent (or a paid subscription invoice).
type Payment struct {
	ID                      uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	UserID                  uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	AmountCents             int64               `gorm:"column:amount_cents;not null"`
	Currency                enums.Currency      `gorm:"column:currency;type:varchar(3);not null;default:'USD'"`
	Status                  enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'pending'"`
	PaymentMethod           *string             `gorm:"column:payment_method"`
	ProviderPaymentIntentID *string             `gorm:"column:provider_payment_intent_id;uniqueIndex"`
	ProviderInvoiceID       *string             `gorm:"column:provider_invoice_id;uniqueIndex"`
	ProviderRefundID        *string             `gorm:"column:provider_refund_id"`
	RefundedAmountCents     int64               `gorm:"column:refunded_amount_cents;not null;default:0"`
	WalletCredited          bool                `gorm:"column:wallet_credited;not null;default:false"`
	Description             string              `gorm:"column:description;not null;default:''"`
	Metadata                types.Metadata      `gorm:"column:metadata;type:jsonb"`
	CreatedAt               time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
