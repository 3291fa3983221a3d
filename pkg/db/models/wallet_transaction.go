package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nexusarena/payment-service/pkg/enums"
)

// WalletTransaction is an immutable ledger entry. The (reference_type,
// reference_id, type) unique index allows at most one entry of each type per
// referenced payment or payout.
type WalletTransaction struct {
	ID                uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	UserID            uuid.UUID                   `gorm:"column:user_id;type:uuid;not null;index:idx_wallet_transactions_user_created,priority:1"`
	Type              enums.WalletTransactionType `gorm:"column:type;type:wallet_transaction_type;not null;uniqueIndex:ux_wallet_transactions_reference,priority:3,where:reference_id IS NOT NULL"`
	AmountCents       int64                       `gorm:"column:amount_cents;not null"`
	BalanceAfterCents int64                       `gorm:"column:balance_after_cents;not null;check:chk_wallet_transactions_balance_after,balance_after_cents >= 0"`
	Description       string                      `gorm:"column:description;not null;default:''"`
	ReferenceID       *uuid.UUID                  `gorm:"column:reference_id;type:uuid;uniqueIndex:ux_wallet_transactions_reference,priority:2,where:reference_id IS NOT NULL"`
	ReferenceType     *enums.ReferenceType        `gorm:"column:reference_type;type:varchar(50);uniqueIndex:ux_wallet_transactions_reference,priority:1,where:reference_id IS NOT NULL"`
	CreatedAt         time.Time                   `gorm:"column:created_at;autoCreateTime;index:idx_wallet_transactions_user_created,priority:2"`
}

func (w *WalletTransaction) BeforeCreate(*gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
