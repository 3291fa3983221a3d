package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nexusarena/payment-service/pkg/enums"
)

// Wallet is the cached balance projection of a user's ledger.
type Wallet struct {
	UserID                   uuid.UUID      `gorm:"column:user_id;type:uuid;primaryKey"`
	BalanceCents             int64          `gorm:"column:balance_cents;not null;default:0;check:chk_user_wallets_balance_non_negative,balance_cents >= 0"`
	Currency                 enums.Currency `gorm:"column:currency;type:varchar(3);not null;default:'USD'"`
	ProviderCustomerID       *string        `gorm:"column:provider_customer_id"`
	ProviderConnectAccountID *string        `gorm:"column:provider_connect_account_id"`
	CreatedAt                time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (Wallet) TableName() string {
	return "user_wallets"
}
