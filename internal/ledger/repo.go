package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nexusarena/payment-service/pkg/db/models"
	"github.com/nexusarena/payment-service/pkg/enums"
	"github.com/nexusarena/payment-service/pkg/pagination"
)

// Repository manages persistence for wallets and their ledger entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	EnsureWallet(ctx context.Context, userID uuid.UUID) error
	FindWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	LockWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	FindWalletByProviderCustomer(ctx context.Context, customerID string) (*models.Wallet, error)
	UpdateBalance(ctx context.Context, userID uuid.UUID, balanceCents int64) error
	InsertTransaction(ctx context.Context, entry *models.WalletTransaction) error
	ListTransactions(ctx context.Context, userID uuid.UUID, filter TransactionFilter) ([]models.WalletTransaction, int64, error)
	LedgerTotals(ctx context.Context, userID uuid.UUID) (LedgerTotals, error)
	SetProviderCustomer(ctx context.Context, userID uuid.UUID, customerID string) error
	SetConnectAccount(ctx context.Context, userID uuid.UUID, accountID string) error
	ListWalletUserIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
}

// TransactionFilter narrows a ledger listing.
type TransactionFilter struct {
	Type *enums.WalletTransactionType
	pagination.Params
}

// LedgerTotals aggregates a wallet's entries.
type LedgerTotals struct {
	SumCents              int64
	EntryCount            int64
	LastBalanceAfterCents *int64
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) EnsureWallet(ctx context.Context, userID uuid.UUID) error {
	wallet := models.Wallet{UserID: userID, Currency: enums.CurrencyUSD}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&wallet).Error
}

func (r *repository) FindWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) LockWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) FindWalletByProviderCustomer(ctx context.Context, customerID string) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).Where("provider_customer_id = ?", customerID).First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) UpdateBalance(ctx context.Context, userID uuid.UUID, balanceCents int64) error {
	return r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"balance_cents": balanceCents,
			"updated_at":    time.Now().UTC(),
		}).Error
}

func (r *repository) InsertTransaction(ctx context.Context, entry *models.WalletTransaction) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListTransactions(ctx context.Context, userID uuid.UUID, filter TransactionFilter) ([]models.WalletTransaction, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.WalletTransaction{}).Where("user_id = ?", userID)
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.WalletTransaction
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *repository) LedgerTotals(ctx context.Context, userID uuid.UUID) (LedgerTotals, error) {
	var agg struct {
		SumCents   int64
		EntryCount int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.WalletTransaction{}).
		Select("COALESCE(SUM(amount_cents), 0) AS sum_cents, COUNT(*) AS entry_count").
		Where("user_id = ?", userID).
		Scan(&agg).Error; err != nil {
		return LedgerTotals{}, err
	}
	totals := LedgerTotals{SumCents: agg.SumCents, EntryCount: agg.EntryCount}
	if agg.EntryCount == 0 {
		return totals, nil
	}

	var last models.WalletTransaction
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(1).
		Find(&last).Error; err != nil {
		return LedgerTotals{}, err
	}
	totals.LastBalanceAfterCents = &last.BalanceAfterCents
	return totals, nil
}

func (r *repository) SetProviderCustomer(ctx context.Context, userID uuid.UUID, customerID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"provider_customer_id": customerID,
			"updated_at":           time.Now().UTC(),
		}).Error
}

func (r *repository) SetConnectAccount(ctx context.Context, userID uuid.UUID, accountID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"provider_connect_account_id": accountID,
			"updated_at":                  time.Now().UTC(),
		}).Error
}

func (r *repository) ListWalletUserIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := r.db.WithContext(ctx).Model(&models.Wallet{})
	if after != uuid.Nil {
		query = query.Where("user_id > ?", after)
	}
	if err := query.Order("user_id ASC").Limit(limit).Pluck("user_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
