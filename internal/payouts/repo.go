package payouts

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

// ListFilter narrows a user's payout history.
type ListFilter struct {
	Status *enums.PayoutStatus
	pagination.Params
}

// Repository persists payout requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payout *models.Payout) error
	Save(ctx context.Context, payout *models.Payout) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	FindByProviderIDForUpdate(ctx context.Context, providerPayoutID string) (*models.Payout, error)
	ListByUser(ctx context.Context, userID uuid.UUID, filter ListFilter) ([]models.Payout, int64, error)
	ListStaleProcessing(ctx context.Context, updatedBefore time.Time, limit int) ([]models.Payout, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payout repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payout *models.Payout) error {
	return r.db.WithContext(ctx).Create(payout).Error
}

func (r *repository) Save(ctx context.Context, payout *models.Payout) error {
	return r.db.WithContext(ctx).Save(payout).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id))
}

func (r *repository) FindByProviderIDForUpdate(ctx context.Context, providerPayoutID string) (*models.Payout, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("provider_payout_id = ?", providerPayoutID))
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, filter ListFilter) ([]models.Payout, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Payout{}).Where("user_id = ?", userID)
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.Payout
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

// ListStaleProcessing returns processing payouts with a provider id that have
// not changed since updatedBefore, oldest first.
func (r *repository) ListStaleProcessing(ctx context.Context, updatedBefore time.Time, limit int) ([]models.Payout, error) {
	var rows []models.Payout
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.PayoutStatusProcessing).
		Where("provider_payout_id IS NOT NULL").
		Where("updated_at < ?", updatedBefore).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) first(query *gorm.DB) (*models.Payout, error) {
	var payout models.Payout
	if err := query.First(&payout).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}
