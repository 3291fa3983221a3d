package subscriptions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/nexusarena/payment-service/pkg/db"
	"github.com/nexusarena/payment-service/pkg/db/models"
	"github.com/nexusarena/payment-service/pkg/enums"
)

// Repository persists the local subscription mirror.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, sub *models.Subscription) error
	Save(ctx context.Context, sub *models.Subscription) error
	FindLive(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	FindLiveForUpdate(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	FindByProviderID(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error)
	FindByProviderIDForUpdate(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error)
	ListLapsed(ctx context.Context, periodEndBefore time.Time, limit int) ([]models.Subscription, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a subscription repository. Finders return (nil, nil)
// when no row matches.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *repository) Save(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Save(sub).Error
}

func (r *repository) FindLive(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	return r.first(r.liveQuery(ctx, userID))
}

func (r *repository) FindLiveForUpdate(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	return r.first(r.liveQuery(ctx, userID).Clauses(clause.Locking{Strength: "UPDATE"}))
}

func (r *repository) FindByProviderID(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error) {
	return r.first(r.db.WithContext(ctx).Where("provider_subscription_id = ?", providerSubscriptionID))
}

func (r *repository) FindByProviderIDForUpdate(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("provider_subscription_id = ?", providerSubscriptionID))
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error) {
	var rows []models.Subscription
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&rows).Error
	return rows, err
}

// ListLapsed returns live subscriptions whose current period ended before the
// cutoff, oldest first. These are rows whose renewal webhook never arrived.
func (r *repository) ListLapsed(ctx context.Context, periodEndBefore time.Time, limit int) ([]models.Subscription, error) {
	var rows []models.Subscription
	err := r.db.WithContext(ctx).
		Where("status IN ?", enums.LiveSubscriptionStatuses()).
		Where("current_period_end IS NOT NULL AND current_period_end < ?", periodEndBefore).
		Order("current_period_end ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) liveQuery(ctx context.Context, userID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("status IN ?", enums.LiveSubscriptionStatuses()).
		Order("created_at DESC")
}

func (r *repository) first(query *gorm.DB) (*models.Subscription, error) {
	var sub models.Subscription
	if err := query.First(&sub).Error; err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}
