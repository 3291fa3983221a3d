package subscriptions

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	dbpkg "github.com/nexusarena/payment-service/pkg/db"
	"github.com/nexusarena/payment-service/pkg/db/models"
	"github.com/nexusarena/payment-service/pkg/enums"
	pkgerrors "github.com/nexusarena/payment-service/pkg/errors"
	"github.com/nexusarena/payment-service/pkg/logger"
	"github.com/nexusarena/payment-service/pkg/outbox"
	"github.com/nexusarena/payment-service/pkg/outbox/payloads"
	pkgstripe "github.com/nexusarena/payment-service/pkg/stripe"
)

const (
	prorationCreate       = "create_prorations"
	defaultReconcileLimit = 100
)

var errSkipMirror = errors.New("subscription mirror skipped")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type customerProvider interface {
	EnsureCustomer(ctx context.Context, userID uuid.UUID) (string, error)
}

type walletDirectory interface {
	WalletByProviderCustomer(ctx context.Context, customerID string) (*models.Wallet, error)
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams groups dependencies for the subscription service. Wallets,
// Emitter and Logger are optional.
type ServiceParams struct {
	Repository        Repository
	Stripe            StripeSubscriptionClient
	Customers         customerProvider
	Wallets           walletDirectory
	Catalog           *Catalog
	TransactionRunner txRunner
	Emitter           eventEmitter
	Logger            *logger.Logger
}

// CreateInput starts a subscription on a plan, paid with the given method.
type CreateInput struct {
	PlanID          string
	PaymentMethodID string
}

// Service tracks recurring plans against the billing provider and keeps the
// local mirror in step with it.
type Service struct {
	repo      Repository
	stripe    StripeSubscriptionClient
	customers customerProvider
	wallets   walletDirectory
	catalog   *Catalog
	txRunner  txRunner
	emitter   eventEmitter
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds a subscription service with the required dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription repository required")
	}
	if params.Stripe == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	if params.Customers == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "customer provider required")
	}
	if params.Catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "plan catalog required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	return &Service{
		repo:      params.Repository,
		stripe:    params.Stripe,
		customers: params.Customers,
		wallets:   params.Wallets,
		catalog:   params.Catalog,
		txRunner:  params.TransactionRunner,
		emitter:   params.Emitter,
		logg:      params.Logger,
		now:       time.Now,
	}, nil
}

// Plans returns the plan catalogue.
func (s *Service) Plans() []Plan {
	return s.catalog.Plans()
}

// Create subscribes the user to a plan. A user may hold at most one active or
// trialing subscription; a second attempt fails with Conflict and leaves a
// single row behind.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, input CreateInput) (*models.Subscription, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	plan, err := s.resolvePlan(input.PlanID)
	if err != nil {
		return nil, err
	}
	paymentMethodID := strings.TrimSpace(input.PaymentMethodID)
	if paymentMethodID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method id is required")
	}

	existing, err := s.repo.FindLive(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active subscription")
	}
	if existing != nil {
		return nil, liveConflict(existing)
	}

	customerID, err := s.customers.EnsureCustomer(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.stripe.AttachPaymentMethod(ctx, paymentMethodID, &stripe.PaymentMethodAttachParams{
		Customer: stripe.String(customerID),
	}); err != nil {
		return nil, pkgstripe.MapError(err, "attach payment method")
	}
	if _, err := s.stripe.UpdateCustomer(ctx, customerID, &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	}); err != nil {
		return nil, pkgstripe.MapError(err, "set default payment method")
	}

	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(plan.PriceID)},
		},
		DefaultPaymentMethod: stripe.String(paymentMethodID),
	}
	params.AddMetadata(metadataUserID, userID.String())
	params.AddMetadata(metadataPlanID, plan.ID.String())

	providerSub, err := s.stripe.Create(ctx, params)
	if err != nil {
		return nil, pkgstripe.MapError(err, "create stripe subscription")
	}
	if providerSub == nil || providerSub.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe subscription missing id")
	}

	var result *models.Subscription
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		// The provider's created event may already have mirrored this subscription.
		mirrored, err := repo.FindByProviderIDForUpdate(ctx, providerSub.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
		}
		if mirrored != nil {
			ApplyStripeSubscription(mirrored, providerSub)
			mirrored.PlanID = plan.ID
			if err := repo.Save(ctx, mirrored); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update subscription")
			}
			result = mirrored
			return s.emit(ctx, tx, mirrored, outbox.UserActor(userID))
		}

		live, err := repo.FindLiveForUpdate(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active subscription")
		}
		if live != nil {
			return liveConflict(live)
		}

		row, err := BuildSubscriptionFromStripe(providerSub, userID, plan.ID)
		if err != nil {
			return err
		}
		if err := repo.Create(ctx, row); err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "user already has an active subscription")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create subscription")
		}
		result = row
		return s.emit(ctx, tx, row, outbox.UserActor(userID))
	})
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeConflict) {
			if mirrored, findErr := s.repo.FindByProviderID(ctx, providerSub.ID); findErr == nil && mirrored != nil {
				return mirrored, nil
			}
			s.releaseProviderSubscription(ctx, providerSub.ID)
		}
		return nil, err
	}

	s.info(ctx, "subscription created", map[string]any{
		"userId":                 userID.String(),
		"subscriptionId":         result.ID.String(),
		"providerSubscriptionId": result.ProviderSubscriptionID,
		"planId":                 result.PlanID.String(),
	})
	return result, nil
}

// UpdatePlan moves the live subscription to another plan with prorations.
func (s *Service) UpdatePlan(ctx context.Context, userID uuid.UUID, planID string) (*models.Subscription, error) {
	plan, err := s.resolvePlan(planID)
	if err != nil {
		return nil, err
	}
	live, err := s.requireLive(ctx, userID)
	if err != nil {
		return nil, err
	}
	if live.PlanID == plan.ID {
		return live, nil
	}

	current, err := s.stripe.Get(ctx, live.ProviderSubscriptionID, nil)
	if err != nil {
		return nil, pkgstripe.MapError(err, "load stripe subscription")
	}
	item := firstItem(current)
	if item == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe subscription has no items")
	}

	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{ID: stripe.String(item.ID), Price: stripe.String(plan.PriceID)},
		},
		ProrationBehavior: stripe.String(prorationCreate),
	}
	params.AddMetadata(metadataPlanID, plan.ID.String())
	updated, err := s.stripe.Update(ctx, live.ProviderSubscriptionID, params)
	if err != nil {
		return nil, pkgstripe.MapError(err, "update stripe subscription")
	}

	return s.persist(ctx, live.ProviderSubscriptionID, updated, outbox.UserActor(userID), func(row *models.Subscription) {
		row.PlanID = plan.ID
	})
}

// Cancel ends the live subscription now, or at the end of the current period
// when immediate is false.
func (s *Service) Cancel(ctx context.Context, userID uuid.UUID, immediate bool) (*models.Subscription, error) {
	live, err := s.requireLive(ctx, userID)
	if err != nil {
		return nil, err
	}

	var providerSub *stripe.Subscription
	if immediate {
		providerSub, err = s.stripe.Cancel(ctx, live.ProviderSubscriptionID, nil)
	} else {
		providerSub, err = s.stripe.Update(ctx, live.ProviderSubscriptionID, &stripe.SubscriptionParams{
			CancelAtPeriodEnd: stripe.Bool(true),
		})
	}
	if err != nil {
		return nil, pkgstripe.MapError(err, "cancel stripe subscription")
	}

	return s.persist(ctx, live.ProviderSubscriptionID, providerSub, outbox.UserActor(userID), func(row *models.Subscription) {
		if !immediate {
			row.CancelAtPeriodEnd = true
			return
		}
		row.Status = enums.SubscriptionStatusCanceled
		row.CancelAtPeriodEnd = false
		if row.CanceledAt == nil {
			now := s.now().UTC()
			row.CanceledAt = &now
		}
	})
}

// Reactivate withdraws a scheduled period-end cancellation.
func (s *Service) Reactivate(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	live, err := s.requireLive(ctx, userID)
	if err != nil {
		return nil, err
	}
	if live.Status != enums.SubscriptionStatusActive || !live.CancelAtPeriodEnd {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "subscription is not scheduled for cancellation").WithDetails(map[string]any{
			"status":            live.Status,
			"cancelAtPeriodEnd": live.CancelAtPeriodEnd,
		})
	}

	providerSub, err := s.stripe.Update(ctx, live.ProviderSubscriptionID, &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(false),
	})
	if err != nil {
		return nil, pkgstripe.MapError(err, "reactivate stripe subscription")
	}

	return s.persist(ctx, live.ProviderSubscriptionID, providerSub, outbox.UserActor(userID), func(row *models.Subscription) {
		row.CancelAtPeriodEnd = false
		row.CanceledAt = nil
	})
}

// Current returns the user's active or trialing subscription, or nil.
func (s *Service) Current(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	live, err := s.repo.FindLive(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active subscription")
	}
	return live, nil
}

// History lists every subscription the user has held, newest first.
func (s *Service) History(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error) {
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list subscriptions")
	}
	return rows, nil
}

// FindByProviderID returns the mirrored subscription, or nil when untracked.
func (s *Service) FindByProviderID(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error) {
	row, err := s.repo.FindByProviderID(ctx, strings.TrimSpace(providerSubscriptionID))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	return row, nil
}

// SyncFromProvider upserts the local mirror from a provider subscription
// object. Subscriptions that cannot be tied to a user or a plan are skipped.
func (s *Service) SyncFromProvider(ctx context.Context, sub *stripe.Subscription) error {
	if sub == nil || strings.TrimSpace(sub.ID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe subscription is required")
	}

	existing, err := s.repo.FindByProviderID(ctx, sub.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	var (
		userID uuid.UUID
		planID enums.PlanID
	)
	if existing == nil {
		var ok bool
		userID, ok = s.userForSubscription(ctx, sub)
		if !ok {
			s.warn(ctx, "subscription event for unknown user ignored", map[string]any{"providerSubscriptionId": sub.ID})
			return nil
		}
		planID, ok = s.planForSubscription(sub)
		if !ok {
			s.warn(ctx, "subscription event for unknown plan ignored", map[string]any{
				"providerSubscriptionId": sub.ID,
				"priceId":                firstPriceID(sub),
			})
			return nil
		}
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		row, err := repo.FindByProviderIDForUpdate(ctx, sub.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
		}
		if row != nil {
			ApplyStripeSubscription(row, sub)
			if plan, ok := s.planForSubscription(sub); ok {
				row.PlanID = plan
			}
			if err := repo.Save(ctx, row); err != nil {
				if dbpkg.IsUniqueViolation(err, "ux_subscriptions_user_live") {
					return errSkipMirror
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update subscription")
			}
			return s.emit(ctx, tx, row, outbox.ProviderActor())
		}
		if userID == uuid.Nil {
			return errSkipMirror
		}

		created, err := BuildSubscriptionFromStripe(sub, userID, planID)
		if err != nil {
			return err
		}
		if err := repo.Create(ctx, created); err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return errSkipMirror
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create subscription")
		}
		return s.emit(ctx, tx, created, outbox.ProviderActor())
	})
	if errors.Is(err, errSkipMirror) {
		s.warn(ctx, "subscription mirror conflicts with an existing row", map[string]any{"providerSubscriptionId": sub.ID})
		return nil
	}
	return err
}

// OnSubscriptionDeleted marks the mirrored subscription canceled.
func (s *Service) OnSubscriptionDeleted(ctx context.Context, sub *stripe.Subscription) error {
	if sub == nil || strings.TrimSpace(sub.ID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe subscription is required")
	}
	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		row, err := repo.FindByProviderIDForUpdate(ctx, sub.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
		}
		if row == nil {
			s.info(ctx, "deleted subscription is not tracked", map[string]any{"providerSubscriptionId": sub.ID})
			return nil
		}
		if row.Status == enums.SubscriptionStatusCanceled {
			return nil
		}
		ApplyStripeSubscription(row, sub)
		row.Status = enums.SubscriptionStatusCanceled
		row.CancelAtPeriodEnd = false
		if row.CanceledAt == nil {
			now := s.now().UTC()
			row.CanceledAt = &now
		}
		if err := repo.Save(ctx, row); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update subscription")
		}
		return s.emit(ctx, tx, row, outbox.ProviderActor())
	})
}

// OnInvoicePaymentFailed refreshes the mirror after a failed renewal so the
// provider's past_due or unpaid state is reflected locally.
func (s *Service) OnInvoicePaymentFailed(ctx context.Context, providerSubscriptionID string) error {
	providerSubscriptionID = strings.TrimSpace(providerSubscriptionID)
	if providerSubscriptionID == "" {
		return nil
	}
	return s.Refresh(ctx, providerSubscriptionID)
}

// Refresh reads the subscription from the provider and mirrors it.
func (s *Service) Refresh(ctx context.Context, providerSubscriptionID string) error {
	sub, err := s.stripe.Get(ctx, providerSubscriptionID, nil)
	if err != nil {
		return pkgstripe.MapError(err, "load stripe subscription")
	}
	if sub.Status == stripe.SubscriptionStatusCanceled {
		return s.OnSubscriptionDeleted(ctx, sub)
	}
	return s.SyncFromProvider(ctx, sub)
}

// ReconcileLapsed refreshes live subscriptions whose period ended more than
// grace ago. It returns how many were refreshed; failures on one row do not
// stop the pass.
func (s *Service) ReconcileLapsed(ctx context.Context, grace time.Duration, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultReconcileLimit
	}
	lapsed, err := s.repo.ListLapsed(ctx, s.now().Add(-grace), limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list lapsed subscriptions")
	}
	var (
		errs      error
		refreshed int
	)
	for _, row := range lapsed {
		if err := ctx.Err(); err != nil {
			return refreshed, multierr.Append(errs, err)
		}
		if err := s.Refresh(ctx, row.ProviderSubscriptionID); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		refreshed++
	}
	return refreshed, errs
}

func (s *Service) persist(ctx context.Context, providerSubscriptionID string, providerSub *stripe.Subscription, actor *outbox.ActorRef, mutate func(row *models.Subscription)) (*models.Subscription, error) {
	var result *models.Subscription
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		row, err := repo.FindByProviderIDForUpdate(ctx, providerSubscriptionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
		}
		if row == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		ApplyStripeSubscription(row, providerSub)
		if mutate != nil {
			mutate(row)
		}
		if err := repo.Save(ctx, row); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update subscription")
		}
		result = row
		return s.emit(ctx, tx, row, actor)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) requireLive(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	live, err := s.repo.FindLive(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active subscription")
	}
	if live == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active subscription")
	}
	return live, nil
}

func (s *Service) resolvePlan(raw string) (Plan, error) {
	planID, err := enums.ParsePlanID(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		return Plan{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown plan")
	}
	plan, ok := s.catalog.Lookup(planID)
	if !ok {
		return Plan{}, pkgerrors.New(pkgerrors.CodeValidation, "plan is not available")
	}
	return plan, nil
}

func (s *Service) userForSubscription(ctx context.Context, sub *stripe.Subscription) (uuid.UUID, bool) {
	if id, ok := UserIDFromMetadata(sub.Metadata); ok {
		return id, true
	}
	if s.wallets == nil || sub.Customer == nil || sub.Customer.ID == "" {
		return uuid.Nil, false
	}
	wallet, err := s.wallets.WalletByProviderCustomer(ctx, sub.Customer.ID)
	if err != nil || wallet == nil {
		return uuid.Nil, false
	}
	return wallet.UserID, true
}

func (s *Service) planForSubscription(sub *stripe.Subscription) (enums.PlanID, bool) {
	if plan, ok := s.catalog.PlanForPrice(firstPriceID(sub)); ok {
		return plan.ID, true
	}
	if planID, err := enums.ParsePlanID(strings.TrimSpace(sub.Metadata[metadataPlanID])); err == nil {
		return planID, true
	}
	return "", false
}

func (s *Service) releaseProviderSubscription(ctx context.Context, providerSubscriptionID string) {
	if _, err := s.stripe.Cancel(ctx, providerSubscriptionID, nil); err != nil && s.logg != nil {
		s.logg.Error(s.logg.WithField(ctx, "providerSubscriptionId", providerSubscriptionID), "release duplicate stripe subscription", err)
	}
}

func (s *Service) emit(ctx context.Context, tx *gorm.DB, sub *models.Subscription, actor *outbox.ActorRef) error {
	if s.emitter == nil {
		return nil
	}
	err := s.emitter.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventSubscriptionChanged,
		AggregateType: enums.AggregateSubscription,
		AggregateID:   sub.ID,
		Actor:         actor,
		Data: payloads.SubscriptionChanged{
			SubscriptionID:         sub.ID,
			UserID:                 sub.UserID,
			ProviderSubscriptionID: sub.ProviderSubscriptionID,
			PlanID:                 sub.PlanID,
			Status:                 sub.Status,
			CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
			CurrentPeriodEnd:       sub.CurrentPeriodEnd,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit subscription event")
	}
	return nil
}

func (s *Service) info(ctx context.Context, msg string, fields map[string]any) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), msg)
}

func (s *Service) warn(ctx context.Context, msg string, fields map[string]any) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithFields(ctx, fields), msg)
}

func liveConflict(existing *models.Subscription) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "user already has an active subscription").WithDetails(map[string]any{
		"subscriptionId": existing.ID.String(),
		"status":         existing.Status,
	})
}
