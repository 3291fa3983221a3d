package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/nexusarena/payment-service/pkg/logger"
)

const (
	defaultSubscriptionGrace = 6 * time.Hour
	defaultReconcileLimit    = 250
)

type subscriptionReconciler interface {
	ReconcileLapsed(ctx context.Context, grace time.Duration, limit int) (int, error)
}

// SubscriptionReconcileJobParams configures the subscription sync cron job.
type SubscriptionReconcileJobParams struct {
	Logger        *logger.Logger
	Subscriptions subscriptionReconciler
	Grace         time.Duration
	Limit         int
}

// NewSubscriptionReconcileJob builds a job that re-reads live subscriptions
// whose billing period ended without a renewal event.
func NewSubscriptionReconcileJob(params SubscriptionReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscription service required")
	}
	grace := params.Grace
	if grace <= 0 {
		grace = defaultSubscriptionGrace
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultReconcileLimit
	}
	return &subscriptionReconcileJob{
		logg:          params.Logger,
		subscriptions: params.Subscriptions,
		grace:         grace,
		limit:         limit,
	}, nil
}

type subscriptionReconcileJob struct {
	logg          *logger.Logger
	subscriptions subscriptionReconciler
	grace         time.Duration
	limit         int
}

func (j *subscriptionReconcileJob) Name() string { return "subscription-reconcile" }

func (j *subscriptionReconcileJob) Run(ctx context.Context) error {
	synced, err := j.subscriptions.ReconcileLapsed(ctx, j.grace, j.limit)
	j.logg.Info(j.logg.WithField(ctx, "synced", synced), "subscription reconcile loop complete")
	if err != nil {
		return fmt.Errorf("reconcile subscriptions: %w", err)
	}
	return nil
}
