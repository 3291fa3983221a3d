package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/nexusarena/payment-service/internal/payouts"
	"github.com/nexusarena/payment-service/pkg/logger"
)

const (
	defaultPayoutReconcileAfter = 24 * time.Hour
	defaultPayoutReconcileLimit = 100
)

type payoutReconciler interface {
	ReconcileProcessing(ctx context.Context, olderThan time.Duration, limit int) (payouts.ReconcileResult, error)
}

// PayoutReconcileJobParams configures the stale payout sweep.
type PayoutReconcileJobParams struct {
	Logger  *logger.Logger
	Payouts payoutReconciler
	After   time.Duration
	Limit   int
}

// NewPayoutReconcileJob builds a job that settles processing payouts whose
// provider webhook never arrived.
func NewPayoutReconcileJob(params PayoutReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payout service required")
	}
	after := params.After
	if after <= 0 {
		after = defaultPayoutReconcileAfter
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultPayoutReconcileLimit
	}
	return &payoutReconcileJob{
		logg:    params.Logger,
		payouts: params.Payouts,
		after:   after,
		limit:   limit,
	}, nil
}

type payoutReconcileJob struct {
	logg    *logger.Logger
	payouts payoutReconciler
	after   time.Duration
	limit   int
}

func (j *payoutReconcileJob) Name() string { return "payout-reconcile" }

func (j *payoutReconcileJob) Run(ctx context.Context) error {
	result, err := j.payouts.ReconcileProcessing(ctx, j.after, j.limit)
	reportCtx := j.logg.WithFields(ctx, map[string]any{
		"checked": result.Checked,
		"paid":    result.Paid,
		"failed":  result.Failed,
		"waiting": result.Waiting,
	})
	j.logg.Info(reportCtx, "payout reconcile loop complete")
	if err != nil {
		return fmt.Errorf("reconcile payouts: %w", err)
	}
	return nil
}
