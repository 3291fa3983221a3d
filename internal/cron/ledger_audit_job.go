package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/nexusarena/payment-service/internal/ledger"
	"github.com/nexusarena/payment-service/pkg/logger"
	"github.com/nexusarena/payment-service/pkg/metrics"
)

const defaultLedgerAuditBatch = 500

type ledgerAuditor interface {
	ListWalletUserIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
	VerifyConsistency(ctx context.Context, userID uuid.UUID) (*ledger.ConsistencyReport, error)
}

// LedgerAuditJobParams configures the wallet consistency audit.
type LedgerAuditJobParams struct {
	Logger  *logger.Logger
	Ledger  ledgerAuditor
	Metrics *metrics.LedgerMetrics
	Batch   int
}

// NewLedgerAuditJob builds a job that compares every cached wallet balance
// with the sum of its ledger entries.
func NewLedgerAuditJob(params LedgerAuditJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultLedgerAuditBatch
	}
	return &ledgerAuditJob{
		logg:    params.Logger,
		ledger:  params.Ledger,
		metrics: params.Metrics,
		batch:   batch,
	}, nil
}

type ledgerAuditJob struct {
	logg    *logger.Logger
	ledger  ledgerAuditor
	metrics *metrics.LedgerMetrics
	batch   int
}

func (j *ledgerAuditJob) Name() string { return "ledger-audit" }

func (j *ledgerAuditJob) Run(ctx context.Context) error {
	var (
		errs       error
		after      = uuid.Nil
		audited    int
		mismatches int
	)
	for {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		ids, err := j.ledger.ListWalletUserIDs(ctx, after, j.batch)
		if err != nil {
			return multierr.Append(errs, fmt.Errorf("list wallets: %w", err))
		}
		for _, userID := range ids {
			report, err := j.ledger.VerifyConsistency(ctx, userID)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("audit wallet %s: %w", userID, err))
				continue
			}
			audited++
			if report.Consistent {
				continue
			}
			mismatches++
			j.metrics.IncAuditMismatch()
			j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
				"user_id":          userID.String(),
				"balance_cents":    report.BalanceCents,
				"ledger_sum_cents": report.LedgerSumCents,
				"entry_count":      report.EntryCount,
			}), "wallet balance does not match ledger")
		}
		if len(ids) < j.batch {
			break
		}
		after = ids[len(ids)-1]
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"audited":    audited,
		"mismatches": mismatches,
	}), "ledger audit complete")
	if mismatches > 0 {
		errs = multierr.Append(errs, fmt.Errorf("%d wallets out of balance", mismatches))
	}
	return errs
}
