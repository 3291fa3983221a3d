package metrics

import "github.com/prometheus/client_golang/prometheus"

// LedgerMetrics counts balance mutations and their rejections.
type LedgerMetrics struct {
	transactions      *prometheus.CounterVec
	amountCents       *prometheus.CounterVec
	insufficientFunds prometheus.Counter
	auditMismatches   prometheus.Counter
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	transactions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_transactions_total",
		Help:      "Ledger entries appended, by transaction type.",
	}, []string{"type"})
	amountCents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_amount_cents_total",
		Help:      "Absolute cents moved through the ledger, by transaction type.",
	}, []string{"type"})
	insufficient := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_insufficient_funds_total",
		Help:      "Debits rejected because the balance would go negative.",
	})
	mismatches := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_audit_mismatches_total",
		Help:      "Wallets whose cached balance disagrees with the ledger sum.",
	})
	reg.MustRegister(transactions, amountCents, insufficient, mismatches)
	return &LedgerMetrics{
		transactions:      transactions,
		amountCents:       amountCents,
		insufficientFunds: insufficient,
		auditMismatches:   mismatches,
	}
}

// ObserveTransaction records one appended entry.
func (l *LedgerMetrics) ObserveTransaction(txType string, amountCents int64) {
	if l == nil || l.transactions == nil {
		return
	}
	if amountCents < 0 {
		amountCents = -amountCents
	}
	label := normalizeLabel(txType)
	l.transactions.WithLabelValues(label).Inc()
	l.amountCents.WithLabelValues(label).Add(float64(amountCents))
}

// IncInsufficientFunds counts a rejected debit.
func (l *LedgerMetrics) IncInsufficientFunds() {
	if l == nil || l.insufficientFunds == nil {
		return
	}
	l.insufficientFunds.Inc()
}

// IncAuditMismatch counts an inconsistent wallet found by the audit job.
func (l *LedgerMetrics) IncAuditMismatch() {
	if l == nil || l.auditMismatches == nil {
		return
	}
	l.auditMismatches.Inc()
}
