package metrics

import "github.com/prometheus/client_golang/prometheus"

// LedgerMetrics counts applied quantity changes and optimistic-lock retries.
type LedgerMetrics struct {
	applies   *prometheus.CounterVec
	conflicts prometheus.Counter
}

func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	applies := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invsync_ledger_applies_total",
		Help: "Quantity changes committed to the ledger by source.",
	}, []string{"source"})
	conflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "invsync_ledger_version_conflicts_total",
		Help: "Optimistic version conflicts observed while applying quantities.",
	})
	reg.MustRegister(applies, conflicts)
	return &LedgerMetrics{applies: applies, conflicts: conflicts}
}

func (l *LedgerMetrics) IncApply(source string) {
	if l == nil || l.applies == nil {
		return
	}
	l.applies.WithLabelValues(normalizeLabel(source)).Inc()
}

func (l *LedgerMetrics) IncConflict() {
	if l == nil || l.conflicts == nil {
		return
	}
	l.conflicts.Inc()
}
