package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SaleMetrics tracks purchase settlement activity.
type SaleMetrics struct {
	purchases *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
}

// TreasuryMetrics tracks withdrawal-queue activity.
type TreasuryMetrics struct {
	withdrawals *prometheus.CounterVec
}

var (
	saleMetricsOnce sync.Once
	saleRegistry    *SaleMetrics

	treasuryMetricsOnce sync.Once
	treasuryRegistry    *TreasuryMetrics
)

// Sale returns the lazily-initialised sale metrics registry.
func Sale() *SaleMetrics {
	saleMetricsOnce.Do(func() {
		saleRegistry = &SaleMetrics{
			purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "aurum",
				Subsystem: "sale",
				Name:      "purchases_total",
				Help:      "Settled purchases segmented by path.",
			}, []string{"path"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "aurum",
				Subsystem: "sale",
				Name:      "purchase_errors_total",
				Help:      "Rejected purchases segmented by path and reason.",
			}, []string{"path", "reason"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "aurum",
				Subsystem: "sale",
				Name:      "purchase_seconds",
				Help:      "Settlement latency segmented by path.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"path"}),
		}
		prometheus.MustRegister(saleRegistry.purchases, saleRegistry.errors, saleRegistry.latency)
	})
	return saleRegistry
}

// RecordPurchase increments the settled-purchase counter and observes the
// settlement duration.
func (m *SaleMetrics) RecordPurchase(path string, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := normaliseLabel(path)
	m.purchases.WithLabelValues(label).Inc()
	m.latency.WithLabelValues(label).Observe(elapsed.Seconds())
}

// RecordPurchaseError increments the rejection counter for the given reason.
func (m *SaleMetrics) RecordPurchaseError(path, reason string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(normaliseLabel(path), normaliseLabel(reason)).Inc()
}

// Treasury returns the lazily-initialised treasury metrics registry.
func Treasury() *TreasuryMetrics {
	treasuryMetricsOnce.Do(func() {
		treasuryRegistry = &TreasuryMetrics{
			withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "aurum",
				Subsystem: "treasury",
				Name:      "withdrawals_total",
				Help:      "Withdrawal-queue transitions segmented by action.",
			}, []string{"action"}),
		}
		prometheus.MustRegister(treasuryRegistry.withdrawals)
	})
	return treasuryRegistry
}

// RecordWithdrawal increments the withdrawal counter for the given action
// (queued, immediate, executed, cancelled).
func (m *TreasuryMetrics) RecordWithdrawal(action string) {
	if m == nil {
		return
	}
	m.withdrawals.WithLabelValues(normaliseLabel(action)).Inc()
}

func normaliseLabel(v string) string {
	trimmed := strings.TrimSpace(strings.ToLower(v))
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
