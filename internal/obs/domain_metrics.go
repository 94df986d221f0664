package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CodeApplyTotal counts manual code applications by outcome. The result
	// label is "success" or the eligibility reason code.
	CodeApplyTotal *prometheus.CounterVec
	// AutoApplyTotal counts promotions attached by the auto-apply scan.
	AutoApplyTotal prometheus.Counter
	// DiscountEvictedTotal counts discounts evicted on recompute.
	DiscountEvictedTotal prometheus.Counter
	// CatalogRefreshTotal counts catalog snapshot refreshes by outcome.
	CatalogRefreshTotal *prometheus.CounterVec
	// OpenSessions gauges the number of live checkout sessions.
	OpenSessions prometheus.Gauge
	// LedgerTotalAmount records the total discount per ledger change, in
	// minor currency units.
	LedgerTotalAmount prometheus.Histogram
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CodeApplyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "code_apply_total",
			Help:      "Count of manual discount code applications by outcome.",
		}, []string{"result"})
		AutoApplyTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auto_apply_total",
			Help:      "Count of promotions attached automatically.",
		})
		DiscountEvictedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_evicted_total",
			Help:      "Count of applied discounts evicted on recompute.",
		})
		CatalogRefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_refresh_total",
			Help:      "Count of promotion catalog refreshes by outcome.",
		}, []string{"result"})
		OpenSessions = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_sessions",
			Help:      "Number of live checkout sessions.",
		})
		LedgerTotalAmount = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_total_amount",
			Help:      "Total discount per ledger change in minor currency units.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		})

		mustRegisterCollector(reg, CodeApplyTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CodeApplyTotal = v
			}
		})
		mustRegisterCollector(reg, AutoApplyTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				AutoApplyTotal = v
			}
		})
		mustRegisterCollector(reg, DiscountEvictedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				DiscountEvictedTotal = v
			}
		})
		mustRegisterCollector(reg, CatalogRefreshTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CatalogRefreshTotal = v
			}
		})
		mustRegisterCollector(reg, OpenSessions, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Gauge); ok {
				OpenSessions = v
			}
		})
		mustRegisterCollector(reg, LedgerTotalAmount, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				LedgerTotalAmount = v
			}
		})
	})
}

// ObserveCodeApply records a manual apply outcome. Safe before registration.
func ObserveCodeApply(result string) {
	if CodeApplyTotal == nil {
		return
	}
	CodeApplyTotal.WithLabelValues(result).Inc()
}

// ObserveCatalogRefresh records a catalog refresh outcome.
func ObserveCatalogRefresh(result string) {
	if CatalogRefreshTotal == nil {
		return
	}
	CatalogRefreshTotal.WithLabelValues(result).Inc()
}

// SetOpenSessions updates the live session gauge.
func SetOpenSessions(n int) {
	if OpenSessions == nil {
		return
	}
	OpenSessions.Set(float64(n))
}

// ObserveLedgerTotal records the discount total after a ledger change.
func ObserveLedgerTotal(total int64) {
	if LedgerTotalAmount == nil {
		return
	}
	LedgerTotalAmount.Observe(float64(total))
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
