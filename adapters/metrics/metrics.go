// Package metrics provides Prometheus metrics collection for mapmeter.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for mapmeter.
type Collector struct {
	// Report metrics
	ReportsTotal *prometheus.CounterVec
	ReportUsed   *prometheus.GaugeVec
	ReportQuota  *prometheus.GaugeVec

	// Backend fetch metrics
	FetchDuration prometheus.Histogram
	FetchErrors   prometheus.Counter

	// Local ledger metrics
	BumpsTotal  *prometheus.CounterVec
	BumpAmounts *prometheus.CounterVec
	StoreErrors prometheus.Counter
}

// New creates a new metrics collector with all metrics registered.
func New() *Collector {
	return &Collector{
		ReportsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mapmeter",
				Name:      "reports_total",
				Help:      "Total number of usage reports generated",
			},
			[]string{"status"},
		),
		ReportUsed: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "mapmeter",
				Name:      "report_used",
				Help:      "Request count from the last report, per product",
			},
			[]string{"product"},
		),
		ReportQuota: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "mapmeter",
				Name:      "report_quota",
				Help:      "Configured monthly quota, per product",
			},
			[]string{"product"},
		),

		FetchDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "mapmeter",
				Name:      "backend_fetch_duration_seconds",
				Help:      "Duration of monitoring backend fetches, all pages included",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		FetchErrors: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "mapmeter",
				Name:      "backend_fetch_errors_total",
				Help:      "Total number of failed monitoring backend fetches",
			},
		),

		BumpsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mapmeter",
				Name:      "bumps_total",
				Help:      "Total number of manual usage bumps",
			},
			[]string{"product"},
		),
		BumpAmounts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mapmeter",
				Name:      "bump_amounts_total",
				Help:      "Sum of manually bumped usage, per product",
			},
			[]string{"product"},
		),
		StoreErrors: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "mapmeter",
				Name:      "store_errors_total",
				Help:      "Total number of local counter store failures",
			},
		),
	}
}

// ObserveReport records the per-product figures from a finished report.
func (c *Collector) ObserveReport(used, quota map[string]int64) {
	for product, u := range used {
		c.ReportUsed.WithLabelValues(product).Set(float64(u))
	}
	for product, q := range quota {
		c.ReportQuota.WithLabelValues(product).Set(float64(q))
	}
}
