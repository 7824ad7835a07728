// Package metrics provides Prometheus instrumentation for tracker runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the tracker's collectors, registered on an injected
// Registerer so tests and embedders can isolate them.
type Metrics struct {
	RunsTotal      *prometheus.CounterVec
	RunDuration    prometheus.Histogram
	LastTotalUSD   prometheus.Gauge
	LastRewardsUSD prometheus.Gauge
}

// New registers the tracker collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lp_tracker_runs_total",
			Help: "Tracker runs by outcome",
		}, []string{"outcome"}),

		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lp_tracker_run_duration_seconds",
			Help:    "Wall time of one full run",
			Buckets: prometheus.DefBuckets,
		}),

		LastTotalUSD: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lp_tracker_last_total_usd",
			Help: "Total USD value of the position at the last successful run",
		}),

		LastRewardsUSD: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lp_tracker_last_rewards_usd",
			Help: "Uncollected rewards USD value at the last successful run",
		}),
	}
}

// ObserveRun records one finished run.
func (m *Metrics) ObserveRun(start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(time.Since(start).Seconds())
}
