// Package metrics holds the Prometheus collectors of the sync loop. They are
// registered with controller-runtime's global registry, which the metrics
// server exposes on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
)

const namespace = "dns_optimizer"

var (
	// Runs counts completed runs by outcome: success, partial or failed.
	Runs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Completed sync runs by outcome.",
	}, []string{"outcome"})

	// Actions counts reconcile actions by kind and outcome.
	Actions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "actions_total",
		Help:      "Reconcile actions by kind (create, update, noop) and outcome (ok, failed, skipped).",
	}, []string{"kind", "outcome"})

	RowsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_dropped_total",
		Help:      "Measurement rows rejected by the normalizer.",
	})

	// Selected is the number of addresses picked per bucket ("line/family")
	// in the last run.
	Selected = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "selected_addresses",
		Help:      "Addresses selected per line/family bucket in the last run.",
	}, []string{"bucket"})

	RunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of sync runs.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	LastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last run without failures.",
	})
)

func init() {
	ctrlmetrics.Registry.MustRegister(Runs, Actions, RowsDropped, Selected, RunDuration, LastSuccess)
}
