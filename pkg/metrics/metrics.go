package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// InstancesByState tracks how many instances sit in each lifecycle state
	InstancesByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shepherd_instances",
			Help: "Number of monitored instances by lifecycle state",
		},
		[]string{"state"},
	)

	// ProbesTotal counts health probes by result
	ProbesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shepherd_probes_total",
			Help: "Total health probes by result",
		},
		[]string{"result"},
	)

	// TransitionsTotal counts lifecycle transitions by destination state
	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shepherd_state_transitions_total",
			Help: "Total lifecycle state transitions by destination state",
		},
		[]string{"to_state"},
	)

	// RunsTotal counts closed run cycles by outcome
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shepherd_runs_total",
			Help: "Total closed run cycles by outcome",
		},
		[]string{"outcome"},
	)

	// SyncDurationSeconds observes how long instances took to finish syncing
	SyncDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shepherd_sync_duration_seconds",
			Help:    "Time instances spent in the syncing state",
			Buckets: prometheus.ExponentialBuckets(60, 2, 12),
		},
	)

	// RunDurationSeconds observes how long full run cycles took
	RunDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shepherd_run_duration_seconds",
			Help:    "Wall-clock duration of closed run cycles",
			Buckets: prometheus.ExponentialBuckets(60, 2, 12),
		},
	)
)

func init() {
	prometheus.MustRegister(
		InstancesByState,
		ProbesTotal,
		TransitionsTotal,
		RunsTotal,
		SyncDurationSeconds,
		RunDurationSeconds,
	)
}

// Handler returns the HTTP handler that serves the metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}
