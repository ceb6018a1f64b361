package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Convergence cycle metrics
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_convergence_cycles_total",
			Help: "Total number of convergence cycles by result",
		},
		[]string{"result"},
	)

	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_convergence_cycle_duration_seconds",
			Help:    "Duration of a full convergence cycle in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	LastSuccess = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_convergence_last_success_timestamp_seconds",
			Help: "Unix time of the last fully successful convergence cycle",
		},
	)

	// Cluster membership metrics
	HeadNodes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_head_nodes",
			Help: "Number of configured head nodes",
		},
	)

	MinQuorum = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_min_quorum",
			Help: "Quorum derived from the head node count",
		},
	)

	JoinsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_cluster_joins_total",
			Help: "Cluster join decisions by outcome (joined, skipped, failed)",
		},
		[]string{"outcome"},
	)

	StepFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_step_failures_total",
			Help: "Failed administrative steps by step",
		},
		[]string{"step"},
	)

	CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burrow_step_duration_seconds",
			Help:    "Duration of administrative steps in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"step"},
	)

	// Policy metrics
	PolicyAppliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_policy_applies_total",
			Help: "HA policy applications by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(CyclesTotal)
	prometheus.MustRegister(CycleDuration)
	prometheus.MustRegister(LastSuccess)
	prometheus.MustRegister(HeadNodes)
	prometheus.MustRegister(MinQuorum)
	prometheus.MustRegister(JoinsTotal)
	prometheus.MustRegister(StepFailures)
	prometheus.MustRegister(CommandDuration)
	prometheus.MustRegister(PolicyAppliesTotal)
}

// Result label values
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Join outcome label values
const (
	OutcomeJoined  = "joined"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// ServeMux exposes /metrics, /health, /ready and /live
func ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", HealthHandler())
	mux.HandleFunc("/ready", ReadyHandler())
	mux.HandleFunc("/live", LivenessHandler())
	return mux
}
