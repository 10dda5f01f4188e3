// Package metrics exposes Prometheus instrumentation for the reef engine.
package metrics

// #region imports
import (
	"github.com/prometheus/client_golang/prometheus"
)

// #endregion

// #region metrics

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	SubmissionsTotal  prometheus.Counter
	TransitionsTotal  *prometheus.CounterVec
	SearchesTotal     prometheus.Counter
	SearchDuration    prometheus.Histogram
	SweepDuration     prometheus.Histogram
	IndexSize         prometheus.Gauge
	VerifierDeferrals prometheus.Counter
}

// New registers the engine collectors on reg and returns them. Passing
// prometheus.DefaultRegisterer wires the default /metrics endpoint.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SubmissionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reef",
			Name:      "submissions_total",
			Help:      "Polyp submissions accepted into Draft.",
		}),
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reef",
			Name:      "transitions_total",
			Help:      "Lifecycle transitions by destination state.",
		}, []string{"to_state"}),
		SearchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reef",
			Name:      "searches_total",
			Help:      "Semantic search requests served.",
		}),
		SearchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "reef",
			Name:      "search_duration_seconds",
			Help:      "End-to-end search latency including query embedding.",
			Buckets:   prometheus.DefBuckets,
		}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "reef",
			Name:      "sweep_duration_seconds",
			Help:      "Consensus sweep duration.",
			Buckets:   prometheus.DefBuckets,
		}),
		IndexSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "reef",
			Name:      "index_vectors",
			Help:      "Vectors currently held by the in-memory index.",
		}),
		VerifierDeferrals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reef",
			Name:      "verifier_deferrals_total",
			Help:      "Sweep evaluations deferred because the verifier was unavailable.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.SubmissionsTotal,
			m.TransitionsTotal,
			m.SearchesTotal,
			m.SearchDuration,
			m.SweepDuration,
			m.IndexSize,
			m.VerifierDeferrals,
		)
	}
	return m
}

// #endregion metrics
