package navigator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	steps        *prometheus.CounterVec
	results      *prometheus.CounterVec
	fetchSeconds prometheus.Histogram
}

// NewMetrics registers the navigator collectors with reg. A nil reg keeps them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		steps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "seeker",
				Subsystem: "navigator",
				Name:      "steps_total",
				Help:      "Navigation state transitions",
			},
			[]string{"state"},
		),
		results: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "seeker",
				Subsystem: "navigator",
				Name:      "results_total",
				Help:      "Terminal navigation results",
			},
			[]string{"outcome", "kind"},
		),
		fetchSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "seeker",
				Subsystem: "navigator",
				Name:      "fetch_seconds",
				Help:      "Page fetch latency in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
			},
		),
	}
}

func (m *Metrics) observeState(state State) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(string(state)).Inc()
}

func (m *Metrics) observeResult(result Result) {
	if m == nil {
		return
	}
	outcome := "failure"
	if result.Success {
		outcome = "success"
	}
	m.results.WithLabelValues(outcome, string(result.Kind)).Inc()
}

func (m *Metrics) observeFetch(seconds float64) {
	if m == nil {
		return
	}
	m.fetchSeconds.Observe(seconds)
}
