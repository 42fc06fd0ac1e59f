// Package metrics exposes Prometheus instrumentation for eligibility queries
// and household mutations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

type Metrics struct {
	FilterQueries     *prometheus.CounterVec
	FilterDuration    prometheus.Histogram
	HouseholdsMatched prometheus.Histogram
	Mutations         *prometheus.CounterVec
	SpouseLinks       *prometheus.CounterVec
}

// New registers the metrics on reg. Each registry may only be used once.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FilterQueries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "govgrant_filter_queries_total",
			Help: "Eligibility queries by outcome",
		}, []string{"outcome"}),
		FilterDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "govgrant_filter_duration_seconds",
			Help:    "Duration of eligibility queries including the repository read",
			Buckets: durationBuckets,
		}),
		HouseholdsMatched: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "govgrant_filter_households_matched",
			Help:    "Households returned per eligibility query",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		Mutations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "govgrant_mutations_total",
			Help: "Household and member mutations by operation",
		}, []string{"op"}),
		SpouseLinks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "govgrant_spouse_links_total",
			Help: "Spouse links written, split by whether the reverse link was set",
		}, []string{"reverse"}),
	}
}

// ObserveFilter records a completed eligibility query.
// Call with time.Now() at the start of the query.
func (m *Metrics) ObserveFilter(start time.Time, matched int, err error) {
	if m == nil {
		return
	}
	m.FilterDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		m.FilterQueries.WithLabelValues("error").Inc()
		return
	}
	m.FilterQueries.WithLabelValues("ok").Inc()
	m.HouseholdsMatched.Observe(float64(matched))
}

func (m *Metrics) IncMutation(op string) {
	if m == nil {
		return
	}
	m.Mutations.WithLabelValues(op).Inc()
}

func (m *Metrics) IncSpouseLink(reverse bool) {
	if m == nil {
		return
	}
	label := "false"
	if reverse {
		label = "true"
	}
	m.SpouseLinks.WithLabelValues(label).Inc()
}
