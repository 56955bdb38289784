package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metering collects search credit metering outcomes. A nil *Metering records nothing.
type Metering struct {
	// submissions counts search submissions by terminal metering state
	submissions *prometheus.CounterVec

	// creditsDebited counts credits taken for premium filters
	creditsDebited prometheus.Counter

	// dimensionsCharged counts charges per premium filter dimension
	dimensionsCharged *prometheus.CounterVec

	// duration tracks metering latency (classification through debit, search excluded)
	duration *prometheus.HistogramVec
}

// NewMetering registers the metering collectors on reg.
func NewMetering(reg prometheus.Registerer) *Metering {
	f := promauto.With(reg)
	return &Metering{
		submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clearmarket_search_submissions_total",
			Help: "Search submissions by metering outcome",
		}, []string{"outcome", "cost"}),
		creditsDebited: f.NewCounter(prometheus.CounterOpts{
			Name: "clearmarket_search_credits_debited_total",
			Help: "Credits debited for premium search filters",
		}),
		dimensionsCharged: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clearmarket_search_dimensions_charged_total",
			Help: "Premium filter dimensions charged",
		}, []string{"dimension"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clearmarket_search_metering_duration_seconds",
			Help:    "Time spent metering a search submission",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}, []string{"outcome"}),
	}
}

// ObserveSubmission records one metered submission.
func (m *Metering) ObserveSubmission(outcome string, cost int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome, costLabel(cost)).Inc()
	m.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveDebit records credits taken and the dimensions they paid for.
func (m *Metering) ObserveDebit(credits int, dimensions []string) {
	if m == nil {
		return
	}
	m.creditsDebited.Add(float64(credits))
	for _, d := range dimensions {
		m.dimensionsCharged.WithLabelValues(d).Inc()
	}
}

// costLabel keeps label cardinality bounded: there are only four premium dimensions.
func costLabel(cost int) string {
	if cost > 4 {
		return "4+"
	}
	return strconv.Itoa(cost)
}

// Handler exposes the collectors registered on g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
