package metrics

import "github.com/prometheus/client_golang/prometheus"

// Matching and notification Prometheus metrics.
var (
	MatchQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "petmatch",
			Name:      "match_queries_total",
			Help:      "Match queries by outcome",
		},
		[]string{"outcome"}, // "hit" / "empty" / "error"
	)

	MatchCandidates = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "petmatch",
			Name:      "match_candidates_returned",
			Help:      "Candidates returned per match query after policy filtering",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
	)

	MatchEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "petmatch",
			Name:      "match_events_total",
			Help:      "Match-event creation attempts by result",
		},
		[]string{"result"}, // "created" / "duplicate" / "error"
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "petmatch",
			Name:      "notification_deliveries_total",
			Help:      "Hand-offs to the notification delivery collaborator",
		},
		[]string{"status"}, // "ok" / "error"
	)
)

var matchingMetricsRegistered bool

// RegisterMatchingMetrics registers matching metrics. Must be called once from main.
func RegisterMatchingMetrics() {
	if matchingMetricsRegistered {
		return
	}
	prometheus.MustRegister(MatchQueriesTotal)
	prometheus.MustRegister(MatchCandidates)
	prometheus.MustRegister(MatchEventsTotal)
	prometheus.MustRegister(DeliveriesTotal)
	matchingMetricsRegistered = true
}
