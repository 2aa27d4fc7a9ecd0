package metrics

import "github.com/prometheus/client_golang/prometheus"

// Inference Prometheus metrics.
var (
	InferenceRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "petmatch",
			Name:      "inference_requests_total",
			Help:      "Total number of feature extraction requests",
		},
		[]string{"driver", "model", "status"},
	)

	InferenceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "petmatch",
			Name:      "inference_duration_seconds",
			Help:      "Feature extraction duration in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"driver", "model"},
	)

	InferenceErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "petmatch",
			Name:      "inference_errors_total",
			Help:      "Feature extraction failures by kind",
		},
		[]string{"driver", "model", "kind"},
	)
)

var inferenceMetricsRegistered bool

// RegisterInferenceMetrics registers inference metrics. Must be called once from main.
func RegisterInferenceMetrics() {
	if inferenceMetricsRegistered {
		return
	}
	prometheus.MustRegister(InferenceRequestsTotal)
	prometheus.MustRegister(InferenceDuration)
	prometheus.MustRegister(InferenceErrorsTotal)
	inferenceMetricsRegistered = true
}
