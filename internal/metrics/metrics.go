// Package metrics defines the Prometheus collectors of the name generator.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const subsystem = "namegen"

var (
	// PredictLatencyBuckets covers local predictors (tens of microseconds)
	// up to a slow remote model server.
	PredictLatencyBuckets = []float64{
		0.00005, 0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
	}
)

var (
	namesGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "names_generated_total",
			Help:      "Counter of returned names broken out by the reason sampling stopped.",
		},
		[]string{"stop"},
	)

	duplicateRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "duplicate_retries_total",
			Help:      "Counter of generation attempts discarded because they matched a corpus name.",
		},
		[]string{},
	)

	generationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "generation_errors_total",
			Help:      "Counter of failed generation calls broken out by reason.",
		},
		[]string{"reason"},
	)

	predictDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Subsystem: subsystem,
			Name:      "predict_duration_seconds",
			Help:      "Distribution of predictor call latency in seconds.",
			Buckets:   PredictLatencyBuckets,
		},
		[]string{},
	)

	predictorCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "predictor_cache_requests_total",
			Help:      "Counter of predictor cache lookups broken out by hit or miss.",
		},
		[]string{"result"},
	)
)

var registerOnce sync.Once

// Register registers all collectors with reg. Subsequent calls are no-ops.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(
			namesGenerated,
			duplicateRetries,
			generationErrors,
			predictDuration,
			predictorCache,
		)
	})
}

// Reset zeroes every collector. Intended for tests.
func Reset() {
	namesGenerated.Reset()
	duplicateRetries.Reset()
	generationErrors.Reset()
	predictDuration.Reset()
	predictorCache.Reset()
}

// RecordNameGenerated counts a returned name.
func RecordNameGenerated(stop string) {
	namesGenerated.WithLabelValues(stop).Inc()
}

// RecordDuplicateRetry counts an attempt rejected as a known name.
func RecordDuplicateRetry() {
	duplicateRetries.WithLabelValues().Inc()
}

// RecordGenerationError counts a failed generation call.
func RecordGenerationError(reason string) {
	generationErrors.WithLabelValues(reason).Inc()
}

// RecordPredictDuration observes one predictor call.
func RecordPredictDuration(d time.Duration) {
	predictDuration.WithLabelValues().Observe(d.Seconds())
}

// RecordPredictorCache counts a cache lookup.
func RecordPredictorCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	predictorCache.WithLabelValues(result).Inc()
}
