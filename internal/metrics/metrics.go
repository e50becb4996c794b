// Package metrics exposes Prometheus collectors for screenshot runs.
package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Capture outcomes, mirrored by the per-URL log status tag.
const (
	OutcomeSkip  = "skip"
	OutcomeFetch = "fetch"
	OutcomeFail  = "fail"
	OutcomeDone  = "done"
)

var (
	capturesTotal             *prometheus.CounterVec
	captureDurationSeconds    *prometheus.HistogramVec
	uploadsTotal              *prometheus.CounterVec
	limiterWaitSeconds        prometheus.Histogram
	limiterInFlight           prometheus.Gauge
	manifestRecordsTotal      prometheus.Gauge
	lastRunTimestampSeconds   prometheus.Gauge
	catalogFetchFailuresTotal prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		capturesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolshots_captures_total",
				Help: "Capture attempts labeled by URL kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		captureDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolshots_capture_duration_seconds",
				Help:    "Wall time spent capturing one URL, excluding limiter wait.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
			},
			[]string{"kind"},
		)

		uploadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolshots_uploads_total",
				Help: "CDN uploads labeled by outcome.",
			},
			[]string{"outcome"},
		)

		limiterWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "toolshots_limiter_wait_seconds",
				Help:    "Histogram of capture limiter wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		limiterInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "toolshots_limiter_in_flight",
				Help: "Capture operations currently holding a limiter slot.",
			},
		)

		manifestRecordsTotal = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "toolshots_manifest_records",
				Help: "Number of screenshot records in the persisted manifest.",
			},
		)

		lastRunTimestampSeconds = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "toolshots_last_run_timestamp_seconds",
				Help: "Unix time the last run persisted its manifest.",
			},
		)

		catalogFetchFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "toolshots_catalog_fetch_failures_total",
				Help: "Catalog sources that could not be fetched or decoded.",
			},
		)
	})
}

// ObserveCapture records the outcome of one capture decision.
func ObserveCapture(kind, outcome string) {
	Init()
	capturesTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveCaptureDuration records how long a capture took.
func ObserveCaptureDuration(kind string, duration time.Duration) {
	Init()
	captureDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveUpload records an upload outcome ("done" or "fail").
func ObserveUpload(outcome string) {
	Init()
	uploadsTotal.WithLabelValues(outcome).Inc()
}

// ObserveLimiterWait records the duration of a limiter wait.
func ObserveLimiterWait(duration time.Duration) {
	Init()
	limiterWaitSeconds.Observe(duration.Seconds())
}

// IncInFlight increments the in-flight gauge.
func IncInFlight() {
	Init()
	limiterInFlight.Inc()
}

// DecInFlight decrements the in-flight gauge.
func DecInFlight() {
	Init()
	limiterInFlight.Dec()
}

// ObserveManifest records the size of the persisted manifest and the run time.
func ObserveManifest(records int, at time.Time) {
	Init()
	manifestRecordsTotal.Set(float64(records))
	lastRunTimestampSeconds.Set(float64(at.Unix()))
}

// ObserveCatalogFailure increments the catalog failure counter.
func ObserveCatalogFailure() {
	Init()
	catalogFetchFailuresTotal.Inc()
}

// Push sends every registered collector to a Pushgateway under the given job name.
func Push(url, job string) error {
	Init()
	if err := push.New(url, job).Gatherer(prometheus.DefaultGatherer).Push(); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
