// Package metrics counts test verdicts, waits, retries and lost artifacts for
// one worker and writes them as a Prometheus textfile when the session ends.
package metrics

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/entrhq/aqx-uitest/pkg/failure"
	"github.com/entrhq/aqx-uitest/pkg/retry"
)

const namespace = "aqx_uitest"

// Metrics owns a private registry so workers and tests never share series.
type Metrics struct {
	registry *prometheus.Registry

	tests            *prometheus.CounterVec
	testDuration     prometheus.Histogram
	pollEvaluations  prometheus.Counter
	pollTimeouts     prometheus.Counter
	pollDuration     prometheus.Histogram
	retryAttempts    *prometheus.CounterVec
	retryExhausted   prometheus.Counter
	artifactFailures *prometheus.CounterVec
	sessionFailures  prometheus.Counter
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		tests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tests_total",
			Help:      "Finished tests by verdict.",
		}, []string{"verdict"}),
		testDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "test_duration_seconds",
			Help:      "Wall time of each test.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 9), // 1s to ~4m
		}),
		pollEvaluations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "evaluations_total",
			Help:      "Predicate evaluations across all waits.",
		}),
		pollTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "timeouts_total",
			Help:      "Waits that gave up.",
		}),
		pollDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "duration_seconds",
			Help:      "Time spent in each wait.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),
		retryAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "attempts_total",
			Help:      "Retry attempts by result kind.",
		}, []string{"kind"}),
		retryExhausted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "exhausted_total",
			Help:      "Retry loops that used up their attempts.",
		}),
		artifactFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "artifact",
			Name:      "write_failures_total",
			Help:      "Failure artifacts that could not be captured or written.",
		}, []string{"kind"}),
		sessionFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "failures_total",
			Help:      "Sessions that never became ready.",
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// PollFinished implements wait.Observer.
func (m *Metrics) PollFinished(_ string, evaluations int, elapsed time.Duration, err error) {
	m.pollEvaluations.Add(float64(evaluations))
	m.pollDuration.Observe(elapsed.Seconds())
	if errors.Is(err, failure.ErrTimedOut) {
		m.pollTimeouts.Inc()
	}
}

// RetryAttempt implements retry.Observer.
func (m *Metrics) RetryAttempt(_ string, _ int, kind retry.Kind) {
	m.retryAttempts.WithLabelValues(kind.String()).Inc()
}

// RetryExhausted implements retry.Observer.
func (m *Metrics) RetryExhausted(string, int) {
	m.retryExhausted.Inc()
}

// ArtifactWriteFailed implements artifact.Recorder.
func (m *Metrics) ArtifactWriteFailed(kind string) {
	m.artifactFailures.WithLabelValues(kind).Inc()
}

// TestFinished counts one verdict.
func (m *Metrics) TestFinished(verdict string, d time.Duration) {
	m.tests.WithLabelValues(verdict).Inc()
	m.testDuration.Observe(d.Seconds())
}

// SessionFailed counts a session that could not be acquired.
func (m *Metrics) SessionFailed() {
	m.sessionFailures.Inc()
}

// WriteTextfile writes the registry in the text exposition format to
// dir/metrics[_{worker}].prom.
func (m *Metrics) WriteTextfile(dir, worker string) (string, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create metrics directory: %w", err)
	}
	name := "metrics.prom"
	if worker != "" {
		name = "metrics_" + worker + ".prom"
	}
	path := filepath.Join(dir, name)
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return "", fmt.Errorf("failed to write metrics: %w", err)
	}
	return path, nil
}
