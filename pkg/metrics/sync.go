package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics records the outcome of outbound store requests.
type SyncMetrics struct {
	duration  *prometheus.HistogramVec
	completed *prometheus.CounterVec
	cancelled *prometheus.CounterVec
}

// NewSyncMetrics registers the sync metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sync_request_duration_seconds",
		Help:    "Duration of store requests in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	completed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_requests_total",
		Help: "Completed store requests by operation and outcome.",
	}, []string{"operation", "outcome"})
	cancelled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_requests_cancelled_total",
		Help: "Store requests superseded by a newer commit for the same key.",
	}, []string{"operation"})
	reg.MustRegister(duration, completed, cancelled)
	return &SyncMetrics{
		duration:  duration,
		completed: completed,
		cancelled: cancelled,
	}
}

// ObserveDuration records the duration of the named operation.
func (s *SyncMetrics) ObserveDuration(operation string, duration time.Duration) {
	if s == nil || s.duration == nil {
		return
	}
	s.duration.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}

// IncCompleted increments the completion counter for the named operation.
func (s *SyncMetrics) IncCompleted(operation, outcome string) {
	if s == nil || s.completed == nil {
		return
	}
	s.completed.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}

// IncCancelled increments the supersession counter for the named operation.
func (s *SyncMetrics) IncCancelled(operation string) {
	if s == nil || s.cancelled == nil {
		return
	}
	s.cancelled.WithLabelValues(normalizeLabel(operation)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
