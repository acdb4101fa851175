package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	internalerrors "github.com/rcourtman/crauti-dashboard/internal/errors"
)

// Poll outcomes used as the result label.
const (
	resultUpdated     = "updated"
	resultUnchanged   = "unchanged"
	resultStale       = "stale"
	resultUnreachable = "unreachable"
	resultDiscarded   = "discarded"
)

// PollMetrics manages Prometheus instrumentation for polling activity.
type PollMetrics struct {
	pollDuration prometheus.Histogram
	pollResults  *prometheus.CounterVec
	pollErrors   *prometheus.CounterVec
	pollSkipped  prometheus.Counter
	lastSuccess  prometheus.Gauge
	mountPoints  prometheus.Gauge
	revisions    prometheus.Counter
}

// NewPollMetrics builds the poll metrics and registers them on reg. A nil
// reg leaves them unregistered, which tests use to read values directly.
func NewPollMetrics(reg prometheus.Registerer) *PollMetrics {
	pm := &PollMetrics{
		pollDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "crauti_dashboard",
				Name:      "poll_duration_seconds",
				Help:      "Duration of gateway config fetch and normalization.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		pollResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "crauti_dashboard",
				Name:      "poll_total",
				Help:      "Total polling attempts partitioned by result.",
			},
			[]string{"result"},
		),
		pollErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "crauti_dashboard",
				Name:      "poll_errors_total",
				Help:      "Polling failures grouped by error type.",
			},
			[]string{"error_type"},
		),
		pollSkipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "crauti_dashboard",
				Name:      "poll_skipped_total",
				Help:      "Ticks skipped because a fetch was still in flight.",
			},
		),
		lastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "crauti_dashboard",
				Name:      "last_success_timestamp",
				Help:      "Unix timestamp of the last poll that returned a usable config.",
			},
		),
		mountPoints: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "crauti_dashboard",
				Name:      "snapshot_mount_points",
				Help:      "Mount points in the published snapshot.",
			},
		),
		revisions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "crauti_dashboard",
				Name:      "snapshot_revisions_total",
				Help:      "Snapshots published since start.",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			pm.pollDuration,
			pm.pollResults,
			pm.pollErrors,
			pm.pollSkipped,
			pm.lastSuccess,
			pm.mountPoints,
			pm.revisions,
		)
	}

	return pm
}

// RecordResult records one completed poll.
func (pm *PollMetrics) RecordResult(result string, elapsed time.Duration, err error) {
	if pm == nil {
		return
	}

	if elapsed < 0 {
		elapsed = 0
	}
	pm.pollDuration.Observe(elapsed.Seconds())
	pm.pollResults.WithLabelValues(result).Inc()

	if err != nil {
		pm.pollErrors.WithLabelValues(classifyError(err)).Inc()
	}
}

// RecordSuccess marks the time of the last usable response.
func (pm *PollMetrics) RecordSuccess(at time.Time) {
	if pm == nil {
		return
	}
	pm.lastSuccess.Set(float64(at.Unix()))
}

// RecordSkipped counts a tick dropped because a fetch was outstanding.
func (pm *PollMetrics) RecordSkipped() {
	if pm == nil {
		return
	}
	pm.pollSkipped.Inc()
}

// RecordPublish counts a new snapshot revision.
func (pm *PollMetrics) RecordPublish(mountPoints int) {
	if pm == nil {
		return
	}
	pm.revisions.Inc()
	pm.mountPoints.Set(float64(mountPoints))
}

func classifyError(err error) string {
	if err == nil {
		return "none"
	}
	return string(internalerrors.TypeOf(err))
}
