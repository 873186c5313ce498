// Package metrics records synchronization runs as Prometheus metrics and
// pushes them to a Pushgateway, since the process exits after one run.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/anirudhbiyani/eks-auth-sync/pkg/cloudauth"
)

// Run results used as label values.
const (
	ResultApplied = "applied"
	ResultSkipped = "skipped"
	ResultPrinted = "printed"
	ResultFailed  = "failed"
)

// SyncMetrics implements cloudauth.SyncRecorder. A nil *SyncMetrics records
// nothing.
type SyncMetrics struct {
	registry    *prometheus.Registry
	mappings    *prometheus.GaugeVec
	runs        *prometheus.CounterVec
	duration    prometheus.Histogram
	lastSuccess prometheus.Gauge
	now         func() time.Time
}

// New creates sync metrics on a fresh registry.
func New() *SyncMetrics {
	reg := prometheus.NewRegistry()

	return &SyncMetrics{
		registry: reg,
		mappings: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "eks_auth_sync_mappings",
				Help: "Number of identity mappings found in the last run by mapping type",
			},
			[]string{"type"}, // "user-to-user", "role-to-user", "role-to-node"
		),
		runs: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "eks_auth_sync_runs_total",
				Help: "Total number of synchronization runs by result",
			},
			[]string{"result"},
		),
		duration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "eks_auth_sync_duration_seconds",
				Help:    "Duration of synchronization runs",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			},
		),
		lastSuccess: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "eks_auth_sync_last_success_timestamp_seconds",
				Help: "Unix time of the last successful run",
			},
		),
		now: time.Now,
	}
}

// Registry returns the underlying registry.
func (m *SyncMetrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordSync implements cloudauth.SyncRecorder.
func (m *SyncMetrics) RecordSync(result *cloudauth.SyncResult, err error) {
	if m == nil || result == nil {
		return
	}

	m.duration.Observe(result.Duration.Seconds())

	if err != nil {
		m.runs.WithLabelValues(ResultFailed).Inc()
		return
	}

	counts := map[cloudauth.MappingType]int{
		cloudauth.UserToUser: 0,
		cloudauth.RoleToUser: 0,
		cloudauth.RoleToNode: 0,
	}
	for _, mapping := range result.Mappings {
		counts[mapping.Type]++
	}
	for t, n := range counts {
		m.mappings.WithLabelValues(t.String()).Set(float64(n))
	}

	switch {
	case result.Applied:
		m.runs.WithLabelValues(ResultApplied).Inc()
	case result.Skipped:
		m.runs.WithLabelValues(ResultSkipped).Inc()
	default:
		m.runs.WithLabelValues(ResultPrinted).Inc()
	}
	m.lastSuccess.Set(float64(m.now().Unix()))
}

// Push sends every metric to the Pushgateway at url under job, grouped by
// cluster.
func (m *SyncMetrics) Push(ctx context.Context, url, job, cluster string) error {
	if m == nil || url == "" {
		return nil
	}
	err := push.New(url, job).
		Gatherer(m.registry).
		Grouping("cluster", cluster).
		PushContext(ctx)
	if err != nil {
		return cloudauth.ErrNetwork("failed to push metrics").
			WithCause(err).
			WithResource("pushgateway", url)
	}
	return nil
}
