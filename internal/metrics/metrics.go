// Package metrics registers the Prometheus collectors this control plane
// exposes for its own subsystems (SPEC_FULL.md §4.8), using
// github.com/prometheus/client_golang — a direct dependency already present
// in the teacher's go.mod but never wired into any of its handlers.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mirakctl/mirakctl/internal/tunermgr"
)

// Names of the three EPG periodic tasks, used as the "task" label value.
const (
	TaskScanServices    = "scan_services"
	TaskSyncClocks      = "sync_clocks"
	TaskUpdateSchedules = "update_schedules"
)

// Metrics bundles every collector this binary registers.
type Metrics struct {
	TunersActive     *prometheus.GaugeVec
	TunerSubscribers *prometheus.GaugeVec
	EpgTaskDuration  *prometheus.HistogramVec
	EpgTaskFailures  *prometheus.CounterVec
}

// New registers all collectors against reg and returns the bundle.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TunersActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mirakc_tuners_active",
			Help: "1 if the tuner is active, 0 if inactive.",
		}, []string{"index", "name"}),
		TunerSubscribers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mirakc_tuner_subscribers",
			Help: "Current subscriber count per tuner.",
		}, []string{"index"}),
		EpgTaskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mirakc_epg_task_duration_seconds",
			Help:    "Elapsed time of one EPG task sweep.",
			Buckets: prometheus.DefBuckets,
		}, []string{"task"}),
		EpgTaskFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mirakc_epg_task_failures_total",
			Help: "Number of failed EPG task sweeps.",
		}, []string{"task"}),
	}
}

// ObserveTuners updates the tuner gauges from a fresh query model snapshot.
func (m *Metrics) ObserveTuners(models []tunermgr.TunerModel) {
	for _, t := range models {
		idx := strconv.Itoa(t.Index)
		active := 0.0
		if !t.IsFree {
			active = 1.0
		}
		m.TunersActive.WithLabelValues(idx, t.Name).Set(active)
		m.TunerSubscribers.WithLabelValues(idx).Set(float64(len(t.Users)))
	}
}
