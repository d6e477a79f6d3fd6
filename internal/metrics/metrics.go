// Package metrics records run outcomes in a private Prometheus registry
// and writes them in the node-exporter textfile format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vaultsync"

// Recorder holds the metrics of one process run.
type Recorder struct {
	registry *prometheus.Registry

	actions  *prometheus.CounterVec
	items    *prometheus.CounterVec
	duration *prometheus.GaugeVec
	success  *prometheus.GaugeVec
	lastRun  *prometheus.GaugeVec
}

// New returns a Recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		actions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Store actions applied or planned, by job, operation and reason.",
		}, []string{"job", "op", "reason", "dry_run"}),
		items: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Source items processed, by job and outcome.",
		}, []string{"job", "outcome"}),
		duration: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time of the last run of a job.",
		}, []string{"job"}),
		success: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_success",
			Help:      "1 if the last run of a job finished without a job-level error.",
		}, []string{"job"}),
		lastRun: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_last_run_timestamp_seconds",
			Help:      "Unix time the last run of a job finished.",
		}, []string{"job"}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Action counts one store action.
func (r *Recorder) Action(job, op, reason string, dryRun bool) {
	r.actions.WithLabelValues(job, op, reason, fmt.Sprint(dryRun)).Inc()
}

// Items adds n items with outcome (matched, skipped, failed, ...).
func (r *Recorder) Items(job, outcome string, n int) {
	if n <= 0 {
		return
	}
	r.items.WithLabelValues(job, outcome).Add(float64(n))
}

// Finished records the end of a job run.
func (r *Recorder) Finished(job string, took time.Duration, ok bool, at time.Time) {
	r.duration.WithLabelValues(job).Set(took.Seconds())
	v := 0.0
	if ok {
		v = 1
	}
	r.success.WithLabelValues(job).Set(v)
	r.lastRun.WithLabelValues(job).Set(float64(at.Unix()))
}

// WriteTextfile writes every metric to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
