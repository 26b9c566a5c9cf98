// Package metrics records run and step outcomes as Prometheus metrics and
// writes them in the node_exporter textfile format.
package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alexisbeaulieu97/dcvprov/internal/engine"
	"github.com/alexisbeaulieu97/dcvprov/internal/model"
)

const namespace = "dcvprov"

// Recorder is an engine.Observer backed by its own registry.
type Recorder struct {
	mu       sync.Mutex
	registry *prometheus.Registry

	StepsTotal    *prometheus.CounterVec
	StepDuration  *prometheus.HistogramVec
	StepAttempts  *prometheus.HistogramVec
	RunsTotal     *prometheus.CounterVec
	LastRunTime   prometheus.Gauge
	LastRunOK     prometheus.Gauge
	LastRunLength prometheus.Gauge
}

var _ engine.Observer = (*Recorder)(nil)

// NewRecorder creates a Recorder with every metric registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		StepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_total",
				Help:      "Finished provisioning steps by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Time spent on a provisioning step including retries",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		StepAttempts: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_attempts",
				Help:      "Attempts used by a provisioning step",
				Buckets:   []float64{1, 2, 3, 4, 6, 11},
			},
			[]string{"kind"},
		),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Finished runs by recipe and final state",
			},
			[]string{"recipe", "state"},
		),
		LastRunTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
		LastRunOK: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "Whether the last run succeeded (1 = success, 0 = aborted)",
		}),
		LastRunLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run",
		}),
	}

	r.registry.MustRegister(
		r.StepsTotal,
		r.StepDuration,
		r.StepAttempts,
		r.RunsTotal,
		r.LastRunTime,
		r.LastRunOK,
		r.LastRunLength,
	)
	return r
}

// Registry exposes the registry the recorder writes to.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// RunStarted implements engine.Observer.
func (r *Recorder) RunStarted(string, string, time.Time) {}

// StepFinished implements engine.Observer.
func (r *Recorder) StepFinished(_ string, result model.StepResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.StepsTotal.WithLabelValues(result.Kind, string(result.Outcome)).Inc()
	r.StepDuration.WithLabelValues(result.Kind).Observe(result.Duration.Seconds())
	r.StepAttempts.WithLabelValues(result.Kind).Observe(float64(result.Attempts))
}

// RunFinished implements engine.Observer.
func (r *Recorder) RunFinished(summary *model.RunSummary) {
	if summary == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.RunsTotal.WithLabelValues(summary.Recipe, string(summary.State)).Inc()
	r.LastRunTime.Set(float64(summary.FinishedAt.Unix()))
	r.LastRunLength.Set(summary.Duration().Seconds())
	if summary.Outcome == model.RunSuccess {
		r.LastRunOK.Set(1)
	} else {
		r.LastRunOK.Set(0)
	}
}

// WriteTextfile atomically writes the current metrics to path for the
// node_exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}
