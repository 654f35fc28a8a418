// Package metrics exposes Prometheus instrumentation for a command manager.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/commanding/internal/command"
)

// Recorder records command outcomes and stack depths.
// It implements manager.Observer and is safe for concurrent use.
type Recorder struct {
	outcomes *prometheus.CounterVec
	duration *prometheus.HistogramVec
	undo     prometheus.Gauge
	redo     prometheus.Gauge
	excised  prometheus.Counter
}

// New creates a Recorder and registers its collectors with reg.
// Pass prometheus.DefaultRegisterer to expose them on the default /metrics.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commanding_outcomes_total",
				Help: "Total number of command outcomes by direction and status.",
			},
			[]string{"direction", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "commanding_command_duration_seconds",
				Help:    "Time from the start of an execute or undo cycle to its outcome, in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"direction"},
		),
		undo: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "commanding_undo_depth",
			Help: "Number of transactions on the undo stack.",
		}),
		redo: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "commanding_redo_depth",
			Help: "Number of transactions on the redo stack.",
		}),
		excised: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "commanding_transactions_excised_total",
			Help: "Total number of transactions removed from history because a command aborted.",
		}),
	}
	reg.MustRegister(r.outcomes, r.duration, r.undo, r.redo, r.excised)

	// Pre-initialize label combinations so they report 0 before the first outcome.
	for _, dir := range []command.Direction{command.Forward, command.Backward} {
		for _, status := range []string{command.StatusSuccess, command.StatusError, command.StatusAborted} {
			r.outcomes.WithLabelValues(dir.String(), status)
		}
	}
	return r
}

// ObserveOutcome counts o and records its duration.
func (r *Recorder) ObserveOutcome(o command.Outcome) {
	dir := o.Direction.String()
	r.outcomes.WithLabelValues(dir, o.Status()).Inc()
	r.duration.WithLabelValues(dir).Observe(o.Elapsed.Seconds())
}

// ObserveDepth sets the stack depth gauges.
func (r *Recorder) ObserveDepth(undo, redo int) {
	r.undo.Set(float64(undo))
	r.redo.Set(float64(redo))
}

// ObserveExcised counts one transaction removed by an abort.
func (r *Recorder) ObserveExcised() {
	r.excised.Inc()
}
