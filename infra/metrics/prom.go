package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/iesdispatch/core/metrics"
)

// PromSink exports dispatch run outcomes as Prometheus metrics.
type PromSink struct {
	runs      *prometheus.CounterVec
	objective *prometheus.GaugeVec
	duration  *prometheus.HistogramVec
	windows   *prometheus.CounterVec
}

// NewPromSink registers run metrics on the default Prometheus registerer.
// The HTTP endpoint is started separately with StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by an earlier sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	runs, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_runs_total",
		Help: "Total number of dispatch runs by outcome",
	}, []string{"case", "status"}))
	if err != nil {
		return nil, err
	}
	objective, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dispatch_run_objective",
		Help: "Net revenue of the last successful run",
	}, []string{"case"}))
	if err != nil {
		return nil, err
	}
	duration, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_run_duration_seconds",
		Help:    "Wall time of a complete run",
		Buckets: prometheus.DefBuckets,
	}, []string{"case"}))
	if err != nil {
		return nil, err
	}
	windows, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_run_windows_total",
		Help: "Number of windows attempted by runs",
	}, []string{"case", "status"}))
	if err != nil {
		return nil, err
	}
	return &PromSink{runs: runs, objective: objective, duration: duration, windows: windows}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, err
	}
	return c, nil
}

// RecordRun updates the counters for rec.
func (s *PromSink) RecordRun(rec coremetrics.RunRecord) error {
	s.runs.WithLabelValues(rec.Case, rec.Status).Inc()
	if rec.Status == "optimal" {
		s.objective.WithLabelValues(rec.Case).Set(rec.Objective)
	}
	if !rec.Finished.IsZero() && !rec.Started.IsZero() {
		s.duration.WithLabelValues(rec.Case).Observe(rec.Finished.Sub(rec.Started).Seconds())
	}
	for _, w := range rec.Windows {
		s.windows.WithLabelValues(rec.Case, w.Status).Inc()
	}
	return nil
}
