package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	solveDuration   *prometheus.HistogramVec
	solvesTotal     *prometheus.CounterVec
	objectiveValue  *prometheus.GaugeVec
	modelSize       *prometheus.GaugeVec
	balanceResidual *prometheus.GaugeVec
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.HistogramVec, *prometheus.CounterVec, *prometheus.GaugeVec, *prometheus.GaugeVec, *prometheus.GaugeVec) {
	dur := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_solve_duration_seconds",
			Help:    "Wall time of a single window solve",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)
	total := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_solves_total",
			Help: "Number of window solves by outcome",
		},
		[]string{"status"},
	)
	obj := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dispatch_objective_value",
			Help: "Net revenue of the last optimal window",
		},
		[]string{"case"},
	)
	size := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dispatch_model_size",
			Help: "Number of variables and constraints of the last built model",
		},
		[]string{"case", "kind"},
	)
	bal := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dispatch_balance_residual",
			Help: "Largest absolute resource imbalance after the last optimal window",
		},
		[]string{"case"},
	)
	return dur, total, obj, size, bal
}

func init() {
	solveDuration, solvesTotal, objectiveValue, modelSize, balanceResidual = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(solveDuration, solvesTotal, objectiveValue, modelSize, balanceResidual)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	solveDuration, solvesTotal, objectiveValue, modelSize, balanceResidual = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
