package dispatch

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kilianp07/iesdispatch/core/ledger"
)

func TestMetricsRegistration(t *testing.T) {
	ResetMetrics(nil)
	t.Cleanup(func() { ResetMetrics(nil) })
	reg := prometheus.NewRegistry()
	MustRegisterMetrics(reg)
	// touch metrics so they are exported
	solveDuration.WithLabelValues("optimal").Observe(0.1)
	solvesTotal.WithLabelValues("optimal").Inc()
	objectiveValue.WithLabelValues("c").Set(1)
	modelSize.WithLabelValues("c", "variables").Set(3)
	balanceResidual.WithLabelValues("c").Set(0)
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := map[string]bool{}
	for _, mf := range mfs {
		names[*mf.Name] = true
	}
	expected := []string{
		"dispatch_solve_duration_seconds",
		"dispatch_solves_total",
		"dispatch_objective_value",
		"dispatch_model_size",
		"dispatch_balance_residual",
	}
	for _, n := range expected {
		if !names[n] {
			t.Errorf("metric %s not registered", n)
		}
	}
}

func TestDispatchUpdatesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	ResetMetrics(reg)
	t.Cleanup(func() { ResetMetrics(nil) })

	c := electrolyzerCase()
	if _, err := NewEngine(nil).Dispatch(context.Background(), c, whole(c), ledger.New(1)); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := testutil.ToFloat64(solvesTotal.WithLabelValues("optimal")); got != 1 {
		t.Fatalf("optimal solves = %v, want 1", got)
	}
	if got := testutil.ToFloat64(objectiveValue.WithLabelValues("h2")); got < 24.999 || got > 25.001 {
		t.Fatalf("objective gauge = %v, want 25", got)
	}
	if got := testutil.ToFloat64(modelSize.WithLabelValues("h2", "variables")); got != 4 {
		t.Fatalf("variables gauge = %v, want 4", got)
	}
}
