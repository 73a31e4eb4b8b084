package scenarios

import (
	"context"
	"math"
	"os"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kilianp07/iesdispatch/core/dispatch"
	"github.com/kilianp07/iesdispatch/core/ledger"
	"github.com/kilianp07/iesdispatch/core/market"
	"github.com/kilianp07/iesdispatch/core/model"
	"github.com/kilianp07/iesdispatch/infra/dataset"
	"github.com/kilianp07/iesdispatch/infra/logger"
	"github.com/kilianp07/iesdispatch/infra/metrics"
)

// RunScenario dispatches the scenario case and checks the expectations, the
// conservation of every resource, storage level bounds and the exported run
// counter.
func RunScenario(t *testing.T, sc *Scenario) {
	t.Helper()
	reg := prometheus.NewRegistry()
	sink, err := metrics.NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("prom sink: %v", err)
	}

	c, err := sc.LoadCase()
	if err != nil {
		t.Fatalf("load case: %v", err)
	}

	cfg := dispatch.Config{Sense: sc.Sense, WindowLength: sc.WindowLength}
	cfg.SetDefaults()
	opts := []dispatch.Option{dispatch.WithConfig(cfg), dispatch.WithLogger(logger.NopLogger{})}
	if sc.StackCSV != "" {
		opts = append(opts, dispatch.WithPriceStacks(loadStacks(t, sc.path(sc.StackCSV))))
	}
	runner := dispatch.NewRunner(dispatch.NewEngine(nil, opts...), dispatch.WithMetricsSink(sink))

	act, rec, runErr := runner.Run(context.Background(), c)
	if rec.Status != sc.Expected.Status {
		t.Fatalf("scenario %s expected status %s, got %s (%v)", sc.Name, sc.Expected.Status, rec.Status, runErr)
	}
	if n, err := testutil.GatherAndCount(reg, "dispatch_runs_total"); err != nil || n != 1 {
		t.Errorf("scenario %s: run counter series %d (%v)", sc.Name, n, err)
	}
	if sc.Expected.Windows > 0 && len(rec.Windows) != sc.Expected.Windows {
		t.Errorf("scenario %s expected %d windows, got %d", sc.Name, sc.Expected.Windows, len(rec.Windows))
	}
	if runErr != nil {
		return
	}
	tol := sc.Expected.Tolerance
	if o := sc.Expected.Objective; o != nil && math.Abs(rec.Objective-*o) > tol {
		t.Errorf("scenario %s expected objective %v, got %v", sc.Name, *o, rec.Objective)
	}
	checkBalance(t, sc.Name, act, tol)
	checkLevels(t, sc.Name, c, act, tol)
	for key, want := range sc.Expected.Totals {
		comp, res, tracker, ok := splitKey(key)
		if !ok {
			t.Fatalf("scenario %s: malformed totals key %q", sc.Name, key)
		}
		if got := act.Total(comp, res, tracker, c.Dt); math.Abs(got-want) > tol {
			t.Errorf("scenario %s: total %s expected %v, got %v", sc.Name, key, want, got)
		}
	}
}

func loadStacks(t *testing.T, path string) *market.Dataset {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open stack csv: %v", err)
	}
	defer f.Close()
	entries, err := dataset.ReadCSV(f)
	if err != nil {
		t.Fatalf("read stack csv: %v", err)
	}
	ds := market.NewDataset(market.MemorySource(entries), 0, logger.NopLogger{})
	if err := ds.Load(context.Background()); err != nil {
		t.Fatalf("load stacks: %v", err)
	}
	return ds
}

func checkBalance(t *testing.T, name string, act *ledger.Activity, tol float64) {
	t.Helper()
	for _, r := range act.Resources() {
		for step := 0; step < act.Horizon(); step++ {
			if b := act.Balance(r, step); math.Abs(b) > tol {
				t.Errorf("scenario %s: %s unbalanced at step %d: %v", name, r, step, b)
			}
		}
	}
}

func checkLevels(t *testing.T, name string, c *model.Case, act *ledger.Activity, tol float64) {
	t.Helper()
	for _, comp := range c.Components {
		if comp.Kind != model.KindStorage {
			continue
		}
		level, ok := act.Vector(comp.Name, comp.Resource, model.TrackerLevel)
		if !ok {
			t.Errorf("scenario %s: no level tracked for %s", name, comp.Name)
			continue
		}
		for step, l := range level {
			if l < -tol || l > comp.Storage.Capacity+tol {
				t.Errorf("scenario %s: %s level %v outside [0, %v] at step %d", name, comp.Name, l, comp.Storage.Capacity, step)
			}
		}
	}
}

// splitKey parses "component/resource/tracker".
func splitKey(key string) (string, model.Resource, model.Tracker, bool) {
	parts := strings.Split(key, "/")
	if len(parts) != 3 {
		return "", "", "", false
	}
	return parts[0], model.Resource(parts[1]), model.Tracker(parts[2]), true
}
