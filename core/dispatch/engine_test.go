package dispatch

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/iesdispatch/core/events"
	"github.com/kilianp07/iesdispatch/core/ledger"
	"github.com/kilianp07/iesdispatch/core/lp"
	"github.com/kilianp07/iesdispatch/core/market"
	"github.com/kilianp07/iesdispatch/core/model"
	"github.com/kilianp07/iesdispatch/core/storage"
	"github.com/kilianp07/iesdispatch/internal/eventbus"
)

func whole(c *model.Case) model.Window { return model.Window{Start: 0, Length: c.Horizon} }

func TestDispatchConservationAndStorageBounds(t *testing.T) {
	c := arbitrageCase()
	act := ledger.New(c.Horizon)
	rep, err := NewEngine(nil).Dispatch(context.Background(), c, whole(c), act)
	require.NoError(t, err)
	assert.Equal(t, lp.Optimal, rep.Status)
	assert.Equal(t, StateSolvedOptimal, rep.State)
	assert.Greater(t, rep.Objective, 0.0)
	assert.LessOrEqual(t, rep.MaxImbalance, 1e-6)

	for step := 0; step < c.Horizon; step++ {
		if b := act.Balance(model.Electricity, step); math.Abs(b) > 1e-6 {
			t.Fatalf("electricity imbalance %v at step %d", b, step)
		}
	}

	level, ok := act.Vector("bat", model.Electricity, model.TrackerLevel)
	require.True(t, ok)
	charge, _ := act.Vector("bat", model.Electricity, model.TrackerCharge)
	discharge, _ := act.Vector("bat", model.Electricity, model.TrackerDischarge)
	for step, l := range level {
		assert.GreaterOrEqual(t, l, -1e-9, "step %d", step)
		assert.LessOrEqual(t, l, 20+1e-9, "step %d", step)
		assert.LessOrEqual(t, charge[step], 1e-9)
		assert.GreaterOrEqual(t, discharge[step], -1e-9)
	}
	dev, _ := storage.NewDevice(20, 0, 0.9)
	sim, err := dev.Simulate(clampSigns(charge, -1), clampSigns(discharge, 1), 1)
	require.NoError(t, err)
	assert.InDeltaSlice(t, sim, level, 1e-6)

	// energy bought at 10 is sold back at 100
	trade, _ := act.Vector("grid", model.Electricity, model.TrackerProduction)
	assert.Less(t, trade[2], 0.0)
	assert.Less(t, trade[3], 0.0)

	load, _ := act.Vector("load", model.Electricity, model.TrackerProduction)
	assert.Equal(t, []float64{-2, -2, -2, -2}, load)
	assert.InDelta(t, level[3], rep.EndLevels["bat"], 1e-9)
}

// clampSigns removes solver noise of the wrong sign.
func clampSigns(v []float64, sign float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		if x*sign > 0 {
			out[i] = x
		}
	}
	return out
}

func TestDispatchStorageTransfer(t *testing.T) {
	c := &model.Case{
		Name:    "tank",
		Dt:      1,
		Horizon: 1,
		Components: []model.Component{
			{Name: "pv", Kind: model.KindSource, Resource: model.Electricity, Capacity: 10, MustRun: true},
			{Name: "bat", Kind: model.KindStorage, Resource: model.Electricity, WearCost: 1, Storage: &model.StorageSpec{Capacity: 100, InitialLevel: 50, SqrtRTE: 0.9}},
		},
	}
	act := ledger.New(1)
	_, err := NewEngine(nil).Dispatch(context.Background(), c, whole(c), act)
	require.NoError(t, err)
	level, _ := act.Vector("bat", model.Electricity, model.TrackerLevel)
	assert.InDelta(t, 59, level[0], 1e-6)
	charge, _ := act.Vector("bat", model.Electricity, model.TrackerCharge)
	assert.InDelta(t, -10, charge[0], 1e-6)
}

func TestDispatchInfeasibleLeavesLedgerUntouched(t *testing.T) {
	c := &model.Case{
		Name:    "surplus",
		Dt:      1,
		Horizon: 1,
		Components: []model.Component{
			{Name: "nuke", Kind: model.KindSource, Resource: model.Electricity, Capacity: 10, MustRun: true},
			{Name: "load", Kind: model.KindDemand, Resource: model.Electricity, Demand: "load"},
		},
		Series: map[string][]float64{"load": {5}},
	}
	bus := eventbus.New()
	sub, cancel := eventbus.SubscribeTo[events.DispatchEvent](bus)
	defer cancel()

	act := ledger.New(1)
	rep, err := NewEngine(nil, WithEventBus(bus)).Dispatch(context.Background(), c, whole(c), act)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInfeasible))
	assert.False(t, errors.Is(err, ErrSolver))
	var se *SolveError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StateSolvedInfeasible, se.State)
	assert.Contains(t, se.Dump, "balance.electricity[0]")
	assert.Equal(t, lp.Infeasible, rep.Status)
	assert.Equal(t, 0, act.Len())

	var states []string
	for i := 0; i < 3; i++ {
		ev := <-sub
		states = append(states, ev.State)
	}
	assert.Equal(t, []string{"built", "solving", "solved_infeasible"}, states)
}

func TestDispatchSolverError(t *testing.T) {
	s := &mockSolver{}
	s.On("Solve", mock.Anything, mock.AnythingOfType("*lp.Model")).
		Return(lp.Result{Status: lp.Error, Reason: "singular"}, errors.New("simplex: singular"))

	c := electrolyzerCase()
	act := ledger.New(1)
	_, err := NewEngine(s).Dispatch(context.Background(), c, whole(c), act)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSolver)
	assert.Contains(t, err.Error(), "singular")
	assert.Equal(t, 0, act.Len())
	assert.Equal(t, "error", StatusOf(err))
	s.AssertNumberOfCalls(t, "Solve", 1)
}

func TestDispatchRejectsShortSolution(t *testing.T) {
	s := &mockSolver{}
	s.On("Solve", mock.Anything, mock.Anything).Return(lp.Result{Status: lp.Optimal, Values: []float64{1}}, nil)
	c := electrolyzerCase()
	act := ledger.New(1)
	_, err := NewEngine(s).Dispatch(context.Background(), c, whole(c), act)
	assert.ErrorIs(t, err, ErrSolver)
	assert.Equal(t, 0, act.Len())
}

func TestDispatchAdditionality(t *testing.T) {
	for _, sense := range []string{"maximize", "minimize"} {
		t.Run(sense, func(t *testing.T) {
			c := electrolyzerCase()
			act := ledger.New(1)
			rep, err := NewEngine(nil, WithConfig(Config{Sense: sense})).Dispatch(context.Background(), c, whole(c), act)
			require.NoError(t, err)
			in, _ := act.Vector("ely", model.Electricity, model.TrackerProduction)
			out, _ := act.Vector("ely", model.Hydrogen, model.TrackerProduction)
			assert.InDelta(t, -5, in[0], 1e-6)
			assert.InDelta(t, 2.5, out[0], 1e-6)
			assert.InDelta(t, 25, rep.Objective, 1e-6)
			assert.InDelta(t, 0, act.Balance(model.Hydrogen, 0), 1e-6)
		})
	}

	c := electrolyzerCase()
	c.Side = nil
	act := ledger.New(1)
	rep, err := NewEngine(nil).Dispatch(context.Background(), c, whole(c), act)
	require.NoError(t, err)
	in, _ := act.Vector("ely", model.Electricity, model.TrackerProduction)
	assert.InDelta(t, -10, in[0], 1e-6)
	assert.InDelta(t, 45, rep.Objective, 1e-6)
}

func TestDispatchPreconditions(t *testing.T) {
	s := &mockSolver{}
	e := NewEngine(s)

	tests := []struct {
		name   string
		mutate func(*model.Case) model.Window
		want   string
	}{
		{"zero dt", func(c *model.Case) model.Window { c.Dt = 0; return whole(c) }, "dt"},
		{"window outside horizon", func(c *model.Case) model.Window { return model.Window{Start: 3, Length: 2} }, "outside horizon"},
		{"missing series", func(c *model.Case) model.Window { delete(c.Series, "lmp"); return whole(c) }, `"lmp" not found`},
		{"short series", func(c *model.Case) model.Window { c.Series["load"] = []float64{1}; return whole(c) }, "has 1 steps"},
		{"uncoverable demand", func(c *model.Case) model.Window {
			c.Series["load"] = []float64{2, 2, 200, 2}
			return whole(c)
		}, "exceeds maximum supply"},
		{"negative demand", func(c *model.Case) model.Window { c.Series["load"][0] = -1; return whole(c) }, "non-negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := arbitrageCase()
			w := tt.mutate(c)
			_, err := e.Dispatch(context.Background(), c, w, ledger.New(4))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidCase)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, "invalid", StatusOf(err))
		})
	}
	s.AssertNotCalled(t, "Solve", mock.Anything, mock.Anything)
}

func TestHydrogenDemandBeyondElectrolyzer(t *testing.T) {
	c := &model.Case{
		Name:    "refinery",
		Dt:      1,
		Horizon: 1,
		Components: []model.Component{
			{Name: "grid", Kind: model.KindMarket, Resource: model.Electricity, BuyCapacity: 100, Price: fixed(1)},
			{Name: "ely", Kind: model.KindConverter, Resource: model.Electricity, Capacity: 10, Outputs: map[model.Resource]float64{model.Hydrogen: 0.5}},
			{Name: "refinery", Kind: model.KindDemand, Resource: model.Hydrogen, Demand: "h2"},
		},
		Series: map[string][]float64{"h2": {6}},
	}
	_, err := NewEngine(&mockSolver{}).Dispatch(context.Background(), c, whole(c), ledger.New(1))
	require.ErrorIs(t, err, ErrInvalidCase)
	assert.Contains(t, err.Error(), "demand for hydrogen at step 0")

	c.Series["h2"] = []float64{5}
	act := ledger.New(1)
	rep, err := NewEngine(nil).Dispatch(context.Background(), c, whole(c), act)
	require.NoError(t, err)
	in, _ := act.Vector("ely", model.Electricity, model.TrackerProduction)
	assert.InDelta(t, -10, in[0], 1e-6)
	assert.InDelta(t, -10, rep.Objective, 1e-6)
}

func TestDispatchStackPricedMarket(t *testing.T) {
	labels := model.CaseLabels{State: "TX", Strategy: "base", PriceStructure: "lmp", Year: 2030}
	ds := market.NewDataset(market.MemorySource{
		{Labels: labels, Component: "wind", Capacity: 10, MarginalCost: 5},
		{Labels: labels, Component: "ccgt", Capacity: 10, MarginalCost: 8},
	}, 0, nil)
	require.NoError(t, ds.Load(context.Background()))

	c := &model.Case{
		Name:    "stack",
		Labels:  labels,
		Dt:      1,
		Horizon: 2,
		Components: []model.Component{
			{Name: "pv", Kind: model.KindSource, Resource: model.Electricity, Capacity: 4, MarginalCost: fixed(6)},
			{Name: "grid", Kind: model.KindMarket, Resource: model.Electricity, SellCapacity: 4, Price: &model.PriceSource{Stack: &model.StackSpec{Load: "system"}}},
		},
		Series: map[string][]float64{"system": {5, 15}},
	}
	act := ledger.New(2)
	rep, err := NewEngine(nil, WithPriceStacks(ds)).Dispatch(context.Background(), c, whole(c), act)
	require.NoError(t, err)
	prod, _ := act.Vector("pv", model.Electricity, model.TrackerProduction)
	// clearing price 5 is below the marginal cost, 8 is above it
	assert.InDelta(t, 0, prod[0], 1e-6)
	assert.InDelta(t, 4, prod[1], 1e-6)
	assert.InDelta(t, 8, rep.Objective, 1e-6)

	c.Series["system"] = []float64{5, 25}
	_, err = NewEngine(nil, WithPriceStacks(ds)).Dispatch(context.Background(), c, whole(c), ledger.New(2))
	require.NoError(t, err, "overflow sentinel clears any load")

	_, err = NewEngine(nil).Dispatch(context.Background(), c, whole(c), ledger.New(2))
	assert.ErrorIs(t, err, ErrInvalidCase)

	c.Labels.Year = 2050
	_, err = NewEngine(nil, WithPriceStacks(ds)).Dispatch(context.Background(), c, whole(c), ledger.New(2))
	assert.ErrorIs(t, err, market.ErrUnknownLabels)
}

func TestDispatchHydrogenHub(t *testing.T) {
	c := hubCase(32)
	act := ledger.New(c.Horizon)
	rep, err := NewEngine(nil).Dispatch(context.Background(), c, whole(c), act)
	require.NoError(t, err)
	require.Equal(t, lp.Optimal, rep.Status)
	assert.LessOrEqual(t, rep.MaxImbalance, 1e-6)

	for _, r := range []model.Resource{model.Electricity, model.Hydrogen} {
		for step := 0; step < c.Horizon; step++ {
			assert.InDelta(t, 0, act.Balance(r, step), 1e-6, "%s step %d", r, step)
		}
	}
	for name, capacity := range map[string]float64{"tank": 50, "bat": 20} {
		res := model.Hydrogen
		if name == "bat" {
			res = model.Electricity
		}
		level, ok := act.Vector(name, res, model.TrackerLevel)
		require.True(t, ok, name)
		for step, l := range level {
			assert.GreaterOrEqual(t, l, -1e-9, "%s step %d", name, step)
			assert.LessOrEqual(t, l, capacity+1e-9, "%s step %d", name, step)
		}
	}
	nuclear, _ := act.Vector("nuclear", model.Electricity, model.TrackerProduction)
	for step, v := range nuclear {
		assert.InDelta(t, 8, v, 1e-9, "must run at step %d", step)
	}
}
