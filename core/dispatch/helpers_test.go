package dispatch

import (
	"context"
	"math"

	"github.com/stretchr/testify/mock"

	"github.com/kilianp07/iesdispatch/core/lp"
	"github.com/kilianp07/iesdispatch/core/model"
)

type mockSolver struct{ mock.Mock }

func (m *mockSolver) Solve(ctx context.Context, md *lp.Model) (lp.Result, error) {
	args := m.Called(ctx, md)
	return args.Get(0).(lp.Result), args.Error(1)
}

func fixed(v float64) *model.PriceSource { return model.FixedPrice(v) }

// arbitrageCase buys cheap electricity, stores it and sells it back when the
// price spikes while serving a constant load.
func arbitrageCase() *model.Case {
	return &model.Case{
		Name:    "arbitrage",
		Dt:      1,
		Horizon: 4,
		Components: []model.Component{
			{Name: "pv", Kind: model.KindSource, Resource: model.Electricity, Capacity: 10, Profile: "solar"},
			{Name: "grid", Kind: model.KindMarket, Resource: model.Electricity, SellCapacity: 20, BuyCapacity: 20, Price: &model.PriceSource{Series: "lmp"}},
			{Name: "bat", Kind: model.KindStorage, Resource: model.Electricity, Capacity: 10, Storage: &model.StorageSpec{Capacity: 20, SqrtRTE: 0.9}},
			{Name: "load", Kind: model.KindDemand, Resource: model.Electricity, Demand: "load"},
		},
		Series: map[string][]float64{
			"solar": {1, 0.5, 0, 0},
			"lmp":   {10, 10, 100, 100},
			"load":  {2, 2, 2, 2},
		},
	}
}

// electrolyzerCase turns electricity into hydrogen sold at a fixed price.
func electrolyzerCase() *model.Case {
	return &model.Case{
		Name:    "h2",
		Dt:      1,
		Horizon: 1,
		Components: []model.Component{
			{Name: "pv", Kind: model.KindSource, Resource: model.Electricity, Capacity: 5},
			{Name: "grid", Kind: model.KindMarket, Resource: model.Electricity, BuyCapacity: 100, Price: fixed(1)},
			{Name: "ely", Kind: model.KindConverter, Resource: model.Electricity, Capacity: 10, Outputs: map[model.Resource]float64{model.Hydrogen: 0.5}},
			{Name: "offtake", Kind: model.KindMarket, Resource: model.Hydrogen, SellCapacity: 100, Price: fixed(10)},
		},
		Side: []model.SideConstraint{{Kind: model.Additionality, Limited: "ely", Limiters: []string{"pv"}}},
	}
}

// hubCase is a hydrogen hub: must-run nuclear, solar, a weather driven grid
// price, an electrolyzer feeding a tank and an offtake market, a battery, a
// fixed hydrogen demand and an electricity dump.
func hubCase(steps int) *model.Case {
	solar := make([]float64, steps)
	temp := make([]float64, steps)
	h2 := make([]float64, steps)
	for k := 0; k < steps; k++ {
		hour := k % 24
		if hour >= 7 && hour <= 18 {
			solar[k] = math.Sin(math.Pi * float64(hour-6) / 13)
		}
		temp[k] = 15 + 10*math.Sin(2*math.Pi*float64(hour-9)/24)
		h2[k] = 2
		if hour >= 17 && hour <= 20 {
			h2[k] = 4
		}
	}
	return &model.Case{
		Name:    "hub",
		Dt:      1,
		Horizon: steps,
		Components: []model.Component{
			{Name: "nuclear", Kind: model.KindSource, Resource: model.Electricity, Capacity: 8, MustRun: true, MarginalCost: fixed(5)},
			{Name: "pv", Kind: model.KindSource, Resource: model.Electricity, Capacity: 10, Profile: "solar"},
			{Name: "grid", Kind: model.KindMarket, Resource: model.Electricity, SellCapacity: 30, BuyCapacity: 30,
				Price: &model.PriceSource{Fit: &model.FitSpec{A: 20, B: 0.05, X: "temp"}}},
			{Name: "ely", Kind: model.KindConverter, Resource: model.Electricity, Capacity: 12, Outputs: map[model.Resource]float64{model.Hydrogen: 0.6}},
			{Name: "tank", Kind: model.KindStorage, Resource: model.Hydrogen, Capacity: 10, Storage: &model.StorageSpec{Capacity: 50, RTE: 0.95}},
			{Name: "bat", Kind: model.KindStorage, Resource: model.Electricity, Capacity: 5, Storage: &model.StorageSpec{Capacity: 20, SqrtRTE: 0.95}},
			{Name: "offtake", Kind: model.KindMarket, Resource: model.Hydrogen, SellCapacity: 5, Price: fixed(60)},
			{Name: "h2load", Kind: model.KindDemand, Resource: model.Hydrogen, Demand: "h2"},
			{Name: "dump", Kind: model.KindSink, Resource: model.Electricity, Penalty: 1},
		},
		Series: map[string][]float64{"solar": solar, "temp": temp, "h2": h2},
	}
}
