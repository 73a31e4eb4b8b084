package dispatch

import (
	"fmt"
	"math"
	"sort"

	"github.com/kilianp07/iesdispatch/core/ledger"
	"github.com/kilianp07/iesdispatch/core/lp"
	"github.com/kilianp07/iesdispatch/core/model"
)

// zeroTol snaps solver noise to zero before it is written to the ledger.
const zeroTol = 1e-12

// entry links one Activity Matrix vector to the model variables it is read
// from: value[k] = scale * vars[k].
type entry struct {
	component string
	resource  model.Resource
	tracker   model.Tracker
	vars      []lp.Var
	scale     float64
}

// builder translates a plan into a linear program.
type builder struct {
	p       *plan
	m       *lp.Model
	entries []entry
	obj     lp.Expr
	flows   map[string][]lp.Var
	levels  map[string][]lp.Var
}

func buildModel(p *plan, sense lp.Sense) (*builder, error) {
	b := &builder{
		p:      p,
		m:      lp.NewModel(fmt.Sprintf("%s[%d:%d]", p.c.Name, p.w.Start, p.w.End())),
		flows:  make(map[string][]lp.Var),
		levels: make(map[string][]lp.Var),
	}
	for _, comp := range p.c.Components {
		var err error
		switch comp.Kind {
		case model.KindSource:
			err = b.addSource(comp)
		case model.KindConverter:
			err = b.addConverter(comp)
		case model.KindStorage:
			err = b.addStorage(comp)
		case model.KindMarket:
			err = b.addMarket(comp)
		case model.KindDemand:
			err = b.addDemand(comp)
		case model.KindSink:
			err = b.addSink(comp)
		}
		if err != nil {
			return nil, fmt.Errorf("component %s: %w", comp.Name, err)
		}
	}
	if err := b.addConservation(); err != nil {
		return nil, err
	}
	if err := b.addSideConstraints(); err != nil {
		return nil, err
	}
	if sense == lp.Minimize {
		for i := range b.obj.Terms {
			b.obj.Terms[i].Coef = -b.obj.Terms[i].Coef
		}
		b.obj.Constant = -b.obj.Constant
	}
	if err := b.m.SetObjective(b.obj, sense); err != nil {
		return nil, err
	}
	return b, nil
}

// stepVars declares one variable per window step.
func (b *builder) stepVars(name, role string, bounds func(k int) (float64, float64)) ([]lp.Var, error) {
	vars := make([]lp.Var, b.p.w.Length)
	for k := range vars {
		lo, hi := bounds(k)
		v, err := b.m.AddVar(stepName(name, role, b.p.w.Start+k), lo, hi)
		if err != nil {
			return nil, err
		}
		vars[k] = v
	}
	return vars, nil
}

func (b *builder) track(comp string, r model.Resource, tr model.Tracker, vars []lp.Var, scale float64) {
	b.entries = append(b.entries, entry{component: comp, resource: r, tracker: tr, vars: vars, scale: scale})
}

func (b *builder) addSource(comp model.Component) error {
	caps := b.p.caps[comp.Name]
	prod, err := b.stepVars(comp.Name, "prod", func(k int) (float64, float64) {
		if comp.MustRun {
			return caps[k], caps[k]
		}
		return 0, caps[k]
	})
	if err != nil {
		return err
	}
	b.track(comp.Name, comp.Resource, model.TrackerProduction, prod, 1)
	b.flows[comp.Name] = prod
	dt := b.p.dt
	cost := b.p.prices[comp.Name]
	for k, v := range prod {
		mc := 0.0
		if cost != nil {
			mc = cost[k]
		}
		// curtailment penalty on cap - prod
		b.obj.Plus(v, dt*(comp.CurtailPenalty-mc))
		b.obj.PlusConst(-dt * comp.CurtailPenalty * caps[k])
	}
	return nil
}

func (b *builder) addConverter(comp model.Component) error {
	caps := b.p.caps[comp.Name]
	act, err := b.stepVars(comp.Name, "act", func(k int) (float64, float64) { return 0, caps[k] })
	if err != nil {
		return err
	}
	b.track(comp.Name, comp.Resource, model.TrackerProduction, act, -1)
	outs := make([]model.Resource, 0, len(comp.Outputs))
	for r := range comp.Outputs {
		outs = append(outs, r)
	}
	sort.Slice(outs, func(i, j int) bool { return outs[i] < outs[j] })
	for _, r := range outs {
		b.track(comp.Name, r, model.TrackerProduction, act, comp.Outputs[r])
	}
	b.flows[comp.Name] = act
	if cost := b.p.prices[comp.Name]; cost != nil {
		for k, v := range act {
			b.obj.Plus(v, -b.p.dt*cost[k])
		}
	}
	return nil
}

func (b *builder) addStorage(comp model.Component) error {
	dev := b.p.devices[comp.Name]
	clo, chi := b.p.chargeBounds(comp)
	dlo, dhi := b.p.dischargeBounds(comp)
	llo, lhi := dev.LevelBounds()
	charge, err := b.stepVars(comp.Name, "charge", func(int) (float64, float64) { return clo, chi })
	if err != nil {
		return err
	}
	discharge, err := b.stepVars(comp.Name, "discharge", func(int) (float64, float64) { return dlo, dhi })
	if err != nil {
		return err
	}
	level, err := b.stepVars(comp.Name, "level", func(int) (float64, float64) { return llo, lhi })
	if err != nil {
		return err
	}
	b.track(comp.Name, comp.Resource, model.TrackerCharge, charge, 1)
	b.track(comp.Name, comp.Resource, model.TrackerDischarge, discharge, 1)
	b.track(comp.Name, comp.Resource, model.TrackerLevel, level, 1)
	b.levels[comp.Name] = level

	// level[t] = level[t-1] + dt*(-sqrtRTE*charge[t] - discharge[t]/sqrtRTE)
	dt, eta := b.p.dt, dev.SqrtRTE
	for k := range level {
		var e lp.Expr
		e.Plus(level[k], 1).Plus(charge[k], dt*eta).Plus(discharge[k], dt/eta)
		rhs := dev.InitialLevel
		if k > 0 {
			e.Plus(level[k-1], -1)
			rhs = 0
		}
		if err := b.m.AddConstraint(stepName(comp.Name, "transfer", b.p.w.Start+k), e, lp.EQ, rhs); err != nil {
			return err
		}
		if comp.WearCost > 0 {
			b.obj.Plus(discharge[k], -dt*comp.WearCost)
		}
	}
	return nil
}

func (b *builder) addMarket(comp model.Component) error {
	trade, err := b.stepVars(comp.Name, "trade", func(int) (float64, float64) {
		return -comp.SellCapacity, comp.BuyCapacity
	})
	if err != nil {
		return err
	}
	b.track(comp.Name, comp.Resource, model.TrackerProduction, trade, 1)
	price := b.p.prices[comp.Name]
	for k, v := range trade {
		// sales are negative trade: revenue price*sale, cost price*purchase
		b.obj.Plus(v, -b.p.dt*price[k])
	}
	return nil
}

func (b *builder) addDemand(comp model.Component) error {
	d := b.p.demand[comp.Name]
	vars, err := b.stepVars(comp.Name, "demand", func(k int) (float64, float64) { return -d[k], -d[k] })
	if err != nil {
		return err
	}
	b.track(comp.Name, comp.Resource, model.TrackerProduction, vars, 1)
	return nil
}

func (b *builder) addSink(comp model.Component) error {
	caps := b.p.caps[comp.Name]
	bounded := comp.Capacity > 0
	dump, err := b.stepVars(comp.Name, "dump", func(k int) (float64, float64) {
		if !bounded {
			return math.Inf(-1), 0
		}
		return -caps[k], 0
	})
	if err != nil {
		return err
	}
	b.track(comp.Name, comp.Resource, model.TrackerProduction, dump, 1)
	if comp.Penalty > 0 {
		for _, v := range dump {
			b.obj.Plus(v, b.p.dt*comp.Penalty)
		}
	}
	return nil
}

// addConservation adds one balance row per resource and step over every flow
// entry, so the ledger written from a solution balances by construction.
func (b *builder) addConservation() error {
	for _, r := range b.p.resources() {
		for k := 0; k < b.p.w.Length; k++ {
			var e lp.Expr
			for _, en := range b.entries {
				if en.resource == r && en.tracker.IsFlow() {
					e.Plus(en.vars[k], en.scale)
				}
			}
			if len(e.Terms) == 0 {
				continue
			}
			if err := b.m.AddConstraint(stepName("balance", string(r), b.p.w.Start+k), e, lp.EQ, 0); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *builder) addSideConstraints() error {
	for _, sc := range b.p.c.Side {
		act := b.flows[sc.Limited]
		for k := range act {
			var e lp.Expr
			e.Plus(act[k], 1)
			for _, name := range sc.Limiters {
				e.Plus(b.flows[name][k], -1)
			}
			if err := b.m.AddConstraint(stepName(string(sc.Kind), sc.Limited, b.p.w.Start+k), e, lp.LE, 0); err != nil {
				return err
			}
		}
	}
	return nil
}

// write copies the solution into the Activity Matrix. Vectors are computed
// before the first write.
func (b *builder) write(act *ledger.Activity, values []float64) error {
	vecs := make([][]float64, len(b.entries))
	for i, en := range b.entries {
		v := make([]float64, len(en.vars))
		for k, x := range en.vars {
			val := en.scale * values[x]
			if math.Abs(val) < zeroTol {
				val = 0
			}
			v[k] = val
		}
		vecs[i] = v
	}
	for i, en := range b.entries {
		if err := act.SetActivityWindow(en.component, en.resource, en.tracker, b.p.w.Start, vecs[i]); err != nil {
			return err
		}
	}
	return nil
}

// endLevels returns the storage levels at the last step of the window.
func (b *builder) endLevels(values []float64) map[string]float64 {
	out := make(map[string]float64, len(b.levels))
	for name, lv := range b.levels {
		out[name] = values[lv[len(lv)-1]]
	}
	return out
}
