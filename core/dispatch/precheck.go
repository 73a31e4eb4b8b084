package dispatch

import (
	"fmt"
	"math"
	"sort"

	"github.com/kilianp07/iesdispatch/core/ledger"
	"github.com/kilianp07/iesdispatch/core/model"
	"github.com/kilianp07/iesdispatch/core/storage"
)

// coverTol absorbs round-off when comparing demand with maximum supply.
const coverTol = 1e-9

// plan is a validated case window with every bound and price evaluated.
// Slices are indexed by window step.
type plan struct {
	c  *model.Case
	w  model.Window
	dt float64

	caps    map[string][]float64
	prices  map[string][]float64
	demand  map[string][]float64
	devices map[string]storage.Device
}

// prepare runs every precondition on the case window and evaluates the
// inputs of the builder. Any failure is a configuration error.
//
//gocyclo:ignore
func (e *Engine) prepare(c *model.Case, w model.Window, act *ledger.Activity) (*plan, error) {
	if c == nil {
		return nil, invalidf("nil case")
	}
	if act == nil {
		return nil, invalidf("nil activity matrix")
	}
	if err := c.Validate(); err != nil {
		return nil, invalidWrap(err, "case %s", c.Name)
	}
	if w.Start < 0 || w.Length <= 0 || w.End() > c.Horizon {
		return nil, invalidf("window [%d,%d) outside horizon %d", w.Start, w.End(), c.Horizon)
	}
	if act.Horizon() < w.End() {
		return nil, invalidf("activity matrix horizon %d shorter than window end %d", act.Horizon(), w.End())
	}
	if err := checkSeries(c); err != nil {
		return nil, err
	}
	if err := checkSideConstraints(c); err != nil {
		return nil, err
	}

	p := &plan{
		c:       c,
		w:       w,
		dt:      c.Dt,
		caps:    make(map[string][]float64),
		prices:  make(map[string][]float64),
		demand:  make(map[string][]float64),
		devices: make(map[string]storage.Device),
	}
	prices := newPriceEvaluator(c, e.stacks)
	for _, comp := range c.Components {
		switch comp.Kind {
		case model.KindSource, model.KindConverter, model.KindSink:
			caps := make([]float64, w.Length)
			for k := range caps {
				v, err := comp.CapacityAt(c.Series, w.Start+k)
				if err != nil {
					return nil, invalidWrap(err, "capacity")
				}
				if v < 0 || math.IsNaN(v) {
					return nil, invalidf("component %s: capacity %v at step %d must be non-negative", comp.Name, v, w.Start+k)
				}
				caps[k] = v
			}
			p.caps[comp.Name] = caps
		case model.KindStorage:
			s := comp.Storage
			dev, err := storage.NewDevice(s.Capacity, s.InitialLevel, s.EffectiveSqrtRTE())
			if err != nil {
				return nil, invalidWrap(err, "component %s", comp.Name)
			}
			p.devices[comp.Name] = dev
		case model.KindDemand:
			d := make([]float64, w.Length)
			for k := range d {
				v := c.Series[comp.Demand][w.Start+k]
				if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
					return nil, invalidf("component %s: demand %v at step %d must be finite and non-negative", comp.Name, v, w.Start+k)
				}
				d[k] = v
			}
			p.demand[comp.Name] = d
		}

		var src *model.PriceSource
		switch comp.Kind {
		case model.KindSource:
			src = comp.MarginalCost
		case model.KindConverter:
			src = comp.OpportunityCost
		case model.KindMarket:
			src = comp.Price
		}
		if src != nil {
			vals, err := prices.window(src, w)
			if err != nil {
				return nil, invalidWrap(err, "component %s: price", comp.Name)
			}
			p.prices[comp.Name] = vals
		}
	}
	if err := p.checkCoverable(); err != nil {
		return nil, err
	}
	return p, nil
}

// checkSeries verifies every referenced series exists and spans the horizon.
func checkSeries(c *model.Case) error {
	need := func(name, what string) error {
		if name == "" {
			return nil
		}
		s, ok := c.Series[name]
		if !ok {
			return invalidf("%s: series %q not found", what, name)
		}
		if len(s) < c.Horizon {
			return invalidf("%s: series %q has %d steps, horizon is %d", what, name, len(s), c.Horizon)
		}
		return nil
	}
	priceNeeds := func(src *model.PriceSource, what string) error {
		if src == nil {
			return nil
		}
		if err := need(src.Series, what); err != nil {
			return err
		}
		if src.Fit != nil {
			if err := need(src.Fit.X, what); err != nil {
				return err
			}
		}
		if src.Stack != nil {
			return need(src.Stack.Load, what)
		}
		return nil
	}
	for _, comp := range c.Components {
		what := "component " + comp.Name
		if err := need(comp.Profile, what); err != nil {
			return err
		}
		if err := need(comp.Demand, what); err != nil {
			return err
		}
		for _, src := range []*model.PriceSource{comp.MarginalCost, comp.OpportunityCost, comp.Price} {
			if err := priceNeeds(src, what); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkSideConstraints verifies additionality links compatible resources.
func checkSideConstraints(c *model.Case) error {
	for _, sc := range c.Side {
		limited, _ := c.Component(sc.Limited)
		for _, name := range sc.Limiters {
			l, _ := c.Component(name)
			if l.Resource != limited.Resource {
				return invalidf("additionality on %s: limiter %s produces %s, converter consumes %s", sc.Limited, name, l.Resource, limited.Resource)
			}
		}
	}
	return nil
}

// maxSupply returns the largest quantity of each resource the case can put
// into the pool at window step k.
func (p *plan) maxSupply(k int) map[model.Resource]float64 {
	supply := make(map[model.Resource]float64)
	for _, comp := range p.c.Components {
		switch comp.Kind {
		case model.KindSource:
			supply[comp.Resource] += p.caps[comp.Name][k]
		case model.KindConverter:
			for r, ratio := range comp.Outputs {
				supply[r] += ratio * p.caps[comp.Name][k]
			}
		case model.KindStorage:
			_, hi := p.dischargeBounds(comp)
			supply[comp.Resource] += hi
		case model.KindMarket:
			supply[comp.Resource] += comp.BuyCapacity
		}
	}
	return supply
}

// checkCoverable rejects cases where a demand exceeds the maximum supply of
// its resource at some step.
func (p *plan) checkCoverable() error {
	for k := 0; k < p.w.Length; k++ {
		need := make(map[model.Resource]float64)
		for _, comp := range p.c.Components {
			if comp.Kind == model.KindDemand {
				need[comp.Resource] += p.demand[comp.Name][k]
			}
		}
		if len(need) == 0 {
			return nil
		}
		supply := p.maxSupply(k)
		for _, r := range sortedResources(need) {
			if need[r] > supply[r]+coverTol {
				return invalidf("demand for %s at step %d (%.6g) exceeds maximum supply (%.6g)", r, p.w.Start+k, need[r], supply[r])
			}
		}
	}
	return nil
}

// dischargeBounds returns the discharge range of a storage component,
// narrowed by its power rating when one is set.
func (p *plan) dischargeBounds(comp model.Component) (float64, float64) {
	lo, hi := p.devices[comp.Name].DischargeBounds(p.dt)
	if comp.Capacity > 0 {
		hi = math.Min(hi, comp.Capacity)
	}
	return lo, hi
}

// chargeBounds is the charge counterpart of dischargeBounds.
func (p *plan) chargeBounds(comp model.Component) (float64, float64) {
	lo, hi := p.devices[comp.Name].ChargeBounds(p.dt)
	if comp.Capacity > 0 {
		lo = math.Max(lo, -comp.Capacity)
	}
	return lo, hi
}

// resources returns every resource touched by the case, sorted.
func (p *plan) resources() []model.Resource {
	set := make(map[model.Resource]float64)
	for _, comp := range p.c.Components {
		set[comp.Resource] = 0
		for r := range comp.Outputs {
			set[r] = 0
		}
	}
	return sortedResources(set)
}

func sortedResources(m map[model.Resource]float64) []model.Resource {
	out := make([]model.Resource, 0, len(m))
	for r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func stepName(name, role string, t int) string {
	return fmt.Sprintf("%s.%s[%d]", name, role, t)
}
