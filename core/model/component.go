package model

import (
	"errors"
	"fmt"
	"math"
)

// ComponentKind selects how a component participates in the dispatch model.
type ComponentKind string

const (
	KindSource    ComponentKind = "source"
	KindConverter ComponentKind = "converter"
	KindStorage   ComponentKind = "storage"
	KindMarket    ComponentKind = "market"
	KindDemand    ComponentKind = "demand"
	KindSink      ComponentKind = "sink"
)

// StorageSpec describes a storage device. Efficiency may be given either as a
// round-trip value or directly as its square root; SqrtRTE wins when both are
// set.
type StorageSpec struct {
	Capacity     float64 `json:"capacity"`
	InitialLevel float64 `json:"initial_level"`
	RTE          float64 `json:"rte"`
	SqrtRTE      float64 `json:"sqrt_rte"`
}

// EffectiveSqrtRTE returns the per-direction efficiency factor.
func (s StorageSpec) EffectiveSqrtRTE() float64 {
	if s.SqrtRTE > 0 {
		return s.SqrtRTE
	}
	if s.RTE > 0 {
		return math.Sqrt(s.RTE)
	}
	return 1
}

// Component is a named participant of a case: a plant, a converter such as an
// electrolyzer, a tank, a market, a fixed demand or a dump sink.
type Component struct {
	Name     string        `json:"name"`
	Kind     ComponentKind `json:"kind"`
	Resource Resource      `json:"resource"`

	// Capacity bounds the activity magnitude of the component per hour. When
	// Profile names a series, the bound at step t is Capacity*series[t].
	Capacity float64 `json:"capacity"`
	Profile  string  `json:"profile"`

	// source
	MustRun        bool         `json:"must_run"`
	MarginalCost   *PriceSource `json:"marginal_cost"`
	CurtailPenalty float64      `json:"curtail_penalty"`

	// converter: Resource is the consumed input, Outputs gives units produced
	// per unit of input.
	Outputs         map[Resource]float64 `json:"outputs"`
	OpportunityCost *PriceSource         `json:"opportunity_cost"`

	// storage
	Storage  *StorageSpec `json:"storage"`
	WearCost float64      `json:"wear_cost"`

	// market
	SellCapacity float64      `json:"sell_capacity"`
	BuyCapacity  float64      `json:"buy_capacity"`
	Price        *PriceSource `json:"price"`

	// demand
	Demand string `json:"demand"`

	// sink
	Penalty float64 `json:"penalty"`
}

// Validate checks that the component is internally consistent.
//
//gocyclo:ignore
func (c Component) Validate() error {
	if c.Name == "" {
		return errors.New("component name is required")
	}
	if c.Resource == "" {
		return fmt.Errorf("component %s: resource is required", c.Name)
	}
	if c.Capacity < 0 || math.IsNaN(c.Capacity) {
		return fmt.Errorf("component %s: capacity must be non-negative", c.Name)
	}
	switch c.Kind {
	case KindSource:
		if math.IsInf(c.Capacity, 0) {
			return fmt.Errorf("component %s: source capacity must be finite", c.Name)
		}
		if c.CurtailPenalty < 0 {
			return fmt.Errorf("component %s: curtail_penalty must be non-negative", c.Name)
		}
		if err := c.MarginalCost.Validate(); err != nil {
			return fmt.Errorf("component %s: marginal_cost: %w", c.Name, err)
		}
	case KindConverter:
		if len(c.Outputs) == 0 {
			return fmt.Errorf("component %s: converter needs at least one output", c.Name)
		}
		for r, ratio := range c.Outputs {
			if r == c.Resource {
				return fmt.Errorf("component %s: output %s equals input", c.Name, r)
			}
			if ratio <= 0 || math.IsInf(ratio, 0) || math.IsNaN(ratio) {
				return fmt.Errorf("component %s: output ratio for %s must be positive", c.Name, r)
			}
		}
		if err := c.OpportunityCost.Validate(); err != nil {
			return fmt.Errorf("component %s: opportunity_cost: %w", c.Name, err)
		}
	case KindStorage:
		if c.Storage == nil {
			return fmt.Errorf("component %s: storage spec is required", c.Name)
		}
		s := *c.Storage
		if s.Capacity <= 0 || math.IsInf(s.Capacity, 0) {
			return fmt.Errorf("component %s: storage capacity must be positive and finite", c.Name)
		}
		if s.InitialLevel < 0 || s.InitialLevel > s.Capacity {
			return fmt.Errorf("component %s: initial level %.3f outside [0, %.3f]", c.Name, s.InitialLevel, s.Capacity)
		}
		if s.RTE < 0 || s.RTE > 1 || s.SqrtRTE < 0 || s.SqrtRTE > 1 {
			return fmt.Errorf("component %s: efficiency must lie in (0, 1]", c.Name)
		}
		if c.WearCost < 0 {
			return fmt.Errorf("component %s: wear_cost must be non-negative", c.Name)
		}
	case KindMarket:
		if c.SellCapacity < 0 || c.BuyCapacity < 0 {
			return fmt.Errorf("component %s: market capacities must be non-negative", c.Name)
		}
		if c.SellCapacity == 0 && c.BuyCapacity == 0 {
			return fmt.Errorf("component %s: market needs a sell or buy capacity", c.Name)
		}
		if c.Price == nil {
			return fmt.Errorf("component %s: market price is required", c.Name)
		}
		if err := c.Price.Validate(); err != nil {
			return fmt.Errorf("component %s: price: %w", c.Name, err)
		}
	case KindDemand:
		if c.Demand == "" {
			return fmt.Errorf("component %s: demand series is required", c.Name)
		}
	case KindSink:
		if c.Penalty < 0 {
			return fmt.Errorf("component %s: penalty must be non-negative", c.Name)
		}
	default:
		return fmt.Errorf("component %s: unknown kind %q", c.Name, c.Kind)
	}
	return nil
}

// CapacityAt returns the activity bound of the component at step t using the
// case series for profiled capacities.
func (c Component) CapacityAt(series map[string][]float64, t int) (float64, error) {
	if c.Profile == "" {
		return c.Capacity, nil
	}
	s, ok := series[c.Profile]
	if !ok {
		return 0, fmt.Errorf("component %s: profile series %q not found", c.Name, c.Profile)
	}
	if t < 0 || t >= len(s) {
		return 0, fmt.Errorf("component %s: profile series %q has no step %d", c.Name, c.Profile, t)
	}
	return c.Capacity * s[t], nil
}

// Produces returns the resources the component can deliver into the pool.
func (c Component) Produces() []Resource {
	switch c.Kind {
	case KindSource, KindStorage:
		return []Resource{c.Resource}
	case KindMarket:
		if c.BuyCapacity > 0 {
			return []Resource{c.Resource}
		}
	case KindConverter:
		out := make([]Resource, 0, len(c.Outputs))
		for r := range c.Outputs {
			out = append(out, r)
		}
		return out
	}
	return nil
}
