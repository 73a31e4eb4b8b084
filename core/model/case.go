package model

import (
	"errors"
	"fmt"
	"time"
)

// CaseLabels select the precomputed price stack dataset of a case.
type CaseLabels struct {
	State          string `json:"state"`
	Strategy       string `json:"strategy"`
	PriceStructure string `json:"price_structure"`
	Year           int    `json:"year"`
}

// Tags returns the labels as a flat map for logs and monitoring.
func (l CaseLabels) Tags() map[string]string {
	return map[string]string{
		"state":           l.State,
		"strategy":        l.Strategy,
		"price_structure": l.PriceStructure,
		"year":            fmt.Sprint(l.Year),
	}
}

// SideConstraintKind names a case specific constraint family.
type SideConstraintKind string

// Additionality limits a converter input to the contemporaneous output of the
// listed sources, the clean hydrogen rule.
const Additionality SideConstraintKind = "additionality"

// SideConstraint is an extra per-step constraint added on top of conservation.
type SideConstraint struct {
	Kind     SideConstraintKind `json:"kind"`
	Limited  string             `json:"limited"`
	Limiters []string           `json:"limiters"`
}

// Case is the typed input of a dispatch call. The engine never mutates it.
type Case struct {
	Name       string               `json:"name"`
	Labels     CaseLabels           `json:"labels"`
	Dt         float64              `json:"dt"`
	Start      time.Time            `json:"start"`
	Horizon    int                  `json:"horizon"`
	Components []Component          `json:"components"`
	Series     map[string][]float64 `json:"series"`
	Side       []SideConstraint     `json:"side_constraints"`
}

// Window is a contiguous range of steps dispatched in one optimization.
type Window struct {
	Start  int
	Length int
}

// End returns the first step after the window.
func (w Window) End() int { return w.Start + w.Length }

// Component returns the named component.
func (c *Case) Component(name string) (Component, bool) {
	for _, comp := range c.Components {
		if comp.Name == name {
			return comp, true
		}
	}
	return Component{}, false
}

// SeriesAt returns series[name][t] or an error when missing.
func (c *Case) SeriesAt(name string, t int) (float64, error) {
	s, ok := c.Series[name]
	if !ok {
		return 0, fmt.Errorf("series %q not found", name)
	}
	if t < 0 || t >= len(s) {
		return 0, fmt.Errorf("series %q has no step %d", name, t)
	}
	return s[t], nil
}

// Validate checks structural consistency of the case: positive dt, unique
// valid components and resolvable side constraints.
func (c *Case) Validate() error {
	if c.Dt <= 0 {
		return errors.New("dt must be positive")
	}
	if c.Horizon <= 0 {
		return errors.New("horizon must be positive")
	}
	if len(c.Components) == 0 {
		return errors.New("case has no components")
	}
	seen := make(map[string]struct{}, len(c.Components))
	for _, comp := range c.Components {
		if err := comp.Validate(); err != nil {
			return err
		}
		if _, dup := seen[comp.Name]; dup {
			return fmt.Errorf("duplicate component name %s", comp.Name)
		}
		seen[comp.Name] = struct{}{}
	}
	for _, sc := range c.Side {
		if sc.Kind != Additionality {
			return fmt.Errorf("unknown side constraint kind %q", sc.Kind)
		}
		lim, ok := c.Component(sc.Limited)
		if !ok {
			return fmt.Errorf("side constraint references unknown component %s", sc.Limited)
		}
		if lim.Kind != KindConverter {
			return fmt.Errorf("additionality limited component %s must be a converter", sc.Limited)
		}
		if len(sc.Limiters) == 0 {
			return fmt.Errorf("additionality on %s needs limiters", sc.Limited)
		}
		for _, name := range sc.Limiters {
			l, ok := c.Component(name)
			if !ok {
				return fmt.Errorf("side constraint references unknown component %s", name)
			}
			if l.Kind != KindSource {
				return fmt.Errorf("additionality limiter %s must be a source", name)
			}
		}
	}
	return nil
}
