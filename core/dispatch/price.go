package dispatch

import (
	"errors"
	"fmt"
	"math"

	"github.com/kilianp07/iesdispatch/core/market"
	"github.com/kilianp07/iesdispatch/core/model"
)

// PriceStacks resolves the price stack selected by case labels.
// *market.Dataset implements it.
type PriceStacks interface {
	Stack(labels model.CaseLabels) (market.Stack, error)
}

// priceEvaluator turns price sources into per-step values for one case.
type priceEvaluator struct {
	c      *model.Case
	stacks PriceStacks

	stack    market.Stack
	stackErr error
	resolved bool
}

func newPriceEvaluator(c *model.Case, stacks PriceStacks) *priceEvaluator {
	return &priceEvaluator{c: c, stacks: stacks}
}

func (e *priceEvaluator) caseStack() (market.Stack, error) {
	if !e.resolved {
		e.resolved = true
		if e.stacks == nil {
			e.stackErr = errors.New("no price stack dataset configured")
		} else {
			e.stack, e.stackErr = e.stacks.Stack(e.c.Labels)
		}
	}
	return e.stack, e.stackErr
}

// at returns the $/unit value of src at step t. A nil source is zero.
func (e *priceEvaluator) at(src *model.PriceSource, t int) (float64, error) {
	if src == nil {
		return 0, nil
	}
	var (
		p   float64
		err error
	)
	switch {
	case src.Series != "":
		p, err = e.c.SeriesAt(src.Series, t)
	case src.Fit != nil:
		var x float64
		if x, err = e.c.SeriesAt(src.Fit.X, t); err == nil {
			p, err = market.ExpFit{A: src.Fit.A, B: src.Fit.B}.Price(x)
		}
	case src.Stack != nil:
		var (
			s    market.Stack
			load float64
		)
		if s, err = e.caseStack(); err != nil {
			break
		}
		if load, err = e.c.SeriesAt(src.Stack.Load, t); err == nil {
			p, _, err = s.ClearingPrice(load)
		}
	default:
		p = src.Fixed
	}
	if err != nil {
		return 0, err
	}
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0, fmt.Errorf("price %v is not finite", p)
	}
	return p, nil
}

// window evaluates src over every step of w.
func (e *priceEvaluator) window(src *model.PriceSource, w model.Window) ([]float64, error) {
	out := make([]float64, w.Length)
	for k := range out {
		p, err := e.at(src, w.Start+k)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", w.Start+k, err)
		}
		out[k] = p
	}
	return out, nil
}
