// Package market implements the price stack clearing-price oracle and the
// datasets it is built from.
package market

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

const (
	// OverflowID names the sentinel entry that clears any load beyond the
	// physical capacity of a stack.
	OverflowID = "overflow"
	// DefaultOverflowPrice is the $/unit price of the overflow sentinel.
	DefaultOverflowPrice = 1e6
)

var (
	// ErrStackOverflow is returned when load exceeds the cumulative capacity of
	// a stack without an overflow sentinel.
	ErrStackOverflow = errors.New("load exceeds price stack capacity")
	// ErrEmptyStack is returned when clearing an empty stack.
	ErrEmptyStack = errors.New("price stack is empty")
	// ErrInvalidLoad is returned for negative or NaN loads.
	ErrInvalidLoad = errors.New("invalid load")
)

// Stack is a merit-order curve: parallel arrays of cumulative capacity,
// marginal price and component id, sorted by cumulative capacity.
type Stack struct {
	cumulative []float64
	prices     []float64
	ids        []string
}

// BuildStack sorts components by marginal cost, accumulates their capacities
// and appends the overflow sentinel at DefaultOverflowPrice.
func BuildStack(capacities, marginalCosts []float64, ids []string) (Stack, error) {
	return buildStack(capacities, marginalCosts, ids, DefaultOverflowPrice)
}

func buildStack(capacities, marginalCosts []float64, ids []string, overflow float64) (Stack, error) {
	n := len(capacities)
	if len(marginalCosts) != n || len(ids) != n {
		return Stack{}, fmt.Errorf("stack arrays differ in length: %d capacities, %d costs, %d ids", n, len(marginalCosts), len(ids))
	}
	order := make([]int, n)
	for i := range order {
		c, p := capacities[i], marginalCosts[i]
		if c < 0 || math.IsNaN(c) || math.IsInf(c, 0) {
			return Stack{}, fmt.Errorf("component %s: capacity %v must be finite and non-negative", ids[i], c)
		}
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return Stack{}, fmt.Errorf("component %s: marginal cost %v must be finite", ids[i], p)
		}
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return marginalCosts[order[a]] < marginalCosts[order[b]]
	})

	s := Stack{
		cumulative: make([]float64, 0, n+1),
		prices:     make([]float64, 0, n+1),
		ids:        make([]string, 0, n+1),
	}
	total := 0.0
	for _, i := range order {
		total += capacities[i]
		s.cumulative = append(s.cumulative, total)
		s.prices = append(s.prices, marginalCosts[i])
		s.ids = append(s.ids, ids[i])
	}
	return s.WithOverflow(overflow), nil
}

// NewStack builds a stack from precomputed parallel arrays. Cumulative
// capacity must be non-decreasing. No overflow sentinel is added.
func NewStack(cumulative, prices []float64, ids []string) (Stack, error) {
	n := len(cumulative)
	if len(prices) != n {
		return Stack{}, fmt.Errorf("stack arrays differ in length: %d cumulative, %d prices", n, len(prices))
	}
	if ids == nil {
		ids = make([]string, n)
		for i := range ids {
			ids[i] = fmt.Sprintf("step-%d", i)
		}
	}
	if len(ids) != n {
		return Stack{}, fmt.Errorf("stack arrays differ in length: %d cumulative, %d ids", n, len(ids))
	}
	for i, c := range cumulative {
		if math.IsNaN(c) || c < 0 {
			return Stack{}, fmt.Errorf("cumulative capacity %v at %d must be non-negative", c, i)
		}
		if i > 0 && c < cumulative[i-1] {
			return Stack{}, fmt.Errorf("cumulative capacity decreases at %d: %v < %v", i, c, cumulative[i-1])
		}
		if math.IsNaN(prices[i]) || math.IsInf(prices[i], 0) {
			return Stack{}, fmt.Errorf("price %v at %d must be finite", prices[i], i)
		}
	}
	return Stack{
		cumulative: append([]float64(nil), cumulative...),
		prices:     append([]float64(nil), prices...),
		ids:        append([]string(nil), ids...),
	}, nil
}

// WithOverflow returns a copy of s with the overflow sentinel appended. A
// stack that already ends with a sentinel is returned unchanged.
func (s Stack) WithOverflow(price float64) Stack {
	if s.HasOverflow() {
		return s
	}
	return Stack{
		cumulative: append(append([]float64(nil), s.cumulative...), math.Inf(1)),
		prices:     append(append([]float64(nil), s.prices...), price),
		ids:        append(append([]string(nil), s.ids...), OverflowID),
	}
}

// HasOverflow reports whether the last entry is the overflow sentinel.
func (s Stack) HasOverflow() bool {
	n := len(s.cumulative)
	return n > 0 && math.IsInf(s.cumulative[n-1], 1)
}

// Len returns the number of entries, sentinel included.
func (s Stack) Len() int { return len(s.cumulative) }

// Capacity returns the physical capacity of the stack, excluding the sentinel.
func (s Stack) Capacity() float64 {
	for i := len(s.cumulative) - 1; i >= 0; i-- {
		if !math.IsInf(s.cumulative[i], 1) {
			return s.cumulative[i]
		}
	}
	return 0
}

// Cumulative returns a copy of the cumulative capacity array.
func (s Stack) Cumulative() []float64 { return append([]float64(nil), s.cumulative...) }

// Prices returns a copy of the price array.
func (s Stack) Prices() []float64 { return append([]float64(nil), s.prices...) }

// IDs returns a copy of the component order.
func (s Stack) IDs() []string { return append([]string(nil), s.ids...) }

// ClearingPrice returns the price of the first entry whose cumulative capacity
// covers load, together with its index.
func (s Stack) ClearingPrice(load float64) (float64, int, error) {
	if len(s.cumulative) == 0 {
		return 0, -1, ErrEmptyStack
	}
	if math.IsNaN(load) || load < 0 {
		return 0, -1, fmt.Errorf("%w: %v", ErrInvalidLoad, load)
	}
	i := sort.SearchFloat64s(s.cumulative, load)
	if i == len(s.cumulative) {
		return 0, -1, fmt.Errorf("%w: load %v > capacity %v", ErrStackOverflow, load, s.cumulative[i-1])
	}
	return s.prices[i], i, nil
}

// Marginal returns the id of the entry that clears load.
func (s Stack) Marginal(load float64) (string, error) {
	_, i, err := s.ClearingPrice(load)
	if err != nil {
		return "", err
	}
	return s.ids[i], nil
}

// PriceSeries clears the stack for every load of the series.
func (s Stack) PriceSeries(loads []float64) ([]float64, error) {
	out := make([]float64, len(loads))
	for t, l := range loads {
		p, _, err := s.ClearingPrice(l)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", t, err)
		}
		out[t] = p
	}
	return out, nil
}
