package model

import "errors"

// FitSpec is an exponential clearing-price fit price = A*exp(B*x) where x is
// read from the named exogenous series.
type FitSpec struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
	X string  `json:"x"`
}

// StackSpec prices a step by clearing the case price stack at the load read
// from the named series.
type StackSpec struct {
	Load string `json:"load"`
}

// PriceSource describes where a per-step $/unit value comes from. At most one
// of Series, Fit and Stack may be set; otherwise Fixed applies.
type PriceSource struct {
	Fixed  float64    `json:"fixed"`
	Series string     `json:"series"`
	Fit    *FitSpec   `json:"fit"`
	Stack  *StackSpec `json:"stack"`
}

// FixedPrice returns a constant price source.
func FixedPrice(v float64) *PriceSource { return &PriceSource{Fixed: v} }

// Validate checks that exactly one dynamic source is selected. A nil source is
// valid and prices everything at zero.
func (p *PriceSource) Validate() error {
	if p == nil {
		return nil
	}
	n := 0
	if p.Series != "" {
		n++
	}
	if p.Fit != nil {
		n++
		if p.Fit.X == "" {
			return errors.New("fit requires an x series")
		}
	}
	if p.Stack != nil {
		n++
		if p.Stack.Load == "" {
			return errors.New("stack requires a load series")
		}
	}
	if n > 1 {
		return errors.New("only one of series, fit and stack may be set")
	}
	return nil
}

// IsZero reports whether the source always prices at zero.
func (p *PriceSource) IsZero() bool {
	return p == nil || (p.Series == "" && p.Fit == nil && p.Stack == nil && p.Fixed == 0)
}
