package market

import (
	"fmt"
	"math"
)

// ExpFit is an exponential clearing-price fit price = A*exp(B*x).
type ExpFit struct {
	A float64
	B float64
}

// Price evaluates the fit at x.
func (f ExpFit) Price(x float64) (float64, error) {
	p := f.A * math.Exp(f.B*x)
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0, fmt.Errorf("exp fit a=%v b=%v at x=%v is not finite", f.A, f.B, x)
	}
	return p, nil
}

// Series evaluates the fit for every x.
func (f ExpFit) Series(xs []float64) ([]float64, error) {
	out := make([]float64, len(xs))
	for t, x := range xs {
		p, err := f.Price(x)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", t, err)
		}
		out[t] = p
	}
	return out, nil
}
