package lp

import (
	"context"
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var errIterationLimit = errors.New("simplex iteration limit reached")

const (
	// pivTol is the smallest tableau entry accepted as a pivot.
	pivTol = 1e-9
	// harrisTol is the bound violation tolerated by the ratio test.
	harrisTol = 1e-9
	// blandAfter is the number of consecutive degenerate pivots after which
	// pricing switches to Bland's rule.
	blandAfter = 50
	// ctxEvery is the number of pivots between two context checks.
	ctxEvery = 32
	// refreshEvery is the number of pivots between two recomputations of the
	// basic values from the basis inverse.
	refreshEvery = 200
)

type colState int8

const (
	atLower colState = iota
	atUpper
	basic
	// excluded marks artificial columns that left the basis.
	excluded
)

// tableau is a dense bounded-variable primal simplex over
// min c'y s.t. Ay = b, 0 <= y <= upper with b >= 0.
//
// Columns n..n+m-1 are artificials. They start as the identity basis, so
// their block of the tableau always holds the inverse of the current basis.
type tableau struct {
	m, n     int
	a        *mat.Dense
	b        []float64
	t        [][]float64
	x        []float64
	basis    []int
	state    []colState
	upper    []float64
	cost     []float64
	d        []float64
	dtol     float64
	bland    bool
	iters    int
	maxIters int
}

func newTableau(sf *standardForm, tol float64) *tableau {
	m, n := sf.a.Dims()
	cols := n + m
	tb := &tableau{
		m: m, n: n, a: sf.a, b: sf.b,
		t:        make([][]float64, m),
		x:        make([]float64, m),
		basis:    make([]int, m),
		state:    make([]colState, cols),
		upper:    make([]float64, cols),
		d:        make([]float64, cols),
		dtol:     tol,
		maxIters: 50*(m+cols) + 1000,
	}
	for i := 0; i < m; i++ {
		row := make([]float64, cols)
		copy(row, sf.a.RawRowView(i))
		row[n+i] = 1
		tb.t[i] = row
		tb.x[i] = sf.b[i]
		tb.basis[i] = n + i
	}
	copy(tb.upper, sf.upper)
	for j := n; j < cols; j++ {
		tb.upper[j] = math.Inf(1)
		tb.state[j] = basic
	}
	return tb
}

// runTableau solves sf in two phases and returns the value of every reduced
// column.
func runTableau(ctx context.Context, sf *standardForm, tol float64) ([]float64, error) {
	tb := newTableau(sf, tol)

	phase1 := make([]float64, tb.n+tb.m)
	for j := tb.n; j < len(phase1); j++ {
		phase1[j] = 1
	}
	tb.price(phase1, tol)
	if err := tb.optimize(ctx); err != nil {
		if errors.Is(err, errUnbounded) {
			return nil, errors.New("phase one diverged")
		}
		return nil, err
	}
	tb.refresh()
	residual := 0.0
	for i, j := range tb.basis {
		if j >= tb.n {
			residual += math.Max(tb.x[i], 0)
		}
	}
	if residual > 10*math.Max(tol, pivTol)*math.Max(1, floats.Norm(tb.b, math.Inf(1))) {
		return nil, errInfeasible
	}
	tb.expelArtificials()

	phase2 := make([]float64, tb.n+tb.m)
	copy(phase2, sf.c)
	tb.price(phase2, tol*math.Max(1, floats.Norm(sf.c, math.Inf(1))))
	if err := tb.optimize(ctx); err != nil {
		return nil, err
	}
	tb.refresh()
	return tb.solution(), nil
}

// price switches the objective to cost and resets the pricing mode.
func (tb *tableau) price(cost []float64, dtol float64) {
	tb.cost, tb.dtol, tb.bland = cost, dtol, false
	tb.reprice()
}

// reprice recomputes the reduced costs for the current basis.
func (tb *tableau) reprice() {
	copy(tb.d, tb.cost)
	for i, row := range tb.t {
		if cb := tb.cost[tb.basis[i]]; cb != 0 {
			floats.AddScaled(tb.d, -cb, row)
		}
	}
	for _, j := range tb.basis {
		tb.d[j] = 0
	}
}

func (tb *tableau) optimize(ctx context.Context) error {
	degenerate := 0
	for n := 0; ; n++ {
		if n%ctxEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if n > 0 && n%refreshEvery == 0 {
			tb.refresh()
		}
		if tb.iters >= tb.maxIters {
			return errIterationLimit
		}
		q, dir := tb.entering()
		if q < 0 {
			return nil
		}
		r, theta := tb.leaving(q, dir)
		flip := !math.IsInf(tb.upper[q], 1) && (r < 0 || tb.upper[q] <= theta)
		switch {
		case flip:
			theta = tb.upper[q]
			tb.shift(q, dir*theta)
			if dir > 0 {
				tb.state[q] = atUpper
			} else {
				tb.state[q] = atLower
			}
		case r < 0:
			return errUnbounded
		default:
			enter := tb.value(q) + dir*theta
			tb.shift(q, dir*theta)
			p := tb.basis[r]
			switch {
			case p >= tb.n:
				tb.state[p] = excluded
			case dir*tb.t[r][q] > 0:
				tb.state[p] = atLower
			default:
				tb.state[p] = atUpper
			}
			tb.x[r] = enter
			tb.pivot(r, q)
		}
		tb.iters++
		if theta <= harrisTol {
			degenerate++
		} else {
			degenerate = 0
		}
		tb.bland = degenerate > blandAfter
	}
}

// entering picks the nonbasic column to move and its direction. It uses the
// largest reduced cost, or the lowest eligible index in Bland mode.
func (tb *tableau) entering() (int, float64) {
	q, dir, best := -1, 0.0, 0.0
	for j, dj := range tb.d {
		var score, s float64
		switch tb.state[j] {
		case atLower:
			if dj < -tb.dtol && tb.upper[j] > 0 {
				score, s = -dj, 1
			}
		case atUpper:
			if dj > tb.dtol {
				score, s = dj, -1
			}
		}
		if s == 0 {
			continue
		}
		if tb.bland {
			return j, s
		}
		if score > best {
			q, dir, best = j, s, score
		}
	}
	return q, dir
}

// leaving runs a two pass Harris ratio test for column q moving in direction
// dir. It returns -1 when no basic variable blocks the move.
func (tb *tableau) leaving(q int, dir float64) (int, float64) {
	slack := harrisTol
	if tb.bland {
		slack = 0
	}
	limit := math.Inf(1)
	for i, row := range tb.t {
		if ratio, ok := tb.ratio(i, dir*row[q], slack); ok {
			limit = math.Min(limit, ratio)
		}
	}
	if math.IsInf(limit, 1) {
		return -1, limit
	}
	r, theta, best := -1, 0.0, 0.0
	for i, row := range tb.t {
		alpha := dir * row[q]
		ratio, ok := tb.ratio(i, alpha, 0)
		if !ok || ratio > limit+1e-12 {
			continue
		}
		better := r < 0
		if !better && tb.bland {
			better = tb.basis[i] < tb.basis[r]
		} else if !better {
			better = math.Abs(alpha) > best
		}
		if better {
			r, theta, best = i, ratio, math.Abs(alpha)
		}
	}
	return r, theta
}

// ratio returns how far the entering column can move before the basic
// variable of row i reaches a bound, given alpha the signed rate at which it
// decreases.
func (tb *tableau) ratio(i int, alpha, slack float64) (float64, bool) {
	switch {
	case alpha > pivTol:
		return math.Max(0, (tb.x[i]+slack)/alpha), true
	case alpha < -pivTol:
		u := tb.upper[tb.basis[i]]
		if math.IsInf(u, 1) {
			return 0, false
		}
		return math.Max(0, (u-tb.x[i]+slack)/-alpha), true
	}
	return 0, false
}

// shift moves column q by delta and updates the basic values.
func (tb *tableau) shift(q int, delta float64) {
	if delta == 0 {
		return
	}
	for i, row := range tb.t {
		if a := row[q]; a != 0 {
			tb.x[i] -= delta * a
		}
	}
}

func (tb *tableau) pivot(r, q int) {
	pr := tb.t[r]
	floats.Scale(1/pr[q], pr)
	pr[q] = 1
	for i, row := range tb.t {
		if i == r {
			continue
		}
		if f := row[q]; f != 0 {
			floats.AddScaled(row, -f, pr)
			row[q] = 0
		}
	}
	if f := tb.d[q]; f != 0 {
		floats.AddScaled(tb.d, -f, pr)
		tb.d[q] = 0
	}
	tb.basis[r] = q
	tb.state[q] = basic
}

// value returns the value of a nonbasic column.
func (tb *tableau) value(j int) float64 {
	if tb.state[j] == atUpper {
		return tb.upper[j]
	}
	return 0
}

// refresh recomputes the basic values from the basis inverse held in the
// artificial block, then the reduced costs.
func (tb *tableau) refresh() {
	rhs := append([]float64(nil), tb.b...)
	for j := 0; j < tb.n; j++ {
		if tb.state[j] != atUpper {
			continue
		}
		u := tb.upper[j]
		for k := range rhs {
			rhs[k] -= u * tb.a.At(k, j)
		}
	}
	for i, row := range tb.t {
		tb.x[i] = floats.Dot(row[tb.n:], rhs)
	}
	if tb.cost != nil {
		tb.reprice()
	}
}

// expelArtificials pivots zero valued artificials out of the basis after
// phase one. An artificial that cannot leave marks a redundant row and is
// pinned to zero.
func (tb *tableau) expelArtificials() {
	for r, p := range tb.basis {
		if p < tb.n {
			continue
		}
		q, best := -1, pivTol
		for j := 0; j < tb.n; j++ {
			if tb.state[j] == basic {
				continue
			}
			if a := math.Abs(tb.t[r][j]); a > best {
				q, best = j, a
			}
		}
		if q < 0 {
			tb.upper[p] = 0
			tb.x[r] = 0
			continue
		}
		tb.state[p] = excluded
		tb.x[r] = tb.value(q)
		tb.pivot(r, q)
	}
	tb.refresh()
}

func (tb *tableau) solution() []float64 {
	y := make([]float64, tb.n)
	for j := range y {
		y[j] = tb.value(j)
	}
	for i, j := range tb.basis {
		if j < tb.n {
			y[j] = math.Min(math.Max(tb.x[i], 0), tb.upper[j])
		}
	}
	return y
}
