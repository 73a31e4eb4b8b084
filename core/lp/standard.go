package lp

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	errInfeasible = errors.New("infeasible")
	errUnbounded  = errors.New("unbounded")
)

// depTol is the relative tolerance below which a reduced row is treated as
// linearly dependent.
const depTol = 1e-9

type colRef struct {
	col  int
	coef float64
}

// varMap expresses a model variable as offset + sum(coef*column).
type varMap struct {
	offset float64
	cols   []colRef
}

// standardForm is min c'y s.t. Ay = b, 0 <= y <= upper together with the
// mapping back to model variables.
type standardForm struct {
	c     []float64
	a     *mat.Dense
	b     []float64
	upper []float64
	vars  []varMap
	// keep maps reduced column j to its original column index.
	keep []int
	// parked holds the value of pruned columns that rest at their upper bound.
	parked map[int]float64
	// ncols is the number of columns before pruning.
	ncols int
	// costSign is -1 when the model maximizes.
	costSign float64
}

// toStandard converts m into equality form with bounded non-negative
// columns: finite lower bounds are shifted out, a finite upper bound with an
// infinite lower bound is mirrored, free variables are split, fixed variables
// become constants, inequality rows get slacks and rows with a negative rhs
// are negated. Upper bounds stay on the columns instead of becoming rows.
// Zero columns are pruned and linearly dependent rows removed.
//
//gocyclo:ignore
func toStandard(m *Model) (*standardForm, error) {
	sf := &standardForm{vars: make([]varMap, len(m.vars)), costSign: 1, parked: make(map[int]float64)}
	if m.sense == Maximize {
		sf.costSign = -1
	}

	inf := math.Inf(1)
	var upper []float64
	for i, v := range m.vars {
		n := len(upper)
		switch {
		case !math.IsInf(v.lb, 0) && !math.IsInf(v.ub, 0) && v.ub-v.lb <= 0:
			sf.vars[i] = varMap{offset: v.lb}
		case !math.IsInf(v.lb, 0):
			sf.vars[i] = varMap{offset: v.lb, cols: []colRef{{n, 1}}}
			upper = append(upper, v.ub-v.lb)
		case !math.IsInf(v.ub, 0):
			sf.vars[i] = varMap{offset: v.ub, cols: []colRef{{n, -1}}}
			upper = append(upper, inf)
		default:
			sf.vars[i] = varMap{cols: []colRef{{n, 1}, {n + 1, -1}}}
			upper = append(upper, inf, inf)
		}
	}
	slack := len(upper)
	for _, c := range m.cons {
		if c.Rel != EQ {
			upper = append(upper, inf)
		}
	}
	sf.ncols = len(upper)

	rows := make([][]float64, 0, len(m.cons))
	rhs := make([]float64, 0, len(m.cons))
	for _, c := range m.cons {
		row := make([]float64, sf.ncols)
		b := c.RHS - c.Expr.Constant
		for _, t := range c.Expr.Terms {
			vm := sf.vars[t.Var]
			b -= t.Coef * vm.offset
			for _, cr := range vm.cols {
				row[cr.col] += t.Coef * cr.coef
			}
		}
		switch c.Rel {
		case LE:
			row[slack] = 1
			slack++
		case GE:
			row[slack] = -1
			slack++
		}
		if b < 0 {
			floats.Scale(-1, row)
			b = -b
		}
		rows = append(rows, row)
		rhs = append(rhs, b)
	}

	cost := make([]float64, sf.ncols)
	for _, t := range m.obj.Terms {
		for _, cr := range sf.vars[t.Var].cols {
			cost[cr.col] += sf.costSign * t.Coef * cr.coef
		}
	}

	// Columns absent from every row rest at the bound their cost prefers.
	for j := 0; j < sf.ncols; j++ {
		used := false
		for _, row := range rows {
			if row[j] != 0 {
				used = true
				break
			}
		}
		switch {
		case used:
			sf.keep = append(sf.keep, j)
		case cost[j] < 0 && math.IsInf(upper[j], 1):
			return nil, errUnbounded
		case cost[j] < 0:
			sf.parked[j] = upper[j]
		}
	}

	kept, err := independentRows(rows, rhs)
	if err != nil {
		return nil, err
	}

	sf.c = make([]float64, len(sf.keep))
	sf.upper = make([]float64, len(sf.keep))
	for k, j := range sf.keep {
		sf.c[k] = cost[j]
		sf.upper[k] = upper[j]
	}
	sf.b = make([]float64, len(kept))
	if len(kept) > 0 && len(sf.keep) > 0 {
		sf.a = mat.NewDense(len(kept), len(sf.keep), nil)
		for r, i := range kept {
			sf.b[r] = rhs[i]
			for k, j := range sf.keep {
				sf.a.Set(r, k, rows[i][j])
			}
		}
	}
	return sf, nil
}

// independentRows returns the indices of a maximal linearly independent
// subset of rows. A dependent row whose rhs disagrees with the combination of
// the others makes the system infeasible. Zero rows are a special case of
// dependence.
func independentRows(rows [][]float64, rhs []float64) ([]int, error) {
	type pivotRow struct {
		col int
		row []float64
		rhs float64
	}
	var basis []pivotRow
	var kept []int
	for i, orig := range rows {
		row := append([]float64(nil), orig...)
		b := rhs[i]
		scale := math.Max(floats.Norm(orig, math.Inf(1)), math.Abs(b))
		if scale == 0 {
			continue
		}
		for _, p := range basis {
			f := row[p.col]
			if f == 0 {
				continue
			}
			floats.AddScaled(row, -f, p.row)
			b -= f * p.rhs
		}
		col := -1
		if len(row) > 0 {
			col = floats.MaxIdx(absCopy(row))
		}
		if col < 0 || math.Abs(row[col]) <= depTol*math.Max(scale, 1) {
			if math.Abs(b) > depTol*math.Max(scale, 1)*10 {
				return nil, errInfeasible
			}
			continue
		}
		inv := 1 / row[col]
		floats.Scale(inv, row)
		basis = append(basis, pivotRow{col: col, row: row, rhs: b * inv})
		kept = append(kept, i)
	}
	return kept, nil
}

func absCopy(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Abs(x)
	}
	return out
}

// values maps a reduced solution back to model variables.
func (sf *standardForm) values(y []float64) []float64 {
	full := make([]float64, sf.ncols)
	for j, v := range sf.parked {
		full[j] = v
	}
	for k, j := range sf.keep {
		if k < len(y) {
			full[j] = y[k]
		}
	}
	out := make([]float64, len(sf.vars))
	for i, vm := range sf.vars {
		x := vm.offset
		for _, cr := range vm.cols {
			x += cr.coef * full[cr.col]
		}
		out[i] = x
	}
	return out
}
