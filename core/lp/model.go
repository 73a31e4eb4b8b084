// Package lp is a small algebraic modeling layer for continuous linear
// programs and the solver backends that evaluate them.
package lp

import (
	"fmt"
	"math"
)

// Sense is the optimization direction of the objective.
type Sense int

const (
	Maximize Sense = iota
	Minimize
)

func (s Sense) String() string {
	if s == Minimize {
		return "minimize"
	}
	return "maximize"
}

// ParseSense maps "maximize"/"max" and "minimize"/"min" to a Sense.
func ParseSense(s string) (Sense, error) {
	switch s {
	case "", "max", "maximize":
		return Maximize, nil
	case "min", "minimize":
		return Minimize, nil
	}
	return Maximize, fmt.Errorf("unknown objective sense %q", s)
}

// Relation is the comparison of a constraint.
type Relation int

const (
	LE Relation = iota
	GE
	EQ
)

func (r Relation) String() string {
	switch r {
	case LE:
		return "<="
	case GE:
		return ">="
	default:
		return "=="
	}
}

// Var is a handle to a model variable.
type Var int

// Term is coef*var.
type Term struct {
	Var  Var
	Coef float64
}

// Expr is an affine expression. Repeated variables are summed.
type Expr struct {
	Terms    []Term
	Constant float64
}

// Plus appends coef*v and returns the expression for chaining.
func (e *Expr) Plus(v Var, coef float64) *Expr {
	e.Terms = append(e.Terms, Term{Var: v, Coef: coef})
	return e
}

// PlusConst adds c to the constant part.
func (e *Expr) PlusConst(c float64) *Expr {
	e.Constant += c
	return e
}

// Eval returns the value of the expression for the given variable values.
func (e Expr) Eval(values []float64) float64 {
	sum := e.Constant
	for _, t := range e.Terms {
		sum += t.Coef * values[t.Var]
	}
	return sum
}

// Constraint is Expr Rel RHS.
type Constraint struct {
	Name string
	Expr Expr
	Rel  Relation
	RHS  float64
}

// Violation returns how far values are from satisfying the constraint.
func (c Constraint) Violation(values []float64) float64 {
	lhs := c.Expr.Eval(values)
	switch c.Rel {
	case LE:
		return math.Max(0, lhs-c.RHS)
	case GE:
		return math.Max(0, c.RHS-lhs)
	default:
		return math.Abs(lhs - c.RHS)
	}
}

type variable struct {
	name   string
	lb, ub float64
}

// Model is a continuous linear program. It is built, solved and dropped per
// dispatch call and is not safe for concurrent mutation.
type Model struct {
	Name string

	vars  []variable
	index map[string]Var
	cons  []Constraint
	obj   Expr
	sense Sense
}

// NewModel returns an empty model.
func NewModel(name string) *Model {
	return &Model{Name: name, index: make(map[string]Var)}
}

// AddVar declares a variable with bounds lb <= x <= ub. Infinite bounds are
// allowed.
func (m *Model) AddVar(name string, lb, ub float64) (Var, error) {
	if name == "" {
		return -1, fmt.Errorf("variable name is required")
	}
	if _, dup := m.index[name]; dup {
		return -1, fmt.Errorf("duplicate variable %s", name)
	}
	if math.IsNaN(lb) || math.IsNaN(ub) || math.IsInf(lb, 1) || math.IsInf(ub, -1) {
		return -1, fmt.Errorf("variable %s: invalid bounds [%v, %v]", name, lb, ub)
	}
	if lb > ub {
		return -1, fmt.Errorf("variable %s: lower bound %v above upper bound %v", name, lb, ub)
	}
	v := Var(len(m.vars))
	m.vars = append(m.vars, variable{name: name, lb: lb, ub: ub})
	m.index[name] = v
	return v, nil
}

// Lookup returns the variable registered under name.
func (m *Model) Lookup(name string) (Var, bool) {
	v, ok := m.index[name]
	return v, ok
}

// VarName returns the name of v.
func (m *Model) VarName(v Var) string { return m.vars[v].name }

// Bounds returns the bounds of v.
func (m *Model) Bounds(v Var) (lb, ub float64) { return m.vars[v].lb, m.vars[v].ub }

// NumVars returns the number of variables.
func (m *Model) NumVars() int { return len(m.vars) }

// NumConstraints returns the number of constraints.
func (m *Model) NumConstraints() int { return len(m.cons) }

// Constraints returns the constraints in insertion order.
func (m *Model) Constraints() []Constraint { return m.cons }

func (m *Model) checkExpr(e Expr) error {
	if math.IsNaN(e.Constant) || math.IsInf(e.Constant, 0) {
		return fmt.Errorf("constant %v is not finite", e.Constant)
	}
	for _, t := range e.Terms {
		if t.Var < 0 || int(t.Var) >= len(m.vars) {
			return fmt.Errorf("unknown variable %d", t.Var)
		}
		if math.IsNaN(t.Coef) || math.IsInf(t.Coef, 0) {
			return fmt.Errorf("coefficient %v of %s is not finite", t.Coef, m.vars[t.Var].name)
		}
	}
	return nil
}

// AddConstraint appends expr rel rhs.
func (m *Model) AddConstraint(name string, expr Expr, rel Relation, rhs float64) error {
	if err := m.checkExpr(expr); err != nil {
		return fmt.Errorf("constraint %s: %w", name, err)
	}
	if math.IsNaN(rhs) || math.IsInf(rhs, 0) {
		return fmt.Errorf("constraint %s: rhs %v is not finite", name, rhs)
	}
	m.cons = append(m.cons, Constraint{Name: name, Expr: expr, Rel: rel, RHS: rhs})
	return nil
}

// SetObjective sets the objective expression and direction.
func (m *Model) SetObjective(expr Expr, sense Sense) error {
	if err := m.checkExpr(expr); err != nil {
		return fmt.Errorf("objective: %w", err)
	}
	m.obj, m.sense = expr, sense
	return nil
}

// Objective returns the objective and its direction.
func (m *Model) Objective() (Expr, Sense) { return m.obj, m.sense }

// MaxViolation returns the largest bound or constraint violation of values.
func (m *Model) MaxViolation(values []float64) float64 {
	worst := 0.0
	for i, v := range m.vars {
		worst = math.Max(worst, math.Max(v.lb-values[i], values[i]-v.ub))
	}
	for _, c := range m.cons {
		worst = math.Max(worst, c.Violation(values))
	}
	return worst
}
