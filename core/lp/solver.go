package lp

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// Status is the outcome of a solve.
type Status int

const (
	Optimal Status = iota
	Infeasible
	Error
)

func (s Status) String() string {
	switch s {
	case Optimal:
		return "optimal"
	case Infeasible:
		return "infeasible"
	default:
		return "error"
	}
}

// Result carries the outcome of a solve. Values is indexed by Var and only
// set when Status is Optimal.
type Result struct {
	Status    Status
	Objective float64
	Values    []float64
	Duration  time.Duration
	// Reason describes a non-optimal outcome.
	Reason string
}

// Value returns the solved value of v.
func (r Result) Value(v Var) float64 { return r.Values[v] }

// Solver evaluates a model. Implementations return a nil error with
// Status Infeasible for infeasible models and a non-nil error whenever
// Status is Error.
type Solver interface {
	Solve(ctx context.Context, m *Model) (Result, error)
}

// DefaultTolerance is the simplex pivot tolerance.
const DefaultTolerance = 1e-7

// DefaultTimeout bounds a single solve.
const DefaultTimeout = 30 * time.Second

// solveStandard points to the function used to solve the standard form. It
// can be overridden in tests to simulate solver failures.
var solveStandard = runTableau

var running atomic.Int64

// Running returns the number of solves whose goroutine has not returned yet,
// including solves already abandoned by a timeout.
func Running() int64 { return running.Load() }

// SimplexSolver solves models with a dense bounded-variable simplex. Phase
// one starts from an explicit artificial basis, so feasibility never depends
// on a heuristic basis search.
type SimplexSolver struct {
	Tol     float64
	Timeout time.Duration
}

// NewSimplexSolver returns a solver with the given tolerance and timeout,
// falling back to defaults for non-positive values.
func NewSimplexSolver(tol float64, timeout time.Duration) *SimplexSolver {
	if tol <= 0 {
		tol = DefaultTolerance
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &SimplexSolver{Tol: tol, Timeout: timeout}
}

// Solve runs the simplex in a separate goroutine bounded by the solver
// timeout and ctx. The simplex checks ctx between pivots, so a timed out
// solve stops shortly after Solve returns.
func (s *SimplexSolver) Solve(ctx context.Context, m *Model) (Result, error) {
	if m == nil {
		return Result{Status: Error}, errors.New("nil model")
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	running.Add(1)
	go func() {
		defer running.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{Result{Status: Error, Reason: fmt.Sprint(r)}, fmt.Errorf("simplex panic: %v", r)}
			}
		}()
		res, err := s.solve(ctx, m)
		done <- outcome{res, err}
	}()
	select {
	case o := <-done:
		o.res.Duration = time.Since(start)
		return o.res, o.err
	case <-ctx.Done():
		return Result{Status: Error, Reason: ctx.Err().Error(), Duration: time.Since(start)},
			fmt.Errorf("solve %s: %w", m.Name, ctx.Err())
	}
}

func (s *SimplexSolver) solve(ctx context.Context, m *Model) (Result, error) {
	tol := s.Tol
	if tol <= 0 {
		tol = DefaultTolerance
	}
	sf, err := toStandard(m)
	var y []float64
	if err == nil && sf.a != nil {
		y, err = solveStandard(ctx, sf, tol)
	}
	switch {
	case errors.Is(err, errInfeasible):
		return Result{Status: Infeasible, Reason: "no point satisfies every constraint"}, nil
	case errors.Is(err, errUnbounded):
		return Result{Status: Error, Reason: "unbounded"}, fmt.Errorf("model %s is unbounded", m.Name)
	case err != nil:
		return Result{Status: Error, Reason: err.Error()}, fmt.Errorf("simplex %s: %w", m.Name, err)
	}
	values := sf.values(y)
	obj, _ := m.Objective()
	return Result{Status: Optimal, Objective: obj.Eval(values), Values: values}, nil
}
