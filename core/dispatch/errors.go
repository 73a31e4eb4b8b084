package dispatch

import (
	"errors"
	"fmt"

	"github.com/kilianp07/iesdispatch/core/lp"
	"github.com/kilianp07/iesdispatch/core/model"
)

var (
	// ErrInvalidCase marks configuration errors detected before the model is
	// built. They are never retried.
	ErrInvalidCase = errors.New("invalid case")
	// ErrInfeasible indicates the model has no feasible dispatch.
	ErrInfeasible = errors.New("dispatch infeasible")
	// ErrSolver indicates the solver failed to produce a solution.
	ErrSolver = errors.New("solver error")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidCase, fmt.Sprintf(format, args...))
}

// invalidWrap keeps err reachable through errors.Is next to ErrInvalidCase.
func invalidWrap(err error, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %w", ErrInvalidCase, fmt.Sprintf(format, args...), err)
}

// SolveError is the fatal error returned when a window does not solve to
// optimality. Dump holds the full variable and constraint listing.
type SolveError struct {
	Case   string
	Window model.Window
	Status lp.Status
	State  State
	Dump   string
	Err    error
}

func (e *SolveError) Error() string {
	msg := fmt.Sprintf("case %s window [%d,%d): %s", e.Case, e.Window.Start, e.Window.End(), e.State)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the sentinel for the outcome and the underlying cause.
func (e *SolveError) Unwrap() []error {
	sentinel := ErrSolver
	if e.State == StateSolvedInfeasible {
		sentinel = ErrInfeasible
	}
	if e.Err == nil {
		return []error{sentinel}
	}
	return []error{sentinel, e.Err}
}

// StatusOf classifies err for run records and metrics labels.
func StatusOf(err error) string {
	switch {
	case err == nil:
		return "optimal"
	case errors.Is(err, ErrInvalidCase):
		return "invalid"
	case errors.Is(err, ErrInfeasible):
		return "infeasible"
	default:
		return "error"
	}
}
