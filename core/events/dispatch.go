package events

import (
	"time"

	"github.com/kilianp07/iesdispatch/core/model"
)

// DispatchEvent is emitted on every state transition of a window solve.
// State is one of "built", "solving", "solved_optimal", "solved_infeasible"
// or "solver_error".
type DispatchEvent struct {
	RunID     string
	Case      string
	Window    model.Window
	State     string
	Objective float64
	Err       error
	Time      time.Time
}

// RunEvent is emitted once a run over the whole horizon ends.
type RunEvent struct {
	RunID     string
	Case      string
	Windows   int
	Status    string
	Objective float64
	Err       error
	Time      time.Time
}
