package dispatch

import "fmt"

// State is a step of the per-window solve state machine.
type State int

const (
	StateBuilt State = iota
	StateSolving
	StateSolvedOptimal
	StateSolvedInfeasible
	StateSolverError
)

func (s State) String() string {
	switch s {
	case StateBuilt:
		return "built"
	case StateSolving:
		return "solving"
	case StateSolvedOptimal:
		return "solved_optimal"
	case StateSolvedInfeasible:
		return "solved_infeasible"
	case StateSolverError:
		return "solver_error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateSolvedOptimal || s == StateSolvedInfeasible || s == StateSolverError
}

var transitions = map[State][]State{
	StateBuilt:   {StateSolving},
	StateSolving: {StateSolvedOptimal, StateSolvedInfeasible, StateSolverError},
}

// machine tracks the state of one window and reports every transition.
type machine struct {
	state  State
	notify func(State)
}

func newMachine(notify func(State)) *machine {
	m := &machine{state: StateBuilt, notify: notify}
	if notify != nil {
		notify(StateBuilt)
	}
	return m
}

func (m *machine) advance(next State) error {
	for _, s := range transitions[m.state] {
		if s == next {
			m.state = next
			if m.notify != nil {
				m.notify(next)
			}
			return nil
		}
	}
	return fmt.Errorf("invalid transition %s -> %s", m.state, next)
}
