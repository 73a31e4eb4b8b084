package dispatch

import "testing"

func TestMachineTransitions(t *testing.T) {
	var seen []State
	m := newMachine(func(s State) { seen = append(seen, s) })
	if err := m.advance(StateSolvedOptimal); err == nil {
		t.Fatal("expected built -> solved_optimal to be rejected")
	}
	if err := m.advance(StateSolving); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := m.advance(StateSolverError); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := m.advance(StateSolving); err == nil {
		t.Fatal("terminal state must not transition")
	}
	want := []State{StateBuilt, StateSolving, StateSolverError}
	if len(seen) != len(want) {
		t.Fatalf("notified %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("notified %v, want %v", seen, want)
		}
	}
}

func TestStateStrings(t *testing.T) {
	cases := map[State]string{
		StateBuilt:            "built",
		StateSolving:          "solving",
		StateSolvedOptimal:    "solved_optimal",
		StateSolvedInfeasible: "solved_infeasible",
		StateSolverError:      "solver_error",
		State(42):             "state(42)",
	}
	for s, want := range cases {
		if s.String() != want {
			t.Errorf("%d: got %q want %q", int(s), s.String(), want)
		}
	}
	if StateSolving.Terminal() || !StateSolvedInfeasible.Terminal() {
		t.Fatal("unexpected terminal classification")
	}
}
