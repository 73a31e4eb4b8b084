package dispatch

import (
	"time"

	"github.com/kilianp07/iesdispatch/core/ledger"
	"github.com/kilianp07/iesdispatch/core/metrics"
	"github.com/kilianp07/iesdispatch/core/model"
)

// ScheduleFromActivity flattens act into a schedule. When the case has a
// start time every entry is stamped with start + step*dt.
func ScheduleFromActivity(runID string, c *model.Case, act *ledger.Activity) metrics.Schedule {
	s := metrics.Schedule{RunID: runID, Case: c.Name, Dt: c.Dt}
	step := time.Duration(c.Dt * float64(time.Hour))
	for _, k := range act.Keys() {
		v, _ := act.Vector(k.Component, k.Resource, k.Tracker)
		for t, x := range v {
			e := metrics.ScheduleEntry{
				Component: k.Component,
				Resource:  k.Resource,
				Tracker:   k.Tracker,
				Step:      t,
				Value:     x,
			}
			if !c.Start.IsZero() {
				e.Time = c.Start.Add(time.Duration(t) * step)
			}
			s.Entries = append(s.Entries, e)
		}
	}
	return s
}
