package metrics

import (
	"context"

	"github.com/kilianp07/iesdispatch/core/events"
	coremetrics "github.com/kilianp07/iesdispatch/core/metrics"
	"github.com/kilianp07/iesdispatch/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and forwards window state
// transitions to sinks implementing WindowStateRecorder. It stops when the
// context is canceled.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink) {
	if bus == nil || sink == nil {
		return
	}
	rec, ok := sink.(coremetrics.WindowStateRecorder)
	if !ok {
		return
	}
	sub, cancel := eventbus.SubscribeTo[events.DispatchEvent](bus)
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-sub:
				if !ok {
					return
				}
				_ = rec.RecordWindowState(WindowState(e))
			}
		}
	}()
}

// WindowState converts a dispatch event into its sink representation.
func WindowState(e events.DispatchEvent) coremetrics.WindowStateEvent {
	ev := coremetrics.WindowStateEvent{
		RunID:     e.RunID,
		Case:      e.Case,
		Start:     e.Window.Start,
		Length:    e.Window.Length,
		State:     e.State,
		Objective: e.Objective,
		Time:      e.Time,
	}
	if e.Err != nil {
		ev.Error = e.Err.Error()
	}
	return ev
}
