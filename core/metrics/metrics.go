package metrics

import (
	"time"

	"github.com/kilianp07/iesdispatch/core/model"
)

// WindowResult summarizes one optimized window of a run.
type WindowResult struct {
	Start        int           `json:"start"`
	Length       int           `json:"length"`
	Status       string        `json:"status"`
	Objective    float64       `json:"objective"`
	Duration     time.Duration `json:"duration"`
	Variables    int           `json:"variables"`
	Constraints  int           `json:"constraints"`
	MaxImbalance float64       `json:"max_imbalance"`
}

// RunRecord captures one dispatch run over a case horizon.
type RunRecord struct {
	RunID     string           `json:"run_id"`
	Case      string           `json:"case"`
	Labels    model.CaseLabels `json:"labels"`
	Started   time.Time        `json:"started"`
	Finished  time.Time        `json:"finished"`
	Status    string           `json:"status"`
	Objective float64          `json:"objective"`
	Windows   []WindowResult   `json:"windows"`
	Error     string           `json:"error,omitempty"`
}

// ScheduleEntry is one value of the dispatched Activity Matrix.
type ScheduleEntry struct {
	Component string         `json:"component"`
	Resource  model.Resource `json:"resource"`
	Tracker   model.Tracker  `json:"tracker"`
	Step      int            `json:"step"`
	Time      time.Time      `json:"time"`
	Value     float64        `json:"value"`
}

// Schedule is the dispatched Activity Matrix of a run, flattened.
type Schedule struct {
	RunID   string          `json:"run_id"`
	Case    string          `json:"case"`
	Dt      float64         `json:"dt"`
	Entries []ScheduleEntry `json:"entries"`
}

// MetricsSink records dispatch runs for observability purposes.
type MetricsSink interface {
	RecordRun(rec RunRecord) error
}

// ScheduleRecorder is implemented by sinks able to publish dispatched
// schedules.
type ScheduleRecorder interface {
	RecordSchedule(s Schedule) error
}

// NopSink implements MetricsSink with no-op methods.
type NopSink struct{}

func (NopSink) RecordRun(RunRecord) error     { return nil }
func (NopSink) RecordSchedule(Schedule) error { return nil }

// WindowStateEvent is one state transition of a window solve.
type WindowStateEvent struct {
	RunID     string    `json:"run_id"`
	Case      string    `json:"case"`
	Start     int       `json:"start"`
	Length    int       `json:"length"`
	State     string    `json:"state"`
	Objective float64   `json:"objective"`
	Error     string    `json:"error,omitempty"`
	Time      time.Time `json:"time"`
}

// WindowStateRecorder is implemented by sinks tracking solve progress.
type WindowStateRecorder interface {
	RecordWindowState(ev WindowStateEvent) error
}
