package metrics

import "errors"

// MultiSink fans out records to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordRun forwards the record to every sink and joins their errors.
func (m *MultiSink) RecordRun(rec RunRecord) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.RecordRun(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordSchedule forwards the schedule to sinks that support it.
func (m *MultiSink) RecordSchedule(s Schedule) error {
	var errs []error
	for _, sink := range m.Sinks {
		if rec, ok := sink.(ScheduleRecorder); ok {
			if err := rec.RecordSchedule(s); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// RecordWindowState forwards the event to sinks that support it.
func (m *MultiSink) RecordWindowState(ev WindowStateEvent) error {
	var errs []error
	for _, sink := range m.Sinks {
		if rec, ok := sink.(WindowStateRecorder); ok {
			if err := rec.RecordWindowState(ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
