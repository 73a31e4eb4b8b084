// Package logging persists dispatch run records.
package logging

import (
	"context"
	"time"

	"github.com/kilianp07/iesdispatch/core/metrics"
)

// LogRecord is one persisted dispatch run.
type LogRecord = metrics.RunRecord

// LogQuery defines filters for retrieving records. Zero fields match
// everything.
type LogQuery struct {
	Start  time.Time
	End    time.Time
	Case   string
	Status string
	RunID  string
}

// Match reports whether r satisfies q.
func (q LogQuery) Match(r LogRecord) bool {
	if !q.Start.IsZero() && r.Started.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Started.After(q.End) {
		return false
	}
	if q.Case != "" && r.Case != q.Case {
		return false
	}
	if q.Status != "" && r.Status != q.Status {
		return false
	}
	return q.RunID == "" || r.RunID == q.RunID
}

// LogStore persists LogRecords and supports querying.
type LogStore interface {
	Append(ctx context.Context, rec LogRecord) error
	Query(ctx context.Context, q LogQuery) ([]LogRecord, error)
	Close() error
}
