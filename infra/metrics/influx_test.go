package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/iesdispatch/core/metrics"
	"github.com/kilianp07/iesdispatch/core/model"
)

type bodyRecorder struct {
	mu     sync.Mutex
	bodies []string
}

func (b *bodyRecorder) server(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.bodies = append(b.bodies, strings.TrimSpace(string(data)))
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func lineProtocol(p *write.Point) string {
	return strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
}

func TestInfluxSink_RecordRun(t *testing.T) {
	rec := &bodyRecorder{}
	srv := rec.server(t)

	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	now := time.Now()
	run := coremetrics.RunRecord{
		RunID:     "r1",
		Case:      "tx",
		Labels:    model.CaseLabels{State: "TX", Strategy: "base", PriceStructure: "lmp", Year: 2030},
		Status:    "optimal",
		Objective: 12.3456,
		Started:   now.Add(-1500 * time.Millisecond),
		Finished:  now,
		Windows:   []coremetrics.WindowResult{{Status: "optimal"}},
	}
	if err := sink.RecordRun(run); err != nil {
		t.Fatalf("record error: %v", err)
	}
	p := write.NewPointWithMeasurement("dispatch_run").
		AddTag("run_id", "r1").
		AddTag("case", "tx").
		AddTag("status", "optimal").
		AddTag("state", "TX").
		AddTag("strategy", "base").
		AddTag("price_structure", "lmp").
		AddTag("year", "2030").
		AddField("objective", 12.346).
		AddField("windows", 1).
		AddField("duration_ms", 1500.0).
		SetTime(now)
	if len(rec.bodies) != 1 || rec.bodies[0] != lineProtocol(p) {
		t.Errorf("unexpected bodies: %#v", rec.bodies)
	}
}

func TestInfluxSink_RecordWindowState(t *testing.T) {
	rec := &bodyRecorder{}
	srv := rec.server(t)

	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	now := time.Now()
	ev := coremetrics.WindowStateEvent{Case: "tx", Start: 24, Length: 24, State: "solver_error", Error: "singular", Time: now}
	if err := sink.RecordWindowState(ev); err != nil {
		t.Fatalf("record: %v", err)
	}
	p := write.NewPointWithMeasurement("dispatch_window_state").
		AddTag("case", "tx").
		AddTag("state", "solver_error").
		AddTag("window_start", "24").
		AddField("length", 24).
		AddField("objective", 0.0).
		AddField("error", "singular").
		SetTime(now)
	if len(rec.bodies) != 1 || rec.bodies[0] != lineProtocol(p) {
		t.Errorf("bodies: %#v", rec.bodies)
	}
}

func TestInfluxSink_RecordSchedule(t *testing.T) {
	rec := &bodyRecorder{}
	srv := rec.server(t)

	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	start := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	sc := coremetrics.Schedule{
		RunID: "r1",
		Case:  "tx",
		Dt:    1,
		Entries: []coremetrics.ScheduleEntry{
			{Component: "pv", Resource: model.Electricity, Tracker: model.TrackerProduction, Step: 0, Time: start, Value: 1.23456},
			{Component: "pv", Resource: model.Electricity, Tracker: model.TrackerProduction, Step: 1, Value: 2},
		},
	}
	if err := sink.RecordSchedule(sc); err != nil {
		t.Fatalf("record: %v", err)
	}
	p := write.NewPointWithMeasurement("dispatch_schedule").
		AddTag("run_id", "r1").
		AddTag("case", "tx").
		AddTag("component", "pv").
		AddTag("resource", "electricity").
		AddTag("tracker", "production").
		AddField("value", 1.235).
		SetTime(start)
	if len(rec.bodies) != 1 || rec.bodies[0] != lineProtocol(p) {
		t.Errorf("bodies: %#v", rec.bodies)
	}

	if err := sink.RecordSchedule(coremetrics.Schedule{}); err != nil {
		t.Fatalf("empty schedule: %v", err)
	}
	if len(rec.bodies) != 1 {
		t.Fatalf("empty schedule must not write")
	}
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(srv.URL+"/api/v2/write", "tok", "org", "bucket")
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	if !called {
		t.Fatalf("health endpoint not called")
	}
}
