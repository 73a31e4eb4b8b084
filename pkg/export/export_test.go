package export

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/kilianp07/iesdispatch/core/metrics"
	"github.com/kilianp07/iesdispatch/core/model"
)

func sample() metrics.Schedule {
	start := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	return metrics.Schedule{
		RunID: "r1",
		Case:  "texas",
		Dt:    1,
		Entries: []metrics.ScheduleEntry{
			{Component: "pv", Resource: model.Electricity, Tracker: model.TrackerProduction, Step: 0, Time: start, Value: 10},
			{Component: "bat", Resource: model.Electricity, Tracker: model.TrackerLevel, Step: 1, Value: 2.5},
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sample()); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	want := "component,resource,tracker,step,time,value\n" +
		"pv,electricity,production,0,2030-01-01T00:00:00Z,10\n" +
		"bat,electricity,level,1,,2.5\n"
	if buf.String() != want {
		t.Fatalf("unexpected csv:\n%s", buf.String())
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, sample()); err != nil {
		t.Fatalf("write json: %v", err)
	}
	var got metrics.Schedule
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.RunID != "r1" || len(got.Entries) != 2 || got.Entries[1].Value != 2.5 {
		t.Fatalf("unexpected schedule %+v", got)
	}
}
