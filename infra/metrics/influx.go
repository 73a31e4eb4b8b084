package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/iesdispatch/core/metrics"
	"github.com/kilianp07/iesdispatch/infra/logger"
)

// InfluxSink writes run summaries, window states and dispatched schedules to
// an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordRun writes one dispatch_run point.
func (s *InfluxSink) RecordRun(rec coremetrics.RunRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("dispatch_run").
		AddTag("run_id", rec.RunID).
		AddTag("case", rec.Case).
		AddTag("status", rec.Status)
	tags := rec.Labels.Tags()
	for _, k := range labelTags {
		if v := tags[k]; v != "" && v != "0" {
			p = p.AddTag(k, v)
		}
	}
	p = p.AddField("objective", round3(rec.Objective)).
		AddField("windows", len(rec.Windows)).
		AddField("duration_ms", round3(float64(rec.Finished.Sub(rec.Started))/float64(time.Millisecond))).
		SetTime(rec.Finished)
	if rec.Error != "" {
		p = p.AddField("error", rec.Error)
	}
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordWindowState writes a dispatch_window_state point.
func (s *InfluxSink) RecordWindowState(ev coremetrics.WindowStateEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("dispatch_window_state").
		AddTag("case", ev.Case).
		AddTag("state", ev.State).
		AddTag("window_start", strconv.Itoa(ev.Start))
	if ev.RunID != "" {
		p = p.AddTag("run_id", ev.RunID)
	}
	p = p.AddField("length", ev.Length).
		AddField("objective", round3(ev.Objective)).
		SetTime(ev.Time)
	if ev.Error != "" {
		p = p.AddField("error", ev.Error)
	}
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordSchedule writes one dispatch_schedule point per Activity Matrix value.
// Entries without a timestamp are skipped.
func (s *InfluxSink) RecordSchedule(sc coremetrics.Schedule) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	points := make([]*write.Point, 0, len(sc.Entries))
	for _, e := range sc.Entries {
		if e.Time.IsZero() {
			continue
		}
		points = append(points, write.NewPointWithMeasurement("dispatch_schedule").
			AddTag("run_id", sc.RunID).
			AddTag("case", sc.Case).
			AddTag("component", e.Component).
			AddTag("resource", string(e.Resource)).
			AddTag("tracker", string(e.Tracker)).
			AddField("value", round3(e.Value)).
			SetTime(e.Time))
	}
	if len(points) == 0 {
		return nil
	}
	return s.writeAPI.WritePoint(ctx, points...)
}

var labelTags = []string{"state", "strategy", "price_structure", "year"}

// Close releases the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
