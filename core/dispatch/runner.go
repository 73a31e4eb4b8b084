package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/iesdispatch/core/dispatch/logging"
	"github.com/kilianp07/iesdispatch/core/events"
	"github.com/kilianp07/iesdispatch/core/ledger"
	"github.com/kilianp07/iesdispatch/core/logger"
	"github.com/kilianp07/iesdispatch/core/metrics"
	"github.com/kilianp07/iesdispatch/core/model"
	"github.com/kilianp07/iesdispatch/core/monitoring"
	"github.com/kilianp07/iesdispatch/core/storage"
)

// Runner dispatches a whole case horizon window by window, carrying storage
// levels from one window into the next.
type Runner struct {
	engine *Engine
	store  logging.LogStore
	sink   metrics.MetricsSink
	window int
	log    logger.Logger
	newID  func() string
	now    func() time.Time
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogStore persists a record of every run.
func WithLogStore(s logging.LogStore) RunnerOption { return func(r *Runner) { r.store = s } }

// WithMetricsSink forwards run records, and schedules when supported, to s.
func WithMetricsSink(s metrics.MetricsSink) RunnerOption { return func(r *Runner) { r.sink = s } }

// WithWindowLength overrides the engine window length.
func WithWindowLength(n int) RunnerOption { return func(r *Runner) { r.window = n } }

// WithRunLogger sets the runner logger.
func WithRunLogger(l logger.Logger) RunnerOption { return func(r *Runner) { r.log = logger.OrNop(l) } }

// NewRunner returns a runner driving engine.
func NewRunner(engine *Engine, opts ...RunnerOption) *Runner {
	r := &Runner{
		engine: engine,
		sink:   metrics.NopSink{},
		window: engine.cfg.WindowLength,
		log:    engine.log,
		newID:  uuid.NewString,
		now:    time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Windows splits a horizon into consecutive windows of at most length
// steps. A non-positive length yields one window.
func Windows(horizon, length int) []model.Window {
	if horizon <= 0 {
		return nil
	}
	if length <= 0 || length > horizon {
		length = horizon
	}
	var out []model.Window
	for start := 0; start < horizon; start += length {
		n := length
		if start+n > horizon {
			n = horizon - start
		}
		out = append(out, model.Window{Start: start, Length: n})
	}
	return out
}

// Run dispatches every window of c in order into a fresh Activity Matrix. The
// first failing window aborts the run; windows solved before it stay in the
// returned matrix.
func (r *Runner) Run(ctx context.Context, c *model.Case) (*ledger.Activity, metrics.RunRecord, error) {
	if c == nil {
		return nil, metrics.RunRecord{}, invalidf("nil case")
	}
	rec := metrics.RunRecord{
		RunID:   r.newID(),
		Case:    c.Name,
		Labels:  c.Labels,
		Started: r.now(),
	}
	log := r.log.With("run_id", rec.RunID).With("case", c.Name)
	act := ledger.New(c.Horizon)
	windows := Windows(c.Horizon, r.window)
	log.Infof("dispatching %d steps in %d windows", c.Horizon, len(windows))

	cur := c
	var runErr error
	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("run aborted before window %d: %w", w.Start, err)
			break
		}
		rep, err := r.engine.dispatch(ctx, rec.RunID, cur, w, act)
		rec.Windows = append(rec.Windows, rep.Result())
		if err != nil {
			runErr = err
			break
		}
		rec.Objective += rep.Objective
		if len(rep.EndLevels) > 0 {
			cur, err = withInitialLevels(c, rep.EndLevels)
			if err != nil {
				runErr = err
				break
			}
		}
	}
	rec.Finished = r.now()
	rec.Status = StatusOf(runErr)
	if runErr != nil {
		rec.Error = runErr.Error()
		log.Errorf("run failed: %v", runErr)
		if !errors.Is(runErr, context.Canceled) {
			monitoring.CaptureException(runErr, runTags(rec))
		}
	} else {
		log.Infof("run finished: objective %.6g", rec.Objective)
	}
	r.finish(ctx, log, rec, c, act, runErr == nil)
	r.engine.publish(events.RunEvent{
		RunID: rec.RunID, Case: c.Name, Windows: len(rec.Windows), Status: rec.Status,
		Objective: rec.Objective, Err: runErr, Time: rec.Finished,
	})
	return act, rec, runErr
}

// finish stores the record and forwards it to the sinks. Sink failures are
// logged, never returned.
func (r *Runner) finish(ctx context.Context, log logger.Logger, rec metrics.RunRecord, c *model.Case, act *ledger.Activity, ok bool) {
	if r.store != nil {
		if err := r.store.Append(ctx, rec); err != nil {
			log.Warnf("store run record: %v", err)
		}
	}
	if err := r.sink.RecordRun(rec); err != nil {
		log.Warnf("record run metrics: %v", err)
	}
	if !ok {
		return
	}
	if sr, isRec := r.sink.(metrics.ScheduleRecorder); isRec {
		if err := sr.RecordSchedule(ScheduleFromActivity(rec.RunID, c, act)); err != nil {
			log.Warnf("record schedule: %v", err)
		}
	}
}

// withInitialLevels returns a copy of c whose storage components start from
// levels. c itself is not modified.
func withInitialLevels(c *model.Case, levels map[string]float64) (*model.Case, error) {
	next := *c
	next.Components = make([]model.Component, len(c.Components))
	copy(next.Components, c.Components)
	for i, comp := range next.Components {
		lvl, ok := levels[comp.Name]
		if !ok || comp.Kind != model.KindStorage {
			continue
		}
		spec := *comp.Storage
		dev, err := storage.NewDevice(spec.Capacity, spec.InitialLevel, spec.EffectiveSqrtRTE())
		if err != nil {
			return nil, invalidWrap(err, "component %s", comp.Name)
		}
		spec.InitialLevel = dev.WithLevel(lvl).InitialLevel
		next.Components[i].Storage = &spec
	}
	return &next, nil
}

func runTags(rec metrics.RunRecord) map[string]string {
	tags := rec.Labels.Tags()
	tags["case"] = rec.Case
	tags["run_id"] = rec.RunID
	tags["status"] = rec.Status
	return tags
}
