package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kilianp07/iesdispatch/core/events"
	"github.com/kilianp07/iesdispatch/core/ledger"
	"github.com/kilianp07/iesdispatch/core/logger"
	"github.com/kilianp07/iesdispatch/core/lp"
	"github.com/kilianp07/iesdispatch/core/metrics"
	"github.com/kilianp07/iesdispatch/core/model"
	"github.com/kilianp07/iesdispatch/internal/eventbus"
)

// Report summarizes a successful window dispatch.
type Report struct {
	Case        string
	Window      model.Window
	Status      lp.Status
	State       State
	Objective   float64
	Duration    time.Duration
	Variables   int
	Constraints int
	// EndLevels holds the storage levels at the last step of the window.
	EndLevels map[string]float64
	// MaxImbalance is the largest absolute resource balance in the Activity
	// Matrix over the window after the write.
	MaxImbalance float64
}

// Result converts the report into the run record representation.
func (r Report) Result() metrics.WindowResult {
	status := r.Status.String()
	if r.State == StateBuilt {
		status = "invalid"
	}
	return metrics.WindowResult{
		Start:        r.Window.Start,
		Length:       r.Window.Length,
		Status:       status,
		Objective:    r.Objective,
		Duration:     r.Duration,
		Variables:    r.Variables,
		Constraints:  r.Constraints,
		MaxImbalance: r.MaxImbalance,
	}
}

// Engine builds and solves one dispatch model per window. It holds no per
// call state and can serve concurrent calls on distinct Activity Matrices.
type Engine struct {
	solver lp.Solver
	stacks PriceStacks
	log    logger.Logger
	bus    eventbus.EventBus
	cfg    Config
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithPriceStacks sets the dataset used by stack priced components.
func WithPriceStacks(s PriceStacks) Option { return func(e *Engine) { e.stacks = s } }

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option { return func(e *Engine) { e.log = logger.OrNop(l) } }

// WithEventBus publishes state transitions on bus.
func WithEventBus(bus eventbus.EventBus) Option { return func(e *Engine) { e.bus = bus } }

// WithConfig sets the dispatch settings. Defaults are applied to cfg.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		cfg.SetDefaults()
		e.cfg = cfg
	}
}

// NewEngine returns an engine solving with solver. A nil solver selects the
// bounded simplex backend with the configured tolerance and timeout.
func NewEngine(solver lp.Solver, opts ...Option) *Engine {
	e := &Engine{log: logger.NopLogger{}, now: time.Now}
	e.cfg.SetDefaults()
	for _, o := range opts {
		o(e)
	}
	if solver == nil {
		solver = lp.NewSimplexSolver(e.cfg.Tolerance, e.cfg.Timeout())
	}
	e.solver = solver
	return e
}

// Config returns the effective settings.
func (e *Engine) Config() Config { return e.cfg }

// Dispatch optimizes window w of case c and, only when the solve is optimal,
// writes every variable into act. Configuration problems return an error
// wrapping ErrInvalidCase before anything is built. A non-optimal solve
// returns a *SolveError and leaves act untouched.
func (e *Engine) Dispatch(ctx context.Context, c *model.Case, w model.Window, act *ledger.Activity) (Report, error) {
	return e.dispatch(ctx, "", c, w, act)
}

func (e *Engine) dispatch(ctx context.Context, runID string, c *model.Case, w model.Window, act *ledger.Activity) (Report, error) {
	rep := Report{Window: w, State: StateBuilt}
	p, err := e.prepare(c, w, act)
	if err != nil {
		e.log.Errorf("dispatch precondition failed: %v", err)
		return rep, err
	}
	rep.Case = c.Name
	log := e.log.With("case", c.Name).With("window", fmt.Sprintf("%d:%d", w.Start, w.End()))

	b, err := buildModel(p, e.cfg.sense())
	if err != nil {
		return rep, invalidWrap(err, "build model")
	}
	rep.Variables, rep.Constraints = b.m.NumVars(), b.m.NumConstraints()
	modelSize.WithLabelValues(c.Name, "variables").Set(float64(rep.Variables))
	modelSize.WithLabelValues(c.Name, "constraints").Set(float64(rep.Constraints))
	log.Debugw("model built", map[string]any{"variables": rep.Variables, "constraints": rep.Constraints})

	var objective float64
	var cause error
	sm := newMachine(func(s State) {
		rep.State = s
		e.publish(events.DispatchEvent{
			RunID: runID, Case: c.Name, Window: w, State: s.String(),
			Objective: objective, Err: cause, Time: e.now(),
		})
	})
	if err := sm.advance(StateSolving); err != nil {
		return rep, err
	}

	start := time.Now()
	res, serr := e.solver.Solve(ctx, b.m)
	rep.Duration = time.Since(start)
	rep.Status = res.Status
	if serr == nil && res.Status == lp.Optimal && len(res.Values) != b.m.NumVars() {
		serr = fmt.Errorf("solver returned %d values for %d variables", len(res.Values), b.m.NumVars())
	}
	if serr != nil && res.Status == lp.Optimal {
		rep.Status = lp.Error
	}
	solvesTotal.WithLabelValues(rep.Status.String()).Inc()
	solveDuration.WithLabelValues(rep.Status.String()).Observe(rep.Duration.Seconds())

	switch {
	case serr == nil && res.Status == lp.Optimal:
		objective = res.Objective
		if e.cfg.sense() == lp.Minimize {
			objective = -objective
		}
		rep.Objective = objective
		if err := sm.advance(StateSolvedOptimal); err != nil {
			return rep, err
		}
	case serr == nil && res.Status == lp.Infeasible:
		if res.Reason != "" {
			cause = errors.New(res.Reason)
		}
		_ = sm.advance(StateSolvedInfeasible)
		return rep, e.fail(log, b, rep, res, cause)
	default:
		if serr == nil {
			serr = fmt.Errorf("solver status %s: %s", res.Status, res.Reason)
		}
		if errors.Is(serr, context.DeadlineExceeded) {
			log.Warnf("solve timed out after %s, %d solves still winding down", rep.Duration, lp.Running())
		}
		cause = serr
		_ = sm.advance(StateSolverError)
		return rep, e.fail(log, b, rep, res, cause)
	}

	if err := b.write(act, res.Values); err != nil {
		return rep, fmt.Errorf("write activity: %w", err)
	}
	rep.EndLevels = b.endLevels(res.Values)
	rep.MaxImbalance = maxImbalance(act, p)
	objectiveValue.WithLabelValues(c.Name).Set(rep.Objective)
	balanceResidual.WithLabelValues(c.Name).Set(rep.MaxImbalance)
	if rep.MaxImbalance > e.cfg.BalanceTolerance {
		log.Warnf("resource imbalance %.3g exceeds tolerance %.3g", rep.MaxImbalance, e.cfg.BalanceTolerance)
	}
	log.Infof("window solved in %s: objective %.6g", rep.Duration, rep.Objective)
	return rep, nil
}

// fail logs the diagnostic dump and builds the fatal error.
func (e *Engine) fail(log logger.Logger, b *builder, rep Report, res lp.Result, cause error) error {
	dump := b.m.DumpString(nil)
	log.Errorf("dispatch %s (%s), model dump follows\n%s", rep.State, res.Reason, dump)
	return &SolveError{
		Case:   rep.Case,
		Window: rep.Window,
		Status: res.Status,
		State:  rep.State,
		Dump:   dump,
		Err:    cause,
	}
}

func (e *Engine) publish(ev any) {
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}

func maxImbalance(act *ledger.Activity, p *plan) float64 {
	worst := 0.0
	for _, r := range p.resources() {
		for t := p.w.Start; t < p.w.End(); t++ {
			worst = math.Max(worst, math.Abs(act.Balance(r, t)))
		}
	}
	return worst
}
