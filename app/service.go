package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kilianp07/iesdispatch/api"
	"github.com/kilianp07/iesdispatch/api/prices"
	"github.com/kilianp07/iesdispatch/config"
	"github.com/kilianp07/iesdispatch/core/dispatch"
	"github.com/kilianp07/iesdispatch/core/dispatch/logging"
	"github.com/kilianp07/iesdispatch/core/ledger"
	"github.com/kilianp07/iesdispatch/core/market"
	coremetrics "github.com/kilianp07/iesdispatch/core/metrics"
	"github.com/kilianp07/iesdispatch/core/model"
	coremon "github.com/kilianp07/iesdispatch/core/monitoring"
	coremqtt "github.com/kilianp07/iesdispatch/core/mqtt"
	"github.com/kilianp07/iesdispatch/infra/dataset"
	"github.com/kilianp07/iesdispatch/infra/logger"
	"github.com/kilianp07/iesdispatch/infra/metrics"
	"github.com/kilianp07/iesdispatch/infra/monitoring"
	"github.com/kilianp07/iesdispatch/internal/eventbus"
)

// requestSource is implemented by sinks that also receive run requests.
type requestSource interface {
	OnRunRequest(h coremqtt.RequestHandler)
	Reply(r coremqtt.RunReply) error
}

// Service wires the configured dataset, engine, stores and sinks together.
type Service struct {
	Engine  *dispatch.Engine
	Runner  *dispatch.Runner
	Dataset *market.Dataset

	cfg     *config.Config
	store   logging.LogStore
	sink    coremetrics.MetricsSink
	stackDB *dataset.SQLiteStore
	bus     eventbus.EventBus
	log     logger.Logger
	cancel  context.CancelFunc

	runMu sync.Mutex
}

// New creates a Service from the configuration. The price dataset, when
// configured, is imported and loaded before New returns.
func New(ctx context.Context, cfg *config.Config) (_ *Service, err error) {
	logg := logger.New("service")
	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	s := &Service{cfg: cfg, bus: eventbus.New(), log: logg}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	if cfg.Dataset.Path != "" {
		if err = s.openDataset(ctx); err != nil {
			return nil, err
		}
	}
	if s.store, err = logging.NewLogStore(cfg.Logging.Module()); err != nil {
		return nil, fmt.Errorf("log store: %w", err)
	}
	if s.sink, err = coremetrics.NewMetricsSink(cfg.Metrics.Sinks); err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	opts := []dispatch.Option{
		dispatch.WithConfig(cfg.Dispatch),
		dispatch.WithLogger(logger.New("dispatch")),
		dispatch.WithEventBus(s.bus),
	}
	if s.Dataset != nil {
		opts = append(opts, dispatch.WithPriceStacks(s.Dataset))
	}
	s.Engine = dispatch.NewEngine(nil, opts...)
	s.Runner = dispatch.NewRunner(s.Engine,
		dispatch.WithLogStore(s.store),
		dispatch.WithMetricsSink(s.sink),
		dispatch.WithWindowLength(cfg.Dispatch.WindowLength),
	)

	var collectCtx context.Context
	collectCtx, s.cancel = context.WithCancel(context.Background())
	metrics.StartEventCollector(collectCtx, s.bus, s.sink)
	return s, nil
}

func (s *Service) openDataset(ctx context.Context) error {
	db, err := dataset.NewSQLiteStore(s.cfg.Dataset.Path)
	if err != nil {
		return fmt.Errorf("price dataset: %w", err)
	}
	s.stackDB = db
	if s.cfg.Dataset.CSV != "" {
		if err := ImportCSV(ctx, db, s.cfg.Dataset.CSV); err != nil {
			return err
		}
	}
	s.Dataset = market.NewDataset(db, s.cfg.Dataset.OverflowPrice, logger.New("dataset"))
	if err := s.Dataset.Load(ctx); err != nil {
		return fmt.Errorf("price dataset: %w", err)
	}
	return nil
}

// ImportCSV upserts the stack entries of the CSV file at path into db.
func ImportCSV(ctx context.Context, db *dataset.SQLiteStore, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open dataset csv: %w", err)
	}
	defer f.Close()
	entries, err := dataset.ReadCSV(f)
	if err != nil {
		return fmt.Errorf("dataset csv %s: %w", path, err)
	}
	if err := db.Upsert(ctx, entries); err != nil {
		return fmt.Errorf("import dataset csv: %w", err)
	}
	return nil
}

// RunCase dispatches c over its whole horizon. Runs are serialized.
func (s *Service) RunCase(ctx context.Context, c *model.Case) (*ledger.Activity, coremetrics.RunRecord, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.Runner.Run(ctx, c)
}

// Serve starts the optional HTTP endpoints, the periodic re-dispatch of the
// configured case and the handling of MQTT run requests. It blocks until the
// context is canceled.
func (s *Service) Serve(ctx context.Context) error {
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, addr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	if addr := s.cfg.Serve.APIAddr; addr != "" {
		var stacks prices.StackSource
		if s.Dataset != nil {
			stacks = s.Dataset
		}
		mux := api.NewMux(s.store, s.cfg.Serve.APIToken, stacks)
		go func() {
			if err := api.Serve(ctx, addr, mux); err != nil {
				s.log.Errorf("api server: %v", err)
			}
		}()
	}
	if rs, ok := findRequestSource(s.sink); ok {
		rs.OnRunRequest(func(req coremqtt.RunRequest) {
			go s.handleRequest(ctx, rs, req)
		})
		s.log.Infof("accepting run requests")
	}
	if d := s.cfg.Serve.Interval(); d > 0 && s.cfg.Case.Path != "" {
		go s.tick(ctx, d)
	}
	<-ctx.Done()
	return nil
}

func (s *Service) tick(ctx context.Context, d time.Duration) {
	defer coremon.Recover()
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c, err := s.cfg.Case.Load()
			if err != nil {
				s.log.Errorf("load case: %v", err)
				coremon.CaptureException(err, map[string]string{"module": "serve", "case": s.cfg.Case.Path})
				continue
			}
			// Run failures are logged and captured by the runner.
			_, _, _ = s.RunCase(ctx, c)
		}
	}
}

func (s *Service) handleRequest(ctx context.Context, rs requestSource, req coremqtt.RunRequest) {
	defer coremon.Recover()
	reply := coremqtt.RunReply{RequestID: req.RequestID}
	c, err := s.resolveCase(req.Case)
	if err != nil {
		reply.Status = dispatch.StatusOf(err)
		reply.Error = err.Error()
	} else {
		_, rec, err := s.RunCase(ctx, c)
		reply.RunID, reply.Status, reply.Objective = rec.RunID, rec.Status, rec.Objective
		if err != nil {
			reply.Error = err.Error()
		}
	}
	if err := rs.Reply(reply); err != nil {
		s.log.Warnf("reply to %s: %v", req.RequestID, err)
	}
}

// resolveCase finds the case file named name in the serve case directory.
// A name without extension is tried as .yaml, .yml and .json. Names must be
// bare file names inside the directory.
func (s *Service) resolveCase(name string) (*model.Case, error) {
	dir := s.cfg.Serve.CaseDir
	if dir == "" {
		return nil, fmt.Errorf("%w: no case directory configured", dispatch.ErrInvalidCase)
	}
	if name == "" || !filepath.IsLocal(name) || filepath.Base(name) != name || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("%w: case name %q must be a file name in the case directory", dispatch.ErrInvalidCase, name)
	}
	candidates := []string{filepath.Join(dir, name)}
	if filepath.Ext(name) == "" {
		candidates = nil
		for _, ext := range []string{".yaml", ".yml", ".json"} {
			candidates = append(candidates, filepath.Join(dir, name+ext))
		}
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			c, err := config.LoadCase(p, "")
			if err != nil {
				return nil, fmt.Errorf("%w: %v", dispatch.ErrInvalidCase, err)
			}
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: case %q not found", dispatch.ErrInvalidCase, name)
}

// Close flushes the monitor and releases every store and sink.
func (s *Service) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	coremon.Flush(s.cfg.Serve.ShutdownTimeout())
	var errs []error
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if s.stackDB != nil {
		errs = append(errs, s.stackDB.Close())
	}
	closeSink(s.sink)
	if s.bus != nil {
		s.bus.Close()
	}
	return errors.Join(errs...)
}

func findRequestSource(sink coremetrics.MetricsSink) (requestSource, bool) {
	if m, ok := sink.(*coremetrics.MultiSink); ok {
		for _, inner := range m.Sinks {
			if rs, ok := findRequestSource(inner); ok {
				return rs, true
			}
		}
		return nil, false
	}
	rs, ok := sink.(requestSource)
	return rs, ok
}

func closeSink(sink coremetrics.MetricsSink) {
	switch v := sink.(type) {
	case *coremetrics.MultiSink:
		for _, inner := range v.Sinks {
			closeSink(inner)
		}
	case interface{ Disconnect() }:
		v.Disconnect()
	case interface{ Close() }:
		v.Close()
	}
}
