package market

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kilianp07/iesdispatch/core/logger"
	"github.com/kilianp07/iesdispatch/core/model"
)

// ErrUnknownLabels is returned when no stack exists for the requested labels.
var ErrUnknownLabels = errors.New("no price stack for labels")

// Entry is one generator of a price stack dataset.
type Entry struct {
	Labels       model.CaseLabels `json:"labels"`
	Component    string           `json:"component"`
	Capacity     float64          `json:"capacity"`
	MarginalCost float64          `json:"marginal_cost"`
}

// Source provides dataset entries.
type Source interface {
	Entries(ctx context.Context) ([]Entry, error)
}

// MemorySource serves a fixed slice of entries.
type MemorySource []Entry

func (m MemorySource) Entries(context.Context) ([]Entry, error) {
	return append([]Entry(nil), m...), nil
}

// Dataset holds sentinel-backed price stacks keyed by case labels. It is
// loaded explicitly and safe for concurrent use.
type Dataset struct {
	src      Source
	overflow float64
	log      logger.Logger

	mu     sync.RWMutex
	stacks map[model.CaseLabels]Stack
}

// NewDataset returns an empty dataset reading from src. A non-positive
// overflow price selects DefaultOverflowPrice.
func NewDataset(src Source, overflowPrice float64, log logger.Logger) *Dataset {
	if overflowPrice <= 0 {
		overflowPrice = DefaultOverflowPrice
	}
	return &Dataset{
		src:      src,
		overflow: overflowPrice,
		log:      logger.OrNop(log),
		stacks:   make(map[model.CaseLabels]Stack),
	}
}

// Load reads the source and builds one stack per label set.
func (d *Dataset) Load(ctx context.Context) error {
	if d.src == nil {
		return errors.New("dataset has no source")
	}
	entries, err := d.src.Entries(ctx)
	if err != nil {
		return fmt.Errorf("read dataset: %w", err)
	}
	grouped := make(map[model.CaseLabels][]Entry)
	for _, e := range entries {
		grouped[e.Labels] = append(grouped[e.Labels], e)
	}
	stacks := make(map[model.CaseLabels]Stack, len(grouped))
	for labels, es := range grouped {
		caps := make([]float64, len(es))
		costs := make([]float64, len(es))
		ids := make([]string, len(es))
		for i, e := range es {
			caps[i], costs[i], ids[i] = e.Capacity, e.MarginalCost, e.Component
		}
		s, err := buildStack(caps, costs, ids, d.overflow)
		if err != nil {
			return fmt.Errorf("stack %v: %w", labels, err)
		}
		stacks[labels] = s
	}
	d.mu.Lock()
	d.stacks = stacks
	d.mu.Unlock()
	d.log.Infof("price dataset loaded: %d stacks from %d entries", len(stacks), len(entries))
	return nil
}

// Reload replaces the loaded stacks with a fresh read of the source. On error
// the previous stacks stay in place.
func (d *Dataset) Reload(ctx context.Context) error { return d.Load(ctx) }

// Stack returns the stack for labels.
func (d *Dataset) Stack(labels model.CaseLabels) (Stack, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.stacks[labels]
	if !ok {
		return Stack{}, fmt.Errorf("%w: %s/%s/%s/%d", ErrUnknownLabels, labels.State, labels.Strategy, labels.PriceStructure, labels.Year)
	}
	return s, nil
}

// Labels returns every label set with a stack, sorted.
func (d *Dataset) Labels() []model.CaseLabels {
	d.mu.RLock()
	out := make([]model.CaseLabels, 0, len(d.stacks))
	for l := range d.stacks {
		out = append(out, l)
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.State != b.State {
			return a.State < b.State
		}
		if a.Strategy != b.Strategy {
			return a.Strategy < b.Strategy
		}
		if a.PriceStructure != b.PriceStructure {
			return a.PriceStructure < b.PriceStructure
		}
		return a.Year < b.Year
	})
	return out
}
