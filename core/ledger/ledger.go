// Package ledger holds the Activity Matrix, the per component record of what
// every participant produced or consumed at each time step.
package ledger

import (
	"fmt"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/iesdispatch/core/model"
)

// Key identifies one activity vector.
type Key struct {
	Component string
	Resource  model.Resource
	Tracker   model.Tracker
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Component, k.Resource, k.Tracker)
}

// Activity is the Activity Matrix for a fixed horizon. Negative values are
// consumption, positive values production. Level trackers record state.
type Activity struct {
	mu      sync.RWMutex
	horizon int
	data    map[Key][]float64
}

// New returns an empty Activity Matrix covering horizon steps.
func New(horizon int) *Activity {
	return &Activity{horizon: horizon, data: make(map[Key][]float64)}
}

// Horizon returns the number of steps tracked.
func (a *Activity) Horizon() int { return a.horizon }

// SetActivityVector replaces the full vector for the given key.
func (a *Activity) SetActivityVector(component string, resource model.Resource, values []float64, tracker model.Tracker) error {
	if len(values) != a.horizon {
		return fmt.Errorf("activity %s/%s/%s: got %d values for horizon %d", component, resource, tracker, len(values), a.horizon)
	}
	return a.SetActivityWindow(component, resource, tracker, 0, values)
}

// SetActivityWindow writes values starting at step start, leaving the rest of
// the vector untouched.
func (a *Activity) SetActivityWindow(component string, resource model.Resource, tracker model.Tracker, start int, values []float64) error {
	if component == "" || resource == "" || tracker == "" {
		return fmt.Errorf("activity key requires component, resource and tracker")
	}
	if start < 0 || start+len(values) > a.horizon {
		return fmt.Errorf("activity %s/%s/%s: window [%d,%d) outside horizon %d", component, resource, tracker, start, start+len(values), a.horizon)
	}
	k := Key{Component: component, Resource: resource, Tracker: tracker}
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.data[k]
	if !ok {
		v = make([]float64, a.horizon)
		a.data[k] = v
	}
	copy(v[start:], values)
	return nil
}

// Vector returns a copy of the vector for the key.
func (a *Activity) Vector(component string, resource model.Resource, tracker model.Tracker) ([]float64, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.data[Key{Component: component, Resource: resource, Tracker: tracker}]
	if !ok {
		return nil, false
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out, true
}

// Keys returns all recorded keys in a stable order.
func (a *Activity) Keys() []Key {
	a.mu.RLock()
	keys := make([]Key, 0, len(a.data))
	for k := range a.data {
		keys = append(keys, k)
	}
	a.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Len returns the number of recorded vectors.
func (a *Activity) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.data)
}

// Balance returns the signed sum of every flow tracker of resource at step t.
func (a *Activity) Balance(resource model.Resource, t int) float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var vals []float64
	for k, v := range a.data {
		if k.Resource != resource || !k.Tracker.IsFlow() || t < 0 || t >= len(v) {
			continue
		}
		vals = append(vals, v[t])
	}
	return floats.Sum(vals)
}

// Resources returns the distinct resources present in the matrix.
func (a *Activity) Resources() []model.Resource {
	a.mu.RLock()
	seen := make(map[model.Resource]struct{})
	for k := range a.data {
		seen[k.Resource] = struct{}{}
	}
	a.mu.RUnlock()
	out := make([]model.Resource, 0, len(seen))
	for r := range seen {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Total returns dt times the sum of the vector, the energy moved over the
// horizon.
func (a *Activity) Total(component string, resource model.Resource, tracker model.Tracker, dt float64) float64 {
	v, ok := a.Vector(component, resource, tracker)
	if !ok {
		return 0
	}
	return dt * floats.Sum(v)
}
