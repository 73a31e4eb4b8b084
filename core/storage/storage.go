// Package storage models the energy transfer of a storage device between
// time steps.
package storage

import (
	"fmt"
	"math"
)

// Device is a storage unit. SqrtRTE is the one-way efficiency applied on both
// charge and discharge, so a full cycle loses 1-SqrtRTE^2.
type Device struct {
	Capacity     float64
	InitialLevel float64
	SqrtRTE      float64
}

// NewDevice validates and returns a Device.
func NewDevice(capacity, initialLevel, sqrtRTE float64) (Device, error) {
	if !(capacity > 0) || math.IsInf(capacity, 0) {
		return Device{}, fmt.Errorf("storage capacity %v must be positive and finite", capacity)
	}
	if !(initialLevel >= 0) || initialLevel > capacity {
		return Device{}, fmt.Errorf("initial level %v outside [0, %v]", initialLevel, capacity)
	}
	if !(sqrtRTE > 0) || sqrtRTE > 1 {
		return Device{}, fmt.Errorf("efficiency %v outside (0, 1]", sqrtRTE)
	}
	return Device{Capacity: capacity, InitialLevel: initialLevel, SqrtRTE: sqrtRTE}, nil
}

// FromRTE converts a round-trip efficiency to the one-way factor.
func FromRTE(rte float64) float64 { return math.Sqrt(rte) }

// Step returns the level after one step of duration dt. charge is
// non-positive (energy taken from the pool), discharge non-negative.
func (d Device) Step(level, charge, discharge, dt float64) float64 {
	return level + dt*(-d.SqrtRTE*charge-discharge/d.SqrtRTE)
}

// Simulate applies Step over the series starting from InitialLevel and
// returns the level after each step. It fails when the series differ in
// length or a flow has the wrong sign.
func (d Device) Simulate(charge, discharge []float64, dt float64) ([]float64, error) {
	if len(charge) != len(discharge) {
		return nil, fmt.Errorf("charge has %d steps, discharge %d", len(charge), len(discharge))
	}
	if dt <= 0 {
		return nil, fmt.Errorf("dt %v must be positive", dt)
	}
	levels := make([]float64, len(charge))
	level := d.InitialLevel
	for t := range charge {
		if charge[t] > 0 || discharge[t] < 0 {
			return nil, fmt.Errorf("step %d: charge must be <= 0 and discharge >= 0", t)
		}
		level = d.Step(level, charge[t], discharge[t], dt)
		levels[t] = level
	}
	return levels, nil
}

// ChargeBounds returns the per-step bounds of the charge flow.
func (d Device) ChargeBounds(dt float64) (lo, hi float64) {
	return -d.Capacity / dt, 0
}

// DischargeBounds returns the per-step bounds of the discharge flow.
func (d Device) DischargeBounds(dt float64) (lo, hi float64) {
	return 0, d.Capacity / dt
}

// LevelBounds returns the state bounds.
func (d Device) LevelBounds() (lo, hi float64) { return 0, d.Capacity }

// WithLevel returns a copy of d starting from level, clamped to the state
// bounds to absorb solver round-off.
func (d Device) WithLevel(level float64) Device {
	d.InitialLevel = math.Min(math.Max(level, 0), d.Capacity)
	return d
}
