package dispatch

import (
	"fmt"
	"time"

	"github.com/kilianp07/iesdispatch/core/lp"
)

// Config defines dispatch-related settings.
type Config struct {
	// Sense is "maximize" (net revenue, default) or "minimize" (net cost).
	Sense string `json:"sense"`
	// WindowLength splits the horizon into windows of this many steps,
	// DefaultWindowLength when unset. A length at or above the horizon
	// dispatches the whole horizon at once.
	WindowLength int `json:"window_length"`
	// Tolerance is the simplex pivot tolerance.
	Tolerance float64 `json:"tolerance"`
	// TimeoutSeconds bounds each window solve separately, not the run.
	TimeoutSeconds int `json:"timeout_seconds"`
	// BalanceTolerance is the largest per resource imbalance accepted in the
	// Activity Matrix after a solve before a warning is logged.
	BalanceTolerance float64 `json:"balance_tolerance"`
}

// DefaultWindowLength is one day of hourly steps.
const DefaultWindowLength = 24

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Sense == "" {
		c.Sense = lp.Maximize.String()
	}
	if c.WindowLength == 0 {
		c.WindowLength = DefaultWindowLength
	}
	if c.Tolerance == 0 {
		c.Tolerance = lp.DefaultTolerance
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = int(lp.DefaultTimeout / time.Second)
	}
	if c.BalanceTolerance == 0 {
		c.BalanceTolerance = 1e-6
	}
}

// Validate checks the settings.
func (c Config) Validate() error {
	if _, err := lp.ParseSense(c.Sense); err != nil {
		return err
	}
	if c.WindowLength < 0 {
		return fmt.Errorf("window_length must be non-negative")
	}
	if c.Tolerance < 0 || c.TimeoutSeconds < 0 || c.BalanceTolerance < 0 {
		return fmt.Errorf("tolerance, timeout_seconds and balance_tolerance must be non-negative")
	}
	return nil
}

// Timeout returns the per-solve timeout.
func (c Config) Timeout() time.Duration { return time.Duration(c.TimeoutSeconds) * time.Second }

func (c Config) sense() lp.Sense {
	s, err := lp.ParseSense(c.Sense)
	if err != nil {
		return lp.Maximize
	}
	return s
}
