package config

import (
	"fmt"
	"time"
)

// ServeConfig defines the long running mode.
type ServeConfig struct {
	// IntervalSeconds re-dispatches the configured case periodically. Zero
	// disables the ticker.
	IntervalSeconds int `json:"interval_seconds"`
	// CaseDir resolves the case names of MQTT run requests.
	CaseDir string `json:"case_dir"`
	// ShutdownSeconds bounds the flush of sinks and monitors on exit.
	ShutdownSeconds int `json:"shutdown_seconds"`
	// APIAddr is the listen address of the run log and clearing price
	// endpoints. Empty disables them.
	APIAddr string `json:"api_addr"`
	// APIToken protects the run log endpoint when set.
	APIToken string `json:"api_token"`
}

// SetDefaults applies sane defaults.
func (c *ServeConfig) SetDefaults() {
	if c.ShutdownSeconds == 0 {
		c.ShutdownSeconds = 5
	}
}

// Validate checks the settings.
func (c ServeConfig) Validate() error {
	if c.IntervalSeconds < 0 || c.ShutdownSeconds < 0 {
		return fmt.Errorf("interval_seconds and shutdown_seconds must be non-negative")
	}
	return nil
}

// Interval returns the re-dispatch period.
func (c ServeConfig) Interval() time.Duration { return time.Duration(c.IntervalSeconds) * time.Second }

// ShutdownTimeout returns the flush deadline.
func (c ServeConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownSeconds) * time.Second
}
