package config

import "fmt"

// DatasetConfig locates the price stack dataset.
type DatasetConfig struct {
	// Path is the SQLite database holding the stack entries. Empty disables
	// stack priced components.
	Path string `json:"path"`
	// CSV is imported into Path on startup when set.
	CSV string `json:"csv"`
	// OverflowPrice is the sentinel price returned beyond the last stack
	// step. Zero selects the dataset default.
	OverflowPrice float64 `json:"overflow_price"`
}

// SetDefaults is a no-op kept for symmetry with the other sections.
func (c *DatasetConfig) SetDefaults() {}

// Validate checks the settings.
func (c DatasetConfig) Validate() error {
	if c.OverflowPrice < 0 {
		return fmt.Errorf("overflow_price must be non-negative")
	}
	if c.CSV != "" && c.Path == "" {
		return fmt.Errorf("csv import requires a database path")
	}
	return nil
}
