package logging

import "github.com/kilianp07/iesdispatch/core/factory"

// StoreConfig is the raw configuration understood by the built-in stores.
type StoreConfig struct {
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

var storeRegistry = factory.NewRegistry[LogStore]()

func init() {
	_ = RegisterLogStore("jsonl", func(conf map[string]any) (LogStore, error) {
		var c StoreConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewJSONLStore(c.Path)
	})
	_ = RegisterLogStore("rotating", func(conf map[string]any) (LogStore, error) {
		var c StoreConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewRotatingJSONLStore(c.Path, c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays)
	})
	_ = RegisterLogStore("sqlite", func(conf map[string]any) (LogStore, error) {
		var c StoreConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewSQLiteStore(c.Path)
	})
}

// RegisterLogStore adds a store factory identified by name.
func RegisterLogStore(name string, f factory.Factory[LogStore]) error {
	return storeRegistry.Register(name, f)
}

// NewLogStore creates the store described by cfg.
func NewLogStore(cfg factory.ModuleConfig) (LogStore, error) {
	return storeRegistry.Create(cfg)
}
