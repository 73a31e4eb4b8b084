package logging

import "github.com/kilianp07/iesdispatch/core/factory"

func factoryConfig(typ, path string) factory.ModuleConfig {
	return factory.ModuleConfig{Type: typ, Conf: map[string]any{"path": path, "max_size_mb": 1}}
}
