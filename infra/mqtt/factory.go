package mqtt

import (
	"github.com/kilianp07/iesdispatch/core/factory"
	coremetrics "github.com/kilianp07/iesdispatch/core/metrics"
)

func init() {
	_ = coremetrics.RegisterMetricsSink("mqtt", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewPahoClient(c)
	})
}
