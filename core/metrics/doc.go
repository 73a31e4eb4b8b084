package metrics

// Package metrics defines the records emitted after dispatch runs and the
// sink interfaces that consume them. Sinks like PromSink and InfluxSink live
// in infra/metrics and can be combined with NewMultiSink. The factory helpers
// return a MultiSink automatically when multiple sinks are configured.
