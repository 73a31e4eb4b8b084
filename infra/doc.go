// Package infra contains technical adapters such as MQTT clients,
// metrics exporters, the SQLite price dataset and Sentry monitoring.
// These packages should depend only on the interfaces defined in the
// core packages.
package infra
