// Package infra groups the adapters behind the core interfaces: the sqlite
// store, the zerolog logger, Prometheus/InfluxDB/journal metrics sinks, the
// MQTT notifier, Sentry monitoring and the YAML catalog loader. Nothing in
// core imports these packages; app wires them together.
package infra
