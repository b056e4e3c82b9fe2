// Package metrics defines the sinks that record scheduling activity for
// observability. Sinks like PromSink and InfluxSink record roll summaries,
// processed instances, shortfalls and card generation and can be combined
// with NewMultiSink. The factory helpers return a MultiSink automatically
// when multiple sinks are configured.
package metrics
