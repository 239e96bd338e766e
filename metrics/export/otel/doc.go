// Package otel publishes authflow counters and the provider latency histogram
// through an OpenTelemetry Meter.
//
// [NewOTelExporter] registers an Int64ObservableCounter per counter and an
// Int64ObservableGauge per cumulative histogram bucket. One callback reads
// [authflow.Coordinator.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate coordinator state.
package otel
