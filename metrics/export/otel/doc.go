// Package otel publishes guard counters through OpenTelemetry observable
// instruments.
//
// [New] creates one Int64ObservableCounter per counter and one
// Int64ObservableGauge per latency bucket.
//
// # What this package must NOT do
//
//   - Own the MeterProvider; callers supply the Meter.
//   - Mutate guard state.
package otel
