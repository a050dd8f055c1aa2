// Package internal holds the private plumbing behind portalguard and its
// commands. Nothing here is part of the public API.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - config: environment configuration for the demo portal
//   - logger: slog handler setup shared by the commands
//   - metrics: lock-free outcome counters and check latency histograms
//   - rate: Redis-backed login attempt throttling
//   - security: guard posture report
//   - telemetry: OpenTelemetry tracer provider setup
//
// # What this package must NOT do
//
//   - Export types that appear in the public portalguard API.
//   - Be imported by any package outside the portalguard module.
package internal
