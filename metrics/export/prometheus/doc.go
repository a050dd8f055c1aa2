// Package prometheus exposes guard metrics through a client_golang
// [prometheus.Collector].
//
// Counter names are prefixed portalguard_*_total; the single histogram is
// portalguard_check_latency_seconds.
//
// # What this package must NOT do
//
//   - Register into the global default registry; callers pass a Registerer.
//   - Mutate guard state.
package prometheus
