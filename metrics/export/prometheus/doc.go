// Package prometheus renders authflow metrics in the Prometheus text
// exposition format.
//
// [NewPrometheusExporter] takes an [authflow.Coordinator] and exposes an
// [http.Handler]. Counter names are authflow_*_total; the single histogram is
// authflow_provider_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global registry. Callers mount the Handler.
//   - Mutate coordinator state.
package prometheus
