// Package prometheus renders authcore engine metrics in the Prometheus text
// exposition format.
//
// [NewPrometheusExporter] wraps an [authcore.Engine] and exposes an
// [http.Handler] for a /metrics route. Counters are named authcore_*_total;
// the only histogram is authcore_validate_session_latency_seconds. The
// audit dispatcher drop count is exported as authcore_audit_dropped_total.
//
// # What this package must NOT do
//
//   - Register anything in a global Prometheus registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
