// Package prometheus renders session metrics in Prometheus text exposition
// format.
//
// [NewPrometheusExporter] reads a [goSession.Client] snapshot on every
// scrape. Counter names are gosession_*_total; the single histogram is
// gosession_request_latency_seconds. Nothing is registered in a global
// registry; callers mount [PrometheusExporter.Handler].
package prometheus
