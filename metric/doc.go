// Package metric exports look-up metrics to Prometheus.
//
// PrometheusCollector implements kvlookup.MetricsCollector; Handler serves a
// registry over HTTP together with a /health endpoint.
package metric
