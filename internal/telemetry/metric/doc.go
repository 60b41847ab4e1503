// Package metric provides Prometheus metrics for tinykv.
//
// This package implements metrics collection and exposition:
//
//   - prometheus.go: Prometheus registry, command counters and HTTP handler
//   - collector.go: Scrape-time collector pulling store and connection stats
//   - server.go: Optional HTTP listener serving /metrics
//
// Metrics are exposed at /metrics in Prometheus format.
package metric
