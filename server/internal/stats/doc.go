// Package stats is the server's explicit runtime context: start time, the
// running flag, and request counters. One Stats value is created in main and
// passed to every component that reads or updates it.
//
// WriteMetrics renders the counters in the Prometheus text exposition format
// for GET /metrics.
package stats
