// Package sinks implements consumers for job events: structured logs,
// Prometheus collectors and run-store progress counters.
package sinks
