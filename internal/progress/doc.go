// Package progress provides the cooperative progress/cancellation token handed
// to running operations, plus the event primitives and non-blocking hub the
// workers use to report job lifecycle milestones. The hub batches events on a
// background goroutine and fans them out to pluggable sinks such as structured
// logs, Prometheus metrics or the run store.
package progress
