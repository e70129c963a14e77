// Package result holds the sinks operations emit values through and the
// completion hooks that observe them.
package result

import "sync"

// Sink receives the values an operation produces. Partial may be called any
// number of times, Complete at most once; a repeated Complete overwrites.
type Sink interface {
	Partial(v any)
	Complete(v any)
}

// Collector accumulates partial values in call order and keeps one final value.
// It belongs to a single job and is safe for concurrent Partial calls.
type Collector struct {
	mu       sync.Mutex
	partials []any
	final    any
	hasFinal bool
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Partial appends v.
func (c *Collector) Partial(v any) {
	c.mu.Lock()
	c.partials = append(c.partials, v)
	c.mu.Unlock()
}

// Complete stores v as the final value. Last write wins.
func (c *Collector) Complete(v any) {
	c.mu.Lock()
	c.final = v
	c.hasFinal = true
	c.mu.Unlock()
}

// Final returns the final value and whether Complete was called.
func (c *Collector) Final() (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.final, c.hasFinal
}

// Partials returns a copy of the partial values in call order. It is never nil.
func (c *Collector) Partials() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]any, len(c.partials))
	copy(out, c.partials)
	return out
}

// Len returns the number of partial values received.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.partials)
}

// Value is the externally observed result: the final value when one was set
// and is non-nil, otherwise the partial sequence (possibly empty).
func (c *Collector) Value() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hasFinal && c.final != nil {
		return c.final
	}
	out := make([]any, len(c.partials))
	copy(out, c.partials)
	return out
}

type fanout []Sink

// Fanout forwards every event to each non-nil sink, in argument order.
func Fanout(sinks ...Sink) Sink {
	out := make(fanout, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (f fanout) Partial(v any) {
	for _, s := range f {
		s.Partial(v)
	}
}

func (f fanout) Complete(v any) {
	for _, s := range f {
		s.Complete(v)
	}
}

// Discard drops every value.
var Discard Sink = discard{}

type discard struct{}

func (discard) Partial(any)  {}
func (discard) Complete(any) {}
