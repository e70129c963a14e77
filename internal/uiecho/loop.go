// Package uiecho hands finished job results to the UI-owned execution
// context, either right away or behind a "kept job" action.
package uiecho

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Loop is the UI execution context: one goroutine running posted functions
// in order. RunOnUI never blocks; the mailbox is unbounded.
type Loop struct {
	logger *zap.Logger

	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
	stopped bool
}

// NewLoop builds a Loop. Call Run to start processing.
func NewLoop(logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{logger: logger, wake: make(chan struct{}, 1)}
}

// RunOnUI implements jobs.UIDispatcher. Functions posted after the loop has
// stopped are dropped.
func (l *Loop) RunOnUI(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		l.logger.Warn("ui loop stopped, dropping continuation")
		return
	}
	l.pending = append(l.pending, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run processes posted functions until ctx ends, then runs whatever is
// still queued and returns.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-l.wake:
			l.runPending()
		case <-ctx.Done():
			l.mu.Lock()
			l.stopped = true
			l.mu.Unlock()
			l.runPending()
			return nil
		}
	}
}

// Sync blocks until every function posted before the call has run.
func (l *Loop) Sync(ctx context.Context) error {
	done := make(chan struct{})
	l.RunOnUI(func() { close(done) })
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("ui loop sync: %w", ctx.Err())
	}
}

func (l *Loop) runPending() {
	for {
		l.mu.Lock()
		batch := l.pending
		l.pending = nil
		l.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, fn := range batch {
			l.runOne(fn)
		}
	}
}

func (l *Loop) runOne(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("ui continuation panicked", zap.Any("panic", r))
		}
	}()
	fn()
}
