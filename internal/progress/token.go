package progress

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Unknown is the total to pass to Begin when the amount of work is not known.
const Unknown = -1

const defaultMinUpdateInterval = 100 * time.Millisecond

// ErrCancelled is returned by Checkpoint once the token has been cancelled.
var ErrCancelled = errors.New("job cancelled")

// Update is a snapshot of a token's state handed to listeners.
type Update struct {
	Task      string
	SubTask   string
	Worked    int
	Total     int
	Done      bool
	Cancelled bool
}

// Listener observes token updates. It is called synchronously from the
// goroutine that changed the token and must not block.
type Listener func(Update)

// TokenOption customizes a Token.
type TokenOption func(*Token)

// WithListener registers l for begin, advance, subtask, cancel and done updates.
func WithListener(l Listener) TokenOption {
	return func(t *Token) {
		t.addListener(l)
	}
}

// WithMinUpdateInterval throttles Worked and SubTask notifications. Begin,
// Cancel and Done are always delivered. Zero disables throttling.
func WithMinUpdateInterval(d time.Duration) TokenOption {
	return func(t *Token) {
		if d <= 0 {
			t.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		t.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// Token is the cooperative progress and cancellation handle a running
// operation receives. It is safe for concurrent use.
type Token struct {
	mu        sync.Mutex
	task      string
	subTask   string
	worked    int
	total     int
	done      bool
	cancelled bool

	ctx    context.Context
	cancel context.CancelFunc

	listeners []Listener
	limiter   *rate.Limiter
}

// NewToken creates a Token whose Context is derived from parent.
func NewToken(parent context.Context, opts ...TokenOption) *Token {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	t := &Token{
		total:   Unknown,
		ctx:     ctx,
		cancel:  cancel,
		limiter: rate.NewLimiter(rate.Every(defaultMinUpdateInterval), 1),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetListener replaces every registered listener with l.
func (t *Token) SetListener(l Listener) {
	t.mu.Lock()
	t.listeners = nil
	t.addListener(l)
	t.mu.Unlock()
}

// AddListener registers l next to the existing listeners. The scheduler uses
// it to attach job bookkeeping to caller-supplied tokens.
func (t *Token) AddListener(l Listener) {
	t.mu.Lock()
	t.addListener(l)
	t.mu.Unlock()
}

func (t *Token) addListener(l Listener) {
	if l == nil {
		return
	}
	// Copy so snapshots taken by notifying goroutines stay stable.
	t.listeners = append(t.listeners[:len(t.listeners):len(t.listeners)], l)
}

// Begin starts the named task with the given total amount of work.
func (t *Token) Begin(task string, total int) {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.task = task
	t.total = total
	t.worked = 0
	upd, l := t.snapshotLocked(), t.listeners
	t.mu.Unlock()
	notify(l, upd)
}

// Worked advances the cumulative amount of completed work by n.
func (t *Token) Worked(n int) {
	t.mu.Lock()
	if t.done || n <= 0 {
		t.mu.Unlock()
		return
	}
	t.worked += n
	upd, l := t.snapshotLocked(), t.listeners
	t.mu.Unlock()
	if t.limiter.Allow() {
		notify(l, upd)
	}
}

// SubTask sets the secondary status line. It is ignored once the token is done.
func (t *Token) SubTask(msg string) {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.subTask = msg
	upd, l := t.snapshotLocked(), t.listeners
	t.mu.Unlock()
	if t.limiter.Allow() {
		notify(l, upd)
	}
}

// Done marks the work finished. Only the first call has an effect; it
// reports whether this call performed the transition.
func (t *Token) Done() bool {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return false
	}
	t.done = true
	upd, l := t.snapshotLocked(), t.listeners
	t.mu.Unlock()
	// Release the context; IsCancelled stays false.
	t.cancel()
	notify(l, upd)
	return true
}

// Cancel sets the cancellation flag and cancels the token's context.
func (t *Token) Cancel() {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	upd, l := t.snapshotLocked(), t.listeners
	t.mu.Unlock()
	t.cancel()
	notify(l, upd)
}

// IsCancelled reports whether Cancel was called.
func (t *Token) IsCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// IsDone reports whether Done was called.
func (t *Token) IsDone() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Checkpoint returns ErrCancelled once the token is cancelled. Operations
// call it between units of work.
func (t *Token) Checkpoint() error {
	if t.IsCancelled() {
		return ErrCancelled
	}
	return nil
}

// Context is cancelled together with the token, and released once Done.
func (t *Token) Context() context.Context {
	return t.ctx
}

// Snapshot returns the current state.
func (t *Token) Snapshot() Update {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Token) snapshotLocked() Update {
	return Update{
		Task:      t.task,
		SubTask:   t.subTask,
		Worked:    t.worked,
		Total:     t.total,
		Done:      t.done,
		Cancelled: t.cancelled,
	}
}

func notify(ls []Listener, upd Update) {
	for _, l := range ls {
		l(upd)
	}
}
