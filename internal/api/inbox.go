package api

import (
	"sync"
	"time"

	"github.com/JakeFAU/jobcore/internal/jobs"
)

// Delivery is one result that reached the UI loop.
type Delivery struct {
	JobID       string    `json:"job_id"`
	Status      string    `json:"status"`
	Value       any       `json:"value,omitempty"`
	Error       string    `json:"error,omitempty"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// Inbox collects results delivered to jobs submitted with "deliver": true.
// Its continuations run on the UI loop; reads come from HTTP handlers.
type Inbox struct {
	mu    sync.Mutex
	items []inboxItem
	clock jobs.Clock
	limit int
}

type inboxItem struct {
	ticket *Ticket
	d      Delivery
}

// Ticket ties a continuation to the job ID the scheduler assigns after the
// continuation was created.
type Ticket struct {
	inbox *Inbox
	jobID string
}

// NewInbox keeps the newest limit deliveries; limit <= 0 keeps 1000.
func NewInbox(clock jobs.Clock, limit int) *Inbox {
	if limit <= 0 {
		limit = 1000
	}
	return &Inbox{clock: clock, limit: limit}
}

// Ticket reserves an unbound ticket.
func (b *Inbox) Ticket() *Ticket { return &Ticket{inbox: b} }

// Bind sets the job ID reported for deliveries through t.
func (t *Ticket) Bind(jobID string) {
	t.inbox.mu.Lock()
	t.jobID = jobID
	t.inbox.mu.Unlock()
}

// Continuation records the outcome it receives in the inbox.
func (t *Ticket) Continuation() jobs.Continuation {
	b := t.inbox
	return func(out jobs.Outcome) {
		d := Delivery{Status: string(out.Status()), DeliveredAt: b.clock.Now()}
		switch out.Kind {
		case jobs.OutcomeSuccess:
			d.Value = out.Value
		case jobs.OutcomeFailed, jobs.OutcomeCancelled:
			if out.Err != nil {
				d.Error = out.Err.Error()
			}
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		b.items = append(b.items, inboxItem{ticket: t, d: d})
		if over := len(b.items) - b.limit; over > 0 {
			b.items = append([]inboxItem(nil), b.items[over:]...)
		}
	}
}

// Items returns the deliveries, oldest first.
func (b *Inbox) Items() []Delivery {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Delivery, 0, len(b.items))
	for _, it := range b.items {
		d := it.d
		d.JobID = it.ticket.jobID
		out = append(out, d)
	}
	return out
}
