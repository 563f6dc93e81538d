package quote

import (
	"context"
	"sync"
)

// Tracker hands out cancellation tickets for quote requests. Beginning a new
// request cancels the previous one, so only the latest input can win.
type Tracker struct {
	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// Ticket identifies one quote request.
type Ticket struct {
	Seq     uint64
	Ctx     context.Context
	tracker *Tracker
}

// Begin cancels the outstanding ticket and issues a new one derived from parent.
func (t *Tracker) Begin(parent context.Context) Ticket {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	ctx, cancel := context.WithCancel(parent)
	t.seq++
	t.cancel = cancel

	return Ticket{Seq: t.seq, Ctx: ctx, tracker: t}
}

// Invalidate cancels the outstanding ticket without issuing a new one.
func (t *Tracker) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.seq++
}

// Latest returns the sequence number of the most recent ticket.
func (t *Tracker) Latest() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seq
}

// Current reports whether no newer ticket has been issued.
func (tk Ticket) Current() bool {
	return tk.tracker != nil && tk.tracker.Latest() == tk.Seq
}
