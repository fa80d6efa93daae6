package playback

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Quit is the session-wide cancellation signal. Every blocking wait in the
// core selects on Done, so cancelling wakes all of them. Cancel is
// idempotent and safe from any goroutine.
type Quit struct {
	once      sync.Once
	done      chan struct{}
	cancelled atomic.Bool

	mu    sync.Mutex
	cause error
}

// NewQuit returns an armed cancellation signal.
func NewQuit() *Quit {
	return &Quit{done: make(chan struct{})}
}

// Cancel sets the signal without a cause.
func (q *Quit) Cancel() {
	q.CancelWithCause(nil)
}

// CancelWithCause sets the signal and records err as the reason if this is
// the first cancellation. Later causes are ignored so the failure is
// reported once.
func (q *Quit) CancelWithCause(err error) {
	q.once.Do(func() {
		q.mu.Lock()
		q.cause = err
		q.mu.Unlock()
		q.cancelled.Store(true)
		close(q.done)
	})
}

// Done returns a channel closed on cancellation.
func (q *Quit) Done() <-chan struct{} {
	return q.done
}

// Cancelled reports whether the signal has been set.
func (q *Quit) Cancelled() bool {
	return q.cancelled.Load()
}

// Err returns the cause recorded by the first cancellation, or nil.
func (q *Quit) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cause
}

// Context returns a child of parent that is cancelled when the signal is
// set, so blocking reads in collaborators that only understand contexts
// observe the same quit.
func (q *Quit) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-q.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// sleep waits for d, returning false early if the signal is set or ctx ends.
func (q *Quit) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-q.done:
		return false
	case <-ctx.Done():
		return false
	}
}
