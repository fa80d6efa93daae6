package host

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// EventLoop runs posted callbacks one at a time on the goroutine that calls
// Run. Timer callbacks armed with AfterFunc are posted when they fire, so
// they never run concurrently with each other.
type EventLoop struct {
	log    *slog.Logger
	events chan func()
	done   chan struct{}

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool

	handled atomic.Int64
}

// NewEventLoop creates a loop whose queue holds up to backlog events before
// posting blocks. If log is nil, slog.Default() is used.
func NewEventLoop(backlog int, log *slog.Logger) *EventLoop {
	if log == nil {
		log = slog.Default()
	}
	if backlog < 1 {
		backlog = 1
	}
	return &EventLoop{
		log:    log.With("component", "event-loop"),
		events: make(chan func(), backlog),
		done:   make(chan struct{}),
		timers: make(map[*time.Timer]struct{}),
	}
}

// AfterFunc arms a one-shot timer that posts f to the loop after d. Timers
// still pending when the loop stops are discarded.
func (l *EventLoop) AfterFunc(d time.Duration, f func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		l.mu.Lock()
		delete(l.timers, t)
		l.mu.Unlock()
		l.Post(f)
	})
	l.timers[t] = struct{}{}
}

// Post queues f. It returns false if the loop has stopped.
func (l *EventLoop) Post(f func()) bool {
	select {
	case l.events <- f:
		return true
	case <-l.done:
		return false
	}
}

// Run executes events until ctx is done, then stops all pending timers.
func (l *EventLoop) Run(ctx context.Context) error {
	defer l.stop()
	l.log.Debug("started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-l.events:
			f()
			l.handled.Add(1)
		}
	}
}

func (l *EventLoop) stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.done)
	for t := range l.timers {
		t.Stop()
	}
	l.timers = nil
	l.log.Debug("stopped", "events", l.handled.Load())
}

// Handled returns how many events have run.
func (l *EventLoop) Handled() int64 {
	return l.handled.Load()
}

// Pending returns the number of armed timers.
func (l *EventLoop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.timers)
}
