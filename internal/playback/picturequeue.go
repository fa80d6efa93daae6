package playback

import (
	"sync"

	"github.com/zsiec/avsync/internal/media"
)

// PictureQueue is a fixed-capacity ring of decoded pictures between the
// video decode loop (producer) and the scheduler (consumer). The producer
// blocks while the ring is full; the consumer never blocks, it peeks and
// pops.
type PictureQueue struct {
	quit *Quit

	mu      sync.Mutex
	slots   []*media.Picture
	rindex  int
	windex  int
	count   int
	changed chan struct{}
}

// NewPictureQueue returns a queue holding at most capacity pictures.
// Capacity below one is raised to one.
func NewPictureQueue(capacity int, quit *Quit) *PictureQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &PictureQueue{
		quit:    quit,
		slots:   make([]*media.Picture, capacity),
		changed: make(chan struct{}),
	}
}

// Push stores pic at the write index, waiting while the queue is full. It
// returns ErrCancelled, without storing, once the session is cancelled.
func (q *PictureQueue) Push(pic *media.Picture) error {
	for {
		q.mu.Lock()
		if q.quit.Cancelled() {
			q.mu.Unlock()
			return ErrCancelled
		}
		if q.count < len(q.slots) {
			q.slots[q.windex] = pic
			q.windex = (q.windex + 1) % len(q.slots)
			q.count++
			q.broadcastLocked()
			q.mu.Unlock()
			return nil
		}
		changed := q.changed
		q.mu.Unlock()

		select {
		case <-changed:
		case <-q.quit.Done():
			return ErrCancelled
		}
	}
}

// Peek returns the head picture without removing it.
func (q *PictureQueue) Peek() (*media.Picture, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return nil, false
	}
	return q.slots[q.rindex], true
}

// Pop removes the head picture and wakes a producer blocked on a full queue.
// It returns false if the queue was empty.
func (q *PictureQueue) Pop() (*media.Picture, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return nil, false
	}
	pic := q.slots[q.rindex]
	q.slots[q.rindex] = nil
	q.rindex = (q.rindex + 1) % len(q.slots)
	q.count--
	q.broadcastLocked()
	return pic, true
}

// Len returns the number of queued pictures.
func (q *PictureQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the fixed capacity.
func (q *PictureQueue) Cap() int {
	return len(q.slots)
}

func (q *PictureQueue) broadcastLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}
