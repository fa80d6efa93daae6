package playback

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/zsiec/avsync/internal/media"
)

// PacketQueue is a FIFO of compressed packets for one elementary stream.
// Its capacity is measured in payload bytes and is advisory: the queue
// itself never rejects or truncates, the demux loop throttles admission by
// watching Size.
type PacketQueue struct {
	quit *Quit

	mu      sync.Mutex
	pkts    []media.Packet
	head    int
	count   int
	changed chan struct{} // closed and replaced on every put/get

	size atomic.Int64
	n    atomic.Int32
}

// NewPacketQueue returns an empty queue observing quit.
func NewPacketQueue(quit *Quit) *PacketQueue {
	return &PacketQueue{
		quit:    quit,
		pkts:    make([]media.Packet, 64),
		changed: make(chan struct{}),
	}
}

// Put appends pkt at the tail and wakes a waiting consumer. It fails with
// ErrCancelled once the session is cancelled; the packet is dropped.
func (q *PacketQueue) Put(pkt media.Packet) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.quit.Cancelled() {
		return ErrCancelled
	}
	if q.count == len(q.pkts) {
		q.grow()
	}
	q.pkts[(q.head+q.count)%len(q.pkts)] = pkt
	q.count++
	q.size.Add(int64(pkt.Size()))
	q.n.Add(1)
	q.broadcastLocked()
	return nil
}

// Get pops the head packet. On an empty queue it returns ErrEmpty when block
// is false; otherwise it waits until a packet arrives or the session is
// cancelled, in which case it returns ErrCancelled.
func (q *PacketQueue) Get(block bool) (media.Packet, error) {
	for {
		q.mu.Lock()
		if q.quit.Cancelled() {
			q.mu.Unlock()
			return media.Packet{}, ErrCancelled
		}
		if q.count > 0 {
			pkt := q.pkts[q.head]
			q.pkts[q.head] = media.Packet{}
			q.head = (q.head + 1) % len(q.pkts)
			q.count--
			q.size.Add(-int64(pkt.Size()))
			q.n.Add(-1)
			q.broadcastLocked()
			q.mu.Unlock()
			return pkt, nil
		}
		if !block {
			q.mu.Unlock()
			return media.Packet{}, ErrEmpty
		}
		changed := q.changed
		q.mu.Unlock()

		select {
		case <-changed:
		case <-q.quit.Done():
			return media.Packet{}, ErrCancelled
		}
	}
}

// WaitBelow blocks until the byte total drops below limit, ctx is done, or
// the session is cancelled. It lets a producer sleep until a consumer drains
// rather than polling.
func (q *PacketQueue) WaitBelow(ctx context.Context, limit int) error {
	for {
		q.mu.Lock()
		if q.quit.Cancelled() {
			q.mu.Unlock()
			return ErrCancelled
		}
		if q.size.Load() < int64(limit) {
			q.mu.Unlock()
			return nil
		}
		changed := q.changed
		q.mu.Unlock()

		select {
		case <-changed:
		case <-q.quit.Done():
			return ErrCancelled
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Size returns a relaxed snapshot of the queued payload bytes. It only
// gates throttling, so a stale value is acceptable.
func (q *PacketQueue) Size() int {
	return int(q.size.Load())
}

// Len returns a relaxed snapshot of the number of queued packets.
func (q *PacketQueue) Len() int {
	return int(q.n.Load())
}

// Flush drops every queued packet.
func (q *PacketQueue) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.pkts {
		q.pkts[i] = media.Packet{}
	}
	q.head = 0
	q.count = 0
	q.size.Store(0)
	q.n.Store(0)
	q.broadcastLocked()
}

func (q *PacketQueue) grow() {
	next := make([]media.Packet, len(q.pkts)*2)
	for i := 0; i < q.count; i++ {
		next[i] = q.pkts[(q.head+i)%len(q.pkts)]
	}
	q.pkts = next
	q.head = 0
}

func (q *PacketQueue) broadcastLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}
