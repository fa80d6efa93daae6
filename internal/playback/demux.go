package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/zsiec/avsync/internal/media"
)

// route binds one selected container stream to its packet queue.
type route struct {
	index   int
	queue   *PacketQueue
	ceiling int
	counter func()
}

// DemuxLoop reads container packets on a single goroutine and routes them
// into the per-stream packet queues. It stops reading while either queue is
// at or above its byte ceiling.
type DemuxLoop struct {
	log     *slog.Logger
	quit    *Quit
	demuxer Demuxer
	routes  []route
	stats   *counters

	backpressurePoll time.Duration
	eofIdle          time.Duration

	// OnEOF, if set, is called once when the container first reports a
	// clean end of stream.
	OnEOF  func()
	sawEOF bool
}

func newDemuxLoop(log *slog.Logger, cfg Config, quit *Quit, d Demuxer, stats *counters) *DemuxLoop {
	return &DemuxLoop{
		log:              log.With("component", "demux-loop"),
		quit:             quit,
		demuxer:          d,
		stats:            stats,
		backpressurePoll: cfg.BackpressurePoll,
		eofIdle:          cfg.EOFIdle,
	}
}

// addRoute selects the stream with the given container index.
func (l *DemuxLoop) addRoute(index int, q *PacketQueue, ceiling int, counter func()) {
	l.routes = append(l.routes, route{index: index, queue: q, ceiling: ceiling, counter: counter})
}

// Run loops until cancellation or a hard read error. Cancellation and ctx
// ending return nil; a read error is returned wrapped in ErrDemux.
func (l *DemuxLoop) Run(ctx context.Context) error {
	ctx, cancel := l.quit.Context(ctx)
	defer cancel()

	for {
		if l.quit.Cancelled() || ctx.Err() != nil {
			return nil
		}

		if full := l.fullRoute(); full != nil {
			l.stats.backpressure.Add(1)
			l.waitDrain(ctx, full)
			continue
		}

		pkt, err := l.demuxer.ReadPacket(ctx)
		if err != nil {
			if l.quit.Cancelled() || ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				l.onEOF()
				l.quit.sleep(ctx, l.eofIdle)
				continue
			}
			l.log.Debug("container read failed", "error", err)
			return fmt.Errorf("%w: %w", ErrDemux, err)
		}

		if err := l.dispatch(pkt); err != nil {
			return nil
		}
	}
}

// dispatch hands pkt to the queue of its stream, discarding packets of
// unselected streams.
func (l *DemuxLoop) dispatch(pkt media.Packet) error {
	for i := range l.routes {
		r := &l.routes[i]
		if r.index != pkt.StreamIndex {
			continue
		}
		if err := r.queue.Put(pkt); err != nil {
			return err
		}
		if r.counter != nil {
			r.counter()
		}
		return nil
	}
	l.stats.discarded.Add(1)
	return nil
}

func (l *DemuxLoop) fullRoute() *route {
	for i := range l.routes {
		if l.routes[i].queue.Size() >= l.routes[i].ceiling {
			return &l.routes[i]
		}
	}
	return nil
}

// waitDrain sleeps until the full queue drains below its ceiling, bounded by
// the backpressure poll interval so the other queue is re-checked too.
func (l *DemuxLoop) waitDrain(ctx context.Context, r *route) {
	waitCtx, cancel := context.WithTimeout(ctx, l.backpressurePoll)
	defer cancel()
	_ = r.queue.WaitBelow(waitCtx, r.ceiling)
}

func (l *DemuxLoop) onEOF() {
	l.stats.eofIdles.Add(1)
	if l.sawEOF {
		return
	}
	l.sawEOF = true
	l.log.Info("end of stream, idling")
	if l.OnEOF != nil {
		l.OnEOF()
	}
}
