package playback

import (
	"context"
	"errors"
	"log/slog"

	"github.com/zsiec/avsync/internal/media"
)

// VideoLoop decodes video packets on a dedicated goroutine and queues the
// converted pictures with their presentation timestamps.
type VideoLoop struct {
	log       *slog.Logger
	queue     *PacketQueue
	decoder   VideoDecoder
	converter ColorConverter
	pictures  *PictureQueue
	clock     *VideoClock
	stats     *counters
}

func newVideoLoop(log *slog.Logger, q *PacketQueue, dec VideoDecoder, conv ColorConverter, pics *PictureQueue, clock *VideoClock, stats *counters) *VideoLoop {
	return &VideoLoop{
		log:       log.With("component", "video"),
		queue:     q,
		decoder:   dec,
		converter: conv,
		pictures:  pics,
		clock:     clock,
		stats:     stats,
	}
}

// Run decodes until the session is cancelled. Decode and conversion errors
// skip the packet; only cancellation ends the loop, and it returns nil.
func (l *VideoLoop) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		pkt, err := l.queue.Get(true)
		if err != nil {
			return nil
		}

		frame, err := l.decoder.Decode(pkt)
		if err != nil {
			l.stats.videoDecErr.Add(1)
			l.log.Debug("skipping undecodable video packet", "bytes", pkt.Size(), "error", err)
			continue
		}
		if frame == nil {
			continue
		}

		pts := l.clock.Synchronize(media.Seconds(frame.PTS), frame.Repeat)

		pic, err := l.converter.Convert(frame, pts)
		if err != nil {
			l.stats.videoDecErr.Add(1)
			l.log.Debug("skipping unconvertible video frame", "pts", pts, "error", err)
			continue
		}

		if err := l.pictures.Push(pic); err != nil {
			if errors.Is(err, ErrCancelled) {
				return nil
			}
			return err
		}
		l.stats.picsQueued.Add(1)
	}
}
