package playback

import (
	"log/slog"

	"github.com/zsiec/avsync/internal/media"
)

// AudioPipeline is the pull side of audio playback. The host's audio device
// calls Fill from its own goroutine whenever it needs more samples; the
// pipeline decodes on demand from the audio packet queue and keeps the
// master clock current.
type AudioPipeline struct {
	log       *slog.Logger
	queue     *PacketQueue
	decoder   AudioDecoder
	resampler Resampler
	clock     *AudioClock
	stats     *counters
	silence   int

	buf     []byte // device-format samples
	size    int    // filled bytes in buf
	index   int    // read cursor into buf
	pending []byte // undecoded remainder of the current packet
}

func newAudioPipeline(log *slog.Logger, cfg Config, q *PacketQueue, dec AudioDecoder, rs Resampler, clock *AudioClock, stats *counters) *AudioPipeline {
	return &AudioPipeline{
		log:       log.With("component", "audio"),
		queue:     q,
		decoder:   dec,
		resampler: rs,
		clock:     clock,
		stats:     stats,
		silence:   cfg.AudioSilenceBytes,
	}
}

// Fill writes exactly len(out) bytes of device-format audio. When no more
// audio can be decoded because the session is cancelled, silence is
// substituted for the rest of the request.
func (p *AudioPipeline) Fill(out []byte) {
	for len(out) > 0 {
		if p.index >= p.size {
			n, err := p.decodeNextFrame()
			if err != nil {
				p.stats.audioUnderrun.Add(1)
				p.buf = growBytes(p.buf, p.silence)
				clear(p.buf[:p.silence])
				n = p.silence
			}
			p.size = n
			p.index = 0
		}
		n := copy(out, p.buf[p.index:p.size])
		out = out[n:]
		p.index += n
		p.clock.SetBuffered(p.size - p.index)
	}
}

// Clock returns the current audio presentation time in seconds.
func (p *AudioPipeline) Clock() float64 {
	return p.clock.Now()
}

// decodeNextFrame fills buf with the next chunk of device-format samples and
// returns its size. A packet may hold several frames, so the remainder of
// the current packet is drained before the next one is pulled. Decode
// failures drop the rest of the offending packet. The only error returned
// is ErrCancelled.
func (p *AudioPipeline) decodeNextFrame() (int, error) {
	for {
		for len(p.pending) > 0 {
			consumed, frame, err := p.decoder.Decode(p.pending)
			if err != nil {
				p.stats.audioDecErr.Add(1)
				p.log.Debug("dropping undecodable audio packet", "bytes", len(p.pending), "error", err)
				p.pending = nil
				break
			}
			if consumed <= 0 || consumed > len(p.pending) {
				consumed = len(p.pending)
			}
			p.pending = p.pending[consumed:]
			if frame == nil {
				continue
			}

			data, err := p.resampler.Resample(frame)
			if err != nil {
				p.stats.audioDecErr.Add(1)
				p.log.Debug("dropping unconvertible audio frame", "samples", frame.Samples, "error", err)
				continue
			}
			if len(data) == 0 {
				continue
			}

			p.buf = growBytes(p.buf, len(data))
			copy(p.buf, data)
			p.clock.Advance(len(data))
			p.clock.SetBuffered(len(data))
			p.stats.audioFrames.Add(1)
			return len(data), nil
		}

		pkt, err := p.queue.Get(true)
		if err != nil {
			return 0, err
		}
		p.pending = pkt.Data
		if pkt.HasPTS() {
			p.clock.Reset(media.Seconds(pkt.PTS))
		}
	}
}

func growBytes(b []byte, n int) []byte {
	if cap(b) < n {
		return make([]byte, n)
	}
	return b[:n]
}
