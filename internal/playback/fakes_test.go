package playback

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/zsiec/avsync/internal/media"
)

type fakeDemuxer struct {
	mu      sync.Mutex
	streams []media.StreamInfo
	pkts    []media.Packet
	tail    error // returned once pkts run out; io.EOF when nil
	reads   int
	closed  bool
}

func (d *fakeDemuxer) Streams() []media.StreamInfo { return d.streams }

func (d *fakeDemuxer) ReadPacket(ctx context.Context) (media.Packet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reads++
	if len(d.pkts) > 0 {
		pkt := d.pkts[0]
		d.pkts = d.pkts[1:]
		return pkt, nil
	}
	if d.tail != nil {
		return media.Packet{}, d.tail
	}
	return media.Packet{}, io.EOF
}

func (d *fakeDemuxer) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func (d *fakeDemuxer) readCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads
}

var errBadFrame = errors.New("bad frame")

// chunkDecoder emits one frame per 4 input bytes. A chunk starting with 0xFF
// fails to decode.
type chunkDecoder struct {
	closed bool
}

func (d *chunkDecoder) Decode(data []byte) (int, *media.AudioFrame, error) {
	if len(data) > 0 && data[0] == 0xFF {
		return 0, nil, errBadFrame
	}
	n := min(4, len(data))
	return n, &media.AudioFrame{
		SampleRate: 1,
		Channels:   2,
		Format:     media.SampleFormatS16,
		Samples:    n / 4,
		Data:       append([]byte(nil), data[:n]...),
	}, nil
}

func (d *chunkDecoder) Close() error {
	d.closed = true
	return nil
}

type passthroughResampler struct{}

func (passthroughResampler) Resample(f *media.AudioFrame) ([]byte, error) {
	return f.Data, nil
}

// stampDecoder turns each packet into a frame carrying the packet PTS. A
// packet starting with 0xFF fails to decode.
type stampDecoder struct{}

func (stampDecoder) Decode(pkt media.Packet) (*media.VideoFrame, error) {
	if len(pkt.Data) > 0 && pkt.Data[0] == 0xFF {
		return nil, errBadFrame
	}
	return &media.VideoFrame{Width: 2, Height: 2, PTS: pkt.PTS}, nil
}

func (stampDecoder) Close() error { return nil }

type ptsConverter struct{}

func (ptsConverter) Convert(f *media.VideoFrame, pts float64) (*media.Picture, error) {
	return &media.Picture{Width: f.Width, Height: f.Height, Format: media.PixelFormatRGBA, PTS: pts}, nil
}

type recordingSurface struct {
	mu   sync.Mutex
	pics []*media.Picture
}

func (s *recordingSurface) Present(pic *media.Picture) {
	s.mu.Lock()
	s.pics = append(s.pics, pic)
	s.mu.Unlock()
}

func (s *recordingSurface) presented() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float64, len(s.pics))
	for i, p := range s.pics {
		out[i] = p.PTS
	}
	return out
}

type timerCall struct {
	d time.Duration
	f func()
}

// manualTimer queues callbacks until the test fires them.
type manualTimer struct {
	mu    sync.Mutex
	calls []timerCall
}

func (t *manualTimer) AfterFunc(d time.Duration, f func()) {
	t.mu.Lock()
	t.calls = append(t.calls, timerCall{d: d, f: f})
	t.mu.Unlock()
}

func (t *manualTimer) pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

// fire runs the oldest pending callback and returns the delay it was armed
// with.
func (t *manualTimer) fire(tb testing.TB) time.Duration {
	tb.Helper()
	t.mu.Lock()
	if len(t.calls) == 0 {
		t.mu.Unlock()
		tb.Fatal("no pending timer callback")
	}
	c := t.calls[0]
	t.calls = t.calls[1:]
	t.mu.Unlock()
	c.f()
	return c.d
}

// fakeClock is a settable wall clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func videoPacket(pts time.Duration, size int) media.Packet {
	return media.Packet{Kind: media.KindVideo, StreamIndex: 0, PTS: pts, DTS: media.NoTimestamp, Data: make([]byte, size)}
}

func audioPacket(pts time.Duration, data []byte) media.Packet {
	return media.Packet{Kind: media.KindAudio, StreamIndex: 1, PTS: pts, DTS: media.NoTimestamp, Data: data}
}

func waitFor(tb testing.TB, what string, cond func() bool) {
	tb.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			tb.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
