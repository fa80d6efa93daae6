package playback

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/zsiec/avsync/internal/media"
)

func newTestAudio(quit *Quit, bytesPerSecond int) (*AudioPipeline, *PacketQueue, *counters) {
	q := NewPacketQueue(quit)
	stats := &counters{}
	p := newAudioPipeline(slog.Default(), DefaultConfig(), q, &chunkDecoder{}, passthroughResampler{}, NewAudioClock(bytesPerSecond), stats)
	return p, q, stats
}

func TestAudioFillDrainsMultiFramePacket(t *testing.T) {
	t.Parallel()
	p, q, stats := newTestAudio(NewQuit(), 4)

	_ = q.Put(audioPacket(time.Second, []byte{1, 2, 3, 4, 5, 6, 7, 8}))

	out := make([]byte, 4)
	p.Fill(out)
	if !bytes.Equal(out, []byte{1, 2, 3, 4}) {
		t.Errorf("first fill: got %v", out)
	}
	if !approx(p.Clock(), 2.0) {
		t.Errorf("clock after first frame: got %v, want 2.0", p.Clock())
	}

	p.Fill(out)
	if !bytes.Equal(out, []byte{5, 6, 7, 8}) {
		t.Errorf("second fill: got %v", out)
	}
	if !approx(p.Clock(), 3.0) {
		t.Errorf("clock after second frame: got %v, want 3.0", p.Clock())
	}
	if got := stats.audioFrames.Load(); got != 2 {
		t.Errorf("frames: got %d, want 2", got)
	}
}

func TestAudioFillSpansFrames(t *testing.T) {
	t.Parallel()
	p, q, _ := newTestAudio(NewQuit(), 4)

	_ = q.Put(audioPacket(0, []byte{1, 2, 3, 4}))
	_ = q.Put(audioPacket(time.Second, []byte{5, 6, 7, 8}))

	out := make([]byte, 6)
	p.Fill(out)
	if !bytes.Equal(out, []byte{1, 2, 3, 4, 5, 6}) {
		t.Errorf("got %v", out)
	}
	// Base is 2.0 after the second packet; two bytes still buffered.
	if !approx(p.Clock(), 1.5) {
		t.Errorf("clock: got %v, want 1.5", p.Clock())
	}
}

func TestAudioDecodeErrorDropsPacket(t *testing.T) {
	t.Parallel()
	p, q, stats := newTestAudio(NewQuit(), 4)

	_ = q.Put(audioPacket(0, []byte{0xFF, 0, 0, 0, 9, 9, 9, 9}))
	_ = q.Put(audioPacket(time.Second, []byte{1, 2, 3, 4}))

	out := make([]byte, 4)
	p.Fill(out)
	if !bytes.Equal(out, []byte{1, 2, 3, 4}) {
		t.Errorf("got %v, want the next good packet", out)
	}
	if got := stats.audioDecErr.Load(); got != 1 {
		t.Errorf("decode errors: got %d, want 1", got)
	}
}

func TestAudioFillSilenceOnCancel(t *testing.T) {
	t.Parallel()
	quit := NewQuit()
	p, _, stats := newTestAudio(quit, 4)
	quit.Cancel()

	out := bytes.Repeat([]byte{0xAA}, 2048)
	done := make(chan struct{})
	go func() {
		p.Fill(out)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Fill blocked after cancel")
	}
	if !bytes.Equal(out, make([]byte, len(out))) {
		t.Error("expected silence after cancel")
	}
	if got := stats.audioUnderrun.Load(); got != 2 {
		t.Errorf("underruns: got %d, want 2", got)
	}
}

func TestAudioPacketWithoutPTSKeepsClock(t *testing.T) {
	t.Parallel()
	p, q, _ := newTestAudio(NewQuit(), 4)

	_ = q.Put(audioPacket(time.Second, []byte{1, 2, 3, 4}))
	pkt := audioPacket(0, []byte{5, 6, 7, 8})
	pkt.PTS = media.NoTimestamp
	_ = q.Put(pkt)

	out := make([]byte, 8)
	p.Fill(out)
	if !approx(p.Clock(), 3.0) {
		t.Errorf("clock: got %v, want 3.0", p.Clock())
	}
}
