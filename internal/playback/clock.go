package playback

import (
	"math"
	"sync/atomic"
)

// atomicFloat is a float64 published with a single atomic store, so
// readers on other goroutines see a whole value, possibly a stale one.
type atomicFloat struct {
	bits atomic.Uint64
}

func (f *atomicFloat) Load() float64 {
	return math.Float64frombits(f.bits.Load())
}

func (f *atomicFloat) Store(v float64) {
	f.bits.Store(math.Float64bits(v))
}

// AudioClock is the master reference clock. The audio pipeline is its only
// writer: base is the PTS at the end of the decoded buffer, and buffered is
// the number of decoded bytes not yet handed to the device. The scheduler
// reads it from another goroutine; the two fields are published separately
// and a reader may pair a fresh base with a stale remainder. Sync correction
// only needs coarse convergence, so that is tolerated.
type AudioClock struct {
	base           atomicFloat
	buffered       atomic.Int64
	bytesPerSecond int
}

// NewAudioClock returns a clock for a device consuming bytesPerSecond.
func NewAudioClock(bytesPerSecond int) *AudioClock {
	return &AudioClock{bytesPerSecond: bytesPerSecond}
}

// Reset anchors the base to the PTS of a freshly consumed packet.
func (c *AudioClock) Reset(pts float64) {
	c.base.Store(pts)
}

// Advance moves the base forward by n freshly decoded bytes.
func (c *AudioClock) Advance(n int) {
	if c.bytesPerSecond <= 0 {
		return
	}
	c.base.Store(c.base.Load() + float64(n)/float64(c.bytesPerSecond))
}

// SetBuffered records how many decoded bytes are still waiting to be played.
func (c *AudioClock) SetBuffered(n int) {
	c.buffered.Store(int64(n))
}

// Base returns the PTS at the end of the decoded buffer.
func (c *AudioClock) Base() float64 {
	return c.base.Load()
}

// Now returns the presentation time of the sample the device is about to
// play: base minus the playing time of the bytes still buffered.
func (c *AudioClock) Now() float64 {
	pts := c.base.Load()
	if c.bytesPerSecond > 0 {
		pts -= float64(c.buffered.Load()) / float64(c.bytesPerSecond)
	}
	return pts
}

// VideoClock predicts the PTS of the next frame leaving the decoder. It is
// owned by the video decode loop.
type VideoClock struct {
	next          atomicFloat
	frameDuration float64
}

// NewVideoClock returns a clock advancing by frameDuration seconds per frame.
func NewVideoClock(frameDuration float64) *VideoClock {
	return &VideoClock{frameDuration: frameDuration}
}

// Synchronize returns the PTS to use for a decoded frame and advances the
// prediction. A valid decoder PTS (not NaN, and non-zero like the reference
// player treats it) resets the prediction; otherwise the prediction is used.
// The prediction then advances by frameDuration*(1 + repeat/2).
func (c *VideoClock) Synchronize(pts float64, repeat int) float64 {
	if !math.IsNaN(pts) && pts != 0 {
		c.next.Store(pts)
	} else {
		pts = c.next.Load()
	}
	delay := c.frameDuration + float64(repeat)*c.frameDuration*0.5
	c.next.Store(pts + delay)
	return pts
}

// Predicted returns the PTS the next frame will get if it carries none.
func (c *VideoClock) Predicted() float64 {
	return c.next.Load()
}
