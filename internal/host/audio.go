package host

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"
)

// FillFunc fills buf completely with device samples.
type FillFunc func(buf []byte)

// PacedAudioDevice stands in for a sound card. It pulls fixed-size buffers
// from a FillFunc at the rate a real device would consume them, anchored to
// the wall time of the first pull, and optionally writes them to a sink.
type PacedAudioDevice struct {
	log            *slog.Logger
	bufferBytes    int
	bytesPerSecond int
	sink           io.Writer
	now            func() time.Time

	pulls   atomic.Int64
	written atomic.Int64
}

// NewPacedAudioDevice pulls bufferBytes at a time from a stream consumed at
// bytesPerSecond. sink may be nil.
func NewPacedAudioDevice(bufferBytes, bytesPerSecond int, sink io.Writer, log *slog.Logger) (*PacedAudioDevice, error) {
	if bufferBytes <= 0 || bytesPerSecond <= 0 {
		return nil, fmt.Errorf("audio device: invalid buffer %d bytes at %d bytes/s", bufferBytes, bytesPerSecond)
	}
	if log == nil {
		log = slog.Default()
	}
	return &PacedAudioDevice{
		log:            log.With("component", "audio-device"),
		bufferBytes:    bufferBytes,
		bytesPerSecond: bytesPerSecond,
		sink:           sink,
		now:            time.Now,
	}, nil
}

// BufferDuration is the playback time of one pulled buffer.
func (d *PacedAudioDevice) BufferDuration() time.Duration {
	return time.Duration(d.bufferBytes) * time.Second / time.Duration(d.bytesPerSecond)
}

// Run pulls buffers until ctx is done. A sink write error stops the device
// and is returned.
func (d *PacedAudioDevice) Run(ctx context.Context, fill FillFunc) error {
	buf := make([]byte, d.bufferBytes)
	start := d.now()
	var delivered int64

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C
	d.log.Debug("started", "buffer", d.BufferDuration(), "bytes", d.bufferBytes)

	for {
		if ctx.Err() != nil {
			return nil
		}
		fill(buf)
		d.pulls.Add(1)
		if d.sink != nil {
			if _, err := d.sink.Write(buf); err != nil {
				return fmt.Errorf("audio sink: %w", err)
			}
			d.written.Add(int64(len(buf)))
		}
		delivered += int64(len(buf))

		due := start.Add(time.Duration(float64(delivered) / float64(d.bytesPerSecond) * float64(time.Second)))
		wait := due.Sub(d.now())
		if wait <= 0 {
			continue
		}
		timer.Reset(wait)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}

// Pulls returns how many buffers have been filled.
func (d *PacedAudioDevice) Pulls() int64 {
	return d.pulls.Load()
}

// Written returns how many bytes reached the sink.
func (d *PacedAudioDevice) Written() int64 {
	return d.written.Load()
}
