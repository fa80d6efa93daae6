package playback

import (
	"context"
	"time"

	"github.com/zsiec/avsync/internal/media"
)

// Demuxer reads compressed packets from a container. ReadPacket returns
// io.EOF on a clean end of stream; any other error is a hard failure.
type Demuxer interface {
	Streams() []media.StreamInfo
	ReadPacket(ctx context.Context) (media.Packet, error)
	Close() error
}

// AudioDecoder turns compressed audio into raw samples. Decode reports how
// many bytes of data it consumed so a packet holding several frames can be
// drained with repeated calls. A nil frame with a nil error means no frame
// is ready yet.
type AudioDecoder interface {
	Decode(data []byte) (consumed int, frame *media.AudioFrame, err error)
	Close() error
}

// VideoDecoder turns one compressed packet into at most one raw frame. A nil
// frame with a nil error means the decoder needs more input.
type VideoDecoder interface {
	Decode(pkt media.Packet) (*media.VideoFrame, error)
	Close() error
}

// Resampler converts raw decoder output into the audio device format. The
// returned slice may alias an internal buffer reused by the next call.
type Resampler interface {
	Resample(frame *media.AudioFrame) ([]byte, error)
}

// ColorConverter converts a raw decoded frame into a presentation picture.
type ColorConverter interface {
	Convert(frame *media.VideoFrame, pts float64) (*media.Picture, error)
}

// Surface accepts pictures for display. Present must not block for long:
// it runs on the scheduler's host goroutine.
type Surface interface {
	Present(pic *media.Picture)
}

// Timer is the host's "call me back after d" facility. The scheduler re-arms
// itself through it instead of sleeping.
type Timer interface {
	AfterFunc(d time.Duration, f func())
}

// AudioFormat describes what the audio device consumes.
type AudioFormat struct {
	SampleRate int
	Channels   int
	Format     media.SampleFormat
}

// BytesPerSecond returns the device consumption rate.
func (f AudioFormat) BytesPerSecond() int {
	return f.SampleRate * f.Channels * f.Format.BytesPerSample()
}
