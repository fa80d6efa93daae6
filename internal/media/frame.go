package media

import "time"

// PixelFormat tags the memory layout of a picture or raw video frame.
type PixelFormat int

// Pixel formats.
const (
	PixelFormatNone PixelFormat = iota
	PixelFormatRGBA
	PixelFormatI420
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatRGBA:
		return "rgba"
	case PixelFormatI420:
		return "i420"
	default:
		return "none"
	}
}

// SampleFormat tags the layout of raw audio samples.
type SampleFormat int

// Sample formats. Multi-channel data is always interleaved.
const (
	SampleFormatS16 SampleFormat = iota + 1
	SampleFormatF32
)

// BytesPerSample returns the size of one sample of one channel.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case SampleFormatS16:
		return 2
	case SampleFormatF32:
		return 4
	default:
		return 0
	}
}

// VideoFrame is a raw decoded video frame before colour conversion.
// Repeat is the decoder's repeat hint: the frame should be shown for
// 1 + Repeat/2 nominal frame durations.
type VideoFrame struct {
	Width   int
	Height  int
	Format  PixelFormat
	Planes  [][]byte
	Strides []int
	PTS     time.Duration
	Repeat  int
}

// AudioFrame is a block of raw decoded audio samples.
type AudioFrame struct {
	SampleRate int
	Channels   int
	Format     SampleFormat
	Samples    int // per channel
	Data       []byte
}

// Duration returns the playback duration of the frame.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate == 0 {
		return 0
	}
	return time.Second * time.Duration(f.Samples) / time.Duration(f.SampleRate)
}

// Picture is a presentation-ready frame. A picture is owned by its picture
// queue slot until presented, after which it belongs to the surface.
type Picture struct {
	Width  int
	Height int
	Format PixelFormat
	Stride int
	Pix    []byte
	PTS    float64 // seconds
}
