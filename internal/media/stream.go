package media

import (
	"fmt"
	"time"
)

// Codec identifies the bitstream format of an elementary stream.
type Codec string

// Codecs understood by the bundled containers and decoders.
const (
	CodecH264     Codec = "h264"
	CodecH265     Codec = "h265"
	CodecVP8      Codec = "vp8"
	CodecVP9      Codec = "vp9"
	CodecAAC      Codec = "aac"
	CodecOpus     Codec = "opus"
	CodecPCMS16LE Codec = "pcm_s16le"
)

// StreamInfo describes one elementary stream discovered in a container.
// FrameDuration is the nominal duration of one video frame (or one audio
// frame when the container signals it) and may be zero when unknown.
type StreamInfo struct {
	Index         int
	Kind          Kind
	Codec         Codec
	Width         int
	Height        int
	SampleRate    int
	Channels      int
	FrameDuration time.Duration
}

func (s StreamInfo) String() string {
	switch s.Kind {
	case KindVideo:
		return fmt.Sprintf("#%d video %s %dx%d", s.Index, s.Codec, s.Width, s.Height)
	case KindAudio:
		return fmt.Sprintf("#%d audio %s %dHz %dch", s.Index, s.Codec, s.SampleRate, s.Channels)
	default:
		return fmt.Sprintf("#%d %s %s", s.Index, s.Kind, s.Codec)
	}
}

// FirstOfKind returns the first stream of the given kind, or false.
func FirstOfKind(streams []StreamInfo, kind Kind) (StreamInfo, bool) {
	for _, s := range streams {
		if s.Kind == kind {
			return s, true
		}
	}
	return StreamInfo{}, false
}
