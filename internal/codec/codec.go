// Package codec provides the decoders, resampler and colour converter the
// player wires into a playback session.
//
// VP8/VP9 decode through libvpx and Opus through libopus. H.264, H.265 and
// AAC have no bundled decoder; the timing decoders stand in for them and
// emit placeholder pictures and silence on the stream's own timeline.
package codec

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/zsiec/avsync/internal/media"
	"github.com/zsiec/avsync/internal/playback"
)

// ErrUnsupportedCodec is returned when no decoder handles a stream.
var ErrUnsupportedCodec = errors.New("codec: unsupported codec")

// NewVideoDecoder returns a decoder for a video stream.
func NewVideoDecoder(info media.StreamInfo, log *slog.Logger) (playback.VideoDecoder, error) {
	if info.Kind != media.KindVideo {
		return nil, fmt.Errorf("%w: stream %d is %s, not video", ErrUnsupportedCodec, info.Index, info.Kind)
	}
	switch info.Codec {
	case media.CodecVP8, media.CodecVP9:
		return NewVPXDecoder(info.Codec, log)
	case media.CodecH264, media.CodecH265:
		return NewTimingVideoDecoder(info, log), nil
	}
	return nil, fmt.Errorf("%w: video %s", ErrUnsupportedCodec, info.Codec)
}

// NewAudioDecoder returns a decoder for an audio stream.
func NewAudioDecoder(info media.StreamInfo, log *slog.Logger) (playback.AudioDecoder, error) {
	if info.Kind != media.KindAudio {
		return nil, fmt.Errorf("%w: stream %d is %s, not audio", ErrUnsupportedCodec, info.Index, info.Kind)
	}
	switch info.Codec {
	case media.CodecOpus:
		return NewOpusDecoder(info.Channels)
	case media.CodecPCMS16LE:
		return NewPCMDecoder(info.SampleRate, info.Channels)
	case media.CodecAAC:
		return NewTimingAudioDecoder(log), nil
	}
	return nil, fmt.Errorf("%w: audio %s", ErrUnsupportedCodec, info.Codec)
}
