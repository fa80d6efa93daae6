package codec

import (
	"fmt"

	opus "github.com/qrtc/opus-go"

	"github.com/zsiec/avsync/internal/media"
)

const (
	opusSampleRate = 48000
	// 120 ms, the longest Opus packet.
	opusMaxFrameSamples = 5760
)

// OpusDecoder decodes Opus packets to 48 kHz interleaved S16.
type OpusDecoder struct {
	dec      *opus.OpusDecoder
	channels int
	out      []byte
}

// NewOpusDecoder creates a decoder for channels (1 or 2; 0 means stereo).
func NewOpusDecoder(channels int) (*OpusDecoder, error) {
	if channels == 0 {
		channels = 2
	}
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("opus: only 1 or 2 channels are supported, got %d", channels)
	}
	dec, err := opus.CreateOpusDecoder(&opus.OpusDecoderConfig{
		SampleRate:  opusSampleRate,
		MaxChannels: channels,
	})
	if err != nil {
		return nil, fmt.Errorf("creating opus decoder: %w", err)
	}
	return &OpusDecoder{
		dec:      dec,
		channels: channels,
		out:      make([]byte, opusMaxFrameSamples*channels*2),
	}, nil
}

// Decode consumes the whole packet; Opus packets are self-delimited by the
// container.
func (d *OpusDecoder) Decode(data []byte) (int, *media.AudioFrame, error) {
	n, err := d.dec.Decode(data, d.out)
	if err != nil {
		return len(data), nil, fmt.Errorf("opus decode: %w", err)
	}
	if n <= 0 {
		return len(data), nil, nil
	}
	return len(data), &media.AudioFrame{
		SampleRate: opusSampleRate,
		Channels:   d.channels,
		Format:     media.SampleFormatS16,
		Samples:    n / (2 * d.channels),
		Data:       d.out[:n],
	}, nil
}

// Close releases the libopus decoder.
func (d *OpusDecoder) Close() error {
	if d.dec != nil {
		d.dec.Close()
		d.dec = nil
	}
	return nil
}
