package codec

import (
	"fmt"

	"github.com/zsiec/avsync/internal/media"
)

// pcmChunkSamples bounds how many samples per channel one Decode call
// returns, so a large PCM block is handed out in pieces.
const pcmChunkSamples = 1024

// PCMDecoder passes little-endian signed 16-bit PCM through.
type PCMDecoder struct {
	sampleRate int
	channels   int
}

// NewPCMDecoder describes the PCM layout of a stream.
func NewPCMDecoder(sampleRate, channels int) (*PCMDecoder, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("pcm: invalid layout %d Hz %d channels", sampleRate, channels)
	}
	return &PCMDecoder{sampleRate: sampleRate, channels: channels}, nil
}

// Decode returns up to pcmChunkSamples whole samples and how many bytes
// they span. A trailing partial sample is an error.
func (d *PCMDecoder) Decode(data []byte) (int, *media.AudioFrame, error) {
	block := 2 * d.channels
	if len(data) < block {
		return len(data), nil, fmt.Errorf("pcm: %d trailing bytes shorter than one sample", len(data))
	}
	n := min(len(data)/block, pcmChunkSamples)
	size := n * block
	return size, &media.AudioFrame{
		SampleRate: d.sampleRate,
		Channels:   d.channels,
		Format:     media.SampleFormatS16,
		Samples:    n,
		Data:       data[:size],
	}, nil
}

// Close is a no-op.
func (d *PCMDecoder) Close() error { return nil }
