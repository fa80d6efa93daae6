package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/zsiec/avsync/internal/media"
	"github.com/zsiec/avsync/internal/playback"
)

// S16Resampler converts decoded audio to the device's interleaved S16
// layout: sample format, channel count and rate. Rate conversion is linear
// interpolation carried across calls, so frame boundaries do not click.
type S16Resampler struct {
	target playback.AudioFormat

	in   []float32
	out  []byte
	pos  float64   // read position relative to the next frame
	last []float32 // last input sample per output channel
}

// NewS16Resampler targets format, which must be S16.
func NewS16Resampler(format playback.AudioFormat) (*S16Resampler, error) {
	if format.Format != media.SampleFormatS16 {
		return nil, fmt.Errorf("resampler: device format %d is not S16", format.Format)
	}
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return nil, fmt.Errorf("resampler: invalid device layout %d Hz %d channels", format.SampleRate, format.Channels)
	}
	return &S16Resampler{target: format}, nil
}

// Resample returns device samples for frame. The slice is reused by the
// next call.
func (r *S16Resampler) Resample(frame *media.AudioFrame) ([]byte, error) {
	if frame.SampleRate <= 0 || frame.Channels <= 0 {
		return nil, fmt.Errorf("resampler: invalid frame layout %d Hz %d channels", frame.SampleRate, frame.Channels)
	}
	if frame.Samples == 0 {
		return nil, nil
	}
	if err := r.mix(frame); err != nil {
		return nil, err
	}

	ch := r.target.Channels
	if frame.SampleRate == r.target.SampleRate {
		r.out = growBytes(r.out, frame.Samples*ch*2)
		for i, v := range r.in[:frame.Samples*ch] {
			binary.LittleEndian.PutUint16(r.out[i*2:], uint16(toS16(v)))
		}
		r.remember(frame.Samples)
		return r.out, nil
	}

	step := float64(frame.SampleRate) / float64(r.target.SampleRate)
	if r.last == nil && r.pos < 0 {
		r.pos = 0
	}
	// Index -1 is the last sample of the previous frame.
	at := func(i, c int) float32 {
		if i < 0 {
			return r.last[c]
		}
		return r.in[i*ch+c]
	}
	r.out = r.out[:0]
	for ; r.pos < float64(frame.Samples-1); r.pos += step {
		i := int(math.Floor(r.pos))
		frac := float32(r.pos - float64(i))
		for c := 0; c < ch; c++ {
			a, b := at(i, c), at(i+1, c)
			r.out = binary.LittleEndian.AppendUint16(r.out, uint16(toS16(a+(b-a)*frac)))
		}
	}
	r.pos -= float64(frame.Samples)
	r.remember(frame.Samples)
	return r.out, nil
}

// mix decodes frame into r.in as float samples in the target channel
// layout. Mono is duplicated; downmix to mono averages all channels; other
// mappings reuse input channels in order.
func (r *S16Resampler) mix(frame *media.AudioFrame) error {
	inCh, outCh := frame.Channels, r.target.Channels
	bps := frame.Format.BytesPerSample()
	if bps == 0 {
		return fmt.Errorf("resampler: unknown sample format %d", frame.Format)
	}
	if len(frame.Data) < frame.Samples*inCh*bps {
		return fmt.Errorf("resampler: %d bytes short for %d samples", len(frame.Data), frame.Samples)
	}

	sample := func(i int) float32 {
		if frame.Format == media.SampleFormatF32 {
			return math.Float32frombits(binary.LittleEndian.Uint32(frame.Data[i*4:]))
		}
		return float32(int16(binary.LittleEndian.Uint16(frame.Data[i*2:]))) / 32768
	}

	if cap(r.in) < frame.Samples*outCh {
		r.in = make([]float32, frame.Samples*outCh)
	}
	r.in = r.in[:frame.Samples*outCh]
	for s := 0; s < frame.Samples; s++ {
		base := s * inCh
		if outCh == 1 && inCh > 1 {
			var sum float32
			for c := 0; c < inCh; c++ {
				sum += sample(base + c)
			}
			r.in[s] = sum / float32(inCh)
			continue
		}
		for c := 0; c < outCh; c++ {
			r.in[s*outCh+c] = sample(base + c%inCh)
		}
	}
	return nil
}

func (r *S16Resampler) remember(samples int) {
	ch := r.target.Channels
	if cap(r.last) < ch {
		r.last = make([]float32, ch)
	}
	r.last = r.last[:ch]
	copy(r.last, r.in[(samples-1)*ch:samples*ch])
}

func toS16(v float32) int16 {
	v *= 32768
	switch {
	case v >= math.MaxInt16:
		return math.MaxInt16
	case v <= math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}

func growBytes(b []byte, n int) []byte {
	if cap(b) < n {
		return make([]byte, n)
	}
	return b[:n]
}
