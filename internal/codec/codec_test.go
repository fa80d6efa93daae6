package codec

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/zsiec/avsync/internal/media"
	"github.com/zsiec/avsync/internal/playback"
)

// 256x192 H.264 SPS.
var testSPS = []byte{
	0x67, 0x4d, 0x40, 0x1f, 0xb9, 0x08, 0x08, 0x0c,
	0xd8, 0x0b, 0x50, 0x10, 0x10, 0x14, 0x00, 0x00,
	0x0f, 0xa4, 0x00, 0x02, 0xee, 0x03, 0x81, 0x80,
	0x04, 0x93, 0xc0, 0x02, 0x49, 0xe8, 0xa0, 0xc0,
	0x3a, 0x8e, 0x18, 0xc9,
}

func annexB(nals ...[]byte) []byte {
	var b []byte
	for _, n := range nals {
		b = append(b, 0, 0, 0, 1)
		b = append(b, n...)
	}
	return b
}

// adtsFrame builds an AAC-LC 48 kHz ADTS frame.
func adtsFrame(channels int, payload ...byte) []byte {
	n := 7 + len(payload)
	h := []byte{0xFF, 0xF1, byte(1<<6 | 3<<2 | channels>>2), byte((channels&3)<<6 | (n>>11)&3), byte(n >> 3), byte((n&7)<<5 | 0x1F), 0xFC}
	return append(h, payload...)
}

func s16(vals ...int16) []byte {
	b := make([]byte, 0, len(vals)*2)
	for _, v := range vals {
		b = binary.LittleEndian.AppendUint16(b, uint16(v))
	}
	return b
}

func readS16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

func TestDispatch(t *testing.T) {
	t.Parallel()

	if _, err := NewVideoDecoder(media.StreamInfo{Kind: media.KindVideo, Codec: "av1"}, nil); !errors.Is(err, ErrUnsupportedCodec) {
		t.Errorf("av1: got %v, want ErrUnsupportedCodec", err)
	}
	if _, err := NewVideoDecoder(media.StreamInfo{Kind: media.KindAudio, Codec: media.CodecAAC}, nil); !errors.Is(err, ErrUnsupportedCodec) {
		t.Errorf("audio as video: got %v, want ErrUnsupportedCodec", err)
	}
	if _, err := NewAudioDecoder(media.StreamInfo{Kind: media.KindAudio, Codec: "mp3"}, nil); !errors.Is(err, ErrUnsupportedCodec) {
		t.Errorf("mp3: got %v, want ErrUnsupportedCodec", err)
	}

	v, err := NewVideoDecoder(media.StreamInfo{Kind: media.KindVideo, Codec: media.CodecH264}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := v.(*TimingVideoDecoder); !ok {
		t.Errorf("h264: got %T, want *TimingVideoDecoder", v)
	}
	a, err := NewAudioDecoder(media.StreamInfo{Kind: media.KindAudio, Codec: media.CodecPCMS16LE, SampleRate: 8000, Channels: 1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := a.(*PCMDecoder); !ok {
		t.Errorf("pcm: got %T, want *PCMDecoder", a)
	}
}

func TestPCMDecoderChunks(t *testing.T) {
	t.Parallel()
	d, err := NewPCMDecoder(48000, 2)
	if err != nil {
		t.Fatal(err)
	}
	data := make([]byte, (pcmChunkSamples+10)*4)

	n, frame, err := d.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if n != pcmChunkSamples*4 || frame.Samples != pcmChunkSamples {
		t.Errorf("first chunk: consumed %d samples %d, want %d and %d", n, frame.Samples, pcmChunkSamples*4, pcmChunkSamples)
	}
	n, frame, err = d.Decode(data[n:])
	if err != nil {
		t.Fatal(err)
	}
	if n != 40 || frame.Samples != 10 {
		t.Errorf("second chunk: consumed %d samples %d, want 40 and 10", n, frame.Samples)
	}
	if _, _, err := d.Decode([]byte{1}); err == nil {
		t.Error("partial sample should fail")
	}
}

func TestTimingVideoDecoder(t *testing.T) {
	t.Parallel()
	d := NewTimingVideoDecoder(media.StreamInfo{Codec: media.CodecH264}, nil)

	if _, err := d.Decode(media.Packet{Data: annexB([]byte{0x41, 0x9A})}); !errors.Is(err, errSizeUnknown) {
		t.Errorf("slice before SPS: got %v, want errSizeUnknown", err)
	}

	frame, err := d.Decode(media.Packet{Data: annexB([]byte{0x68, 0xCE}), PTS: 0})
	if err != nil || frame != nil {
		t.Errorf("parameter sets only: got %v, %v, want no frame", frame, err)
	}

	frame, err = d.Decode(media.Packet{Data: annexB(testSPS, []byte{0x65, 0x88}), PTS: 1234})
	if err != nil {
		t.Fatal(err)
	}
	if frame.Width != 256 || frame.Height != 192 || frame.Format != media.PixelFormatI420 {
		t.Errorf("frame: got %dx%d %s, want 256x192 i420", frame.Width, frame.Height, frame.Format)
	}
	if frame.PTS != 1234 {
		t.Errorf("pts: got %v, want 1234", frame.PTS)
	}
	if len(frame.Planes[0]) != 256*192 || len(frame.Planes[1]) != 128*96 {
		t.Errorf("plane sizes: got %d and %d", len(frame.Planes[0]), len(frame.Planes[1]))
	}
}

func TestTimingAudioDecoderConsumesOneFrame(t *testing.T) {
	t.Parallel()
	d := NewTimingAudioDecoder(nil)
	data := append(adtsFrame(2, 1, 2, 3), adtsFrame(2, 4)...)

	n, frame, err := d.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if n != 10 {
		t.Errorf("consumed: got %d, want 10", n)
	}
	if frame.Samples != 1024 || frame.SampleRate != 48000 || frame.Channels != 2 {
		t.Errorf("frame: got %+v", frame)
	}
	if len(frame.Data) != 1024*2*2 {
		t.Errorf("silence bytes: got %d", len(frame.Data))
	}

	if n, _, err = d.Decode(data[n:]); err != nil || n != 8 {
		t.Errorf("second frame: got %d, %v, want 8 bytes", n, err)
	}
	if _, _, err := d.Decode([]byte{1, 2, 3, 4, 5, 6, 7}); err == nil {
		t.Error("garbage should fail")
	}
}

func TestResamplerPassthrough(t *testing.T) {
	t.Parallel()
	r, err := NewS16Resampler(playback.AudioFormat{SampleRate: 48000, Channels: 2, Format: media.SampleFormatS16})
	if err != nil {
		t.Fatal(err)
	}
	in := s16(1, -1, 32767, -32768)
	out, err := r.Resample(&media.AudioFrame{SampleRate: 48000, Channels: 2, Format: media.SampleFormatS16, Samples: 2, Data: in})
	if err != nil {
		t.Fatal(err)
	}
	got := readS16(out)
	want := []int16{1, -1, 32767, -32768}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestResamplerChannelMapping(t *testing.T) {
	t.Parallel()
	stereo, _ := NewS16Resampler(playback.AudioFormat{SampleRate: 8000, Channels: 2, Format: media.SampleFormatS16})
	out, err := stereo.Resample(&media.AudioFrame{SampleRate: 8000, Channels: 1, Format: media.SampleFormatS16, Samples: 2, Data: s16(100, -200)})
	if err != nil {
		t.Fatal(err)
	}
	if got := readS16(out); len(got) != 4 || got[0] != 100 || got[1] != 100 || got[2] != -200 || got[3] != -200 {
		t.Errorf("mono to stereo: got %v", got)
	}

	mono, _ := NewS16Resampler(playback.AudioFormat{SampleRate: 8000, Channels: 1, Format: media.SampleFormatS16})
	out, err = mono.Resample(&media.AudioFrame{SampleRate: 8000, Channels: 2, Format: media.SampleFormatS16, Samples: 1, Data: s16(100, 300)})
	if err != nil {
		t.Fatal(err)
	}
	if got := readS16(out); len(got) != 1 || got[0] != 200 {
		t.Errorf("stereo to mono: got %v, want [200]", got)
	}
}

func TestResamplerFloatInput(t *testing.T) {
	t.Parallel()
	r, _ := NewS16Resampler(playback.AudioFormat{SampleRate: 48000, Channels: 1, Format: media.SampleFormatS16})
	data := binary.LittleEndian.AppendUint32(nil, math.Float32bits(0.5))
	data = binary.LittleEndian.AppendUint32(data, math.Float32bits(2))
	out, err := r.Resample(&media.AudioFrame{SampleRate: 48000, Channels: 1, Format: media.SampleFormatF32, Samples: 2, Data: data})
	if err != nil {
		t.Fatal(err)
	}
	if got := readS16(out); got[0] != 16384 || got[1] != 32767 {
		t.Errorf("got %v, want [16384 32767]", got)
	}
}

func TestResamplerRateConversionIsContinuous(t *testing.T) {
	t.Parallel()
	r, _ := NewS16Resampler(playback.AudioFormat{SampleRate: 48000, Channels: 1, Format: media.SampleFormatS16})
	frame := func(vals ...int16) *media.AudioFrame {
		return &media.AudioFrame{SampleRate: 24000, Channels: 1, Format: media.SampleFormatS16, Samples: len(vals), Data: s16(vals...)}
	}

	out, err := r.Resample(frame(0, 100, 200, 300))
	if err != nil {
		t.Fatal(err)
	}
	first := readS16(out)
	if len(first) != 6 {
		t.Fatalf("first frame: got %d samples, want 6", len(first))
	}

	out, err = r.Resample(frame(400, 500, 600, 700))
	if err != nil {
		t.Fatal(err)
	}
	second := readS16(out)
	if len(second) != 8 {
		t.Fatalf("second frame: got %d samples, want 8", len(second))
	}

	all := append(first, second...)
	for i, v := range all {
		if want := int16(i * 50); absDiff(v, want) > 1 {
			t.Errorf("sample %d: got %d, want %d", i, v, want)
		}
	}
}

func absDiff(a, b int16) int {
	d := int(a) - int(b)
	if d < 0 {
		return -d
	}
	return d
}

func TestResamplerRejectsNonS16Device(t *testing.T) {
	t.Parallel()
	if _, err := NewS16Resampler(playback.AudioFormat{SampleRate: 48000, Channels: 2, Format: media.SampleFormatF32}); err == nil {
		t.Error("f32 device should be rejected")
	}
}

func TestConvertI420(t *testing.T) {
	t.Parallel()
	d := NewTimingVideoDecoder(media.StreamInfo{Codec: media.CodecH264, Width: 4, Height: 2}, nil)
	frame, err := d.Decode(media.Packet{Data: annexB([]byte{0x65, 0x88})})
	if err != nil {
		t.Fatal(err)
	}

	pic, err := RGBAConverter{}.Convert(frame, 1.5)
	if err != nil {
		t.Fatal(err)
	}
	if pic.Width != 4 || pic.Height != 2 || pic.Stride != 16 || pic.PTS != 1.5 {
		t.Errorf("picture: got %dx%d stride %d pts %v", pic.Width, pic.Height, pic.Stride, pic.PTS)
	}
	for i := 0; i < len(pic.Pix); i += 4 {
		if pic.Pix[i] != 130 || pic.Pix[i+1] != 130 || pic.Pix[i+2] != 130 || pic.Pix[i+3] != 255 {
			t.Fatalf("pixel %d: got %v, want mid grey", i/4, pic.Pix[i:i+4])
		}
	}
}

func TestConvertRGBAPackedFromPaddedStride(t *testing.T) {
	t.Parallel()
	src := make([]byte, 2*12)
	for i := range 8 {
		src[i] = byte(i + 1)
		src[12+i] = byte(i + 11)
	}
	frame := &media.VideoFrame{Width: 2, Height: 2, Format: media.PixelFormatRGBA, Planes: [][]byte{src}, Strides: []int{12}}

	pic, err := RGBAConverter{}.Convert(frame, 0)
	if err != nil {
		t.Fatal(err)
	}
	if pic.Pix[0] != 1 || pic.Pix[7] != 8 || pic.Pix[8] != 11 || pic.Pix[15] != 18 {
		t.Errorf("got %v", pic.Pix)
	}

	frame.Format = media.PixelFormatNone
	if _, err := (RGBAConverter{}).Convert(frame, 0); err == nil {
		t.Error("unknown format should fail")
	}
}
