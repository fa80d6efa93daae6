package codec

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/zsiec/avsync/internal/bitstream"
	"github.com/zsiec/avsync/internal/media"
)

var errSizeUnknown = errors.New("codec: picture size unknown before first SPS")

// TimingVideoDecoder emits one mid-grey I420 frame per coded picture. It
// tracks the picture size from in-band SPS so the presentation path sees
// real dimensions and timestamps without a software H.264/H.265 decoder.
type TimingVideoDecoder struct {
	log    *slog.Logger
	hevc   bool
	width  int
	height int
	planes [][]byte
}

// NewTimingVideoDecoder starts from the size the container reported.
func NewTimingVideoDecoder(info media.StreamInfo, log *slog.Logger) *TimingVideoDecoder {
	if log == nil {
		log = slog.Default()
	}
	return &TimingVideoDecoder{
		log:    log.With("component", "timing-video", "codec", string(info.Codec)),
		hevc:   info.Codec == media.CodecH265,
		width:  info.Width,
		height: info.Height,
	}
}

func (d *TimingVideoDecoder) Decode(pkt media.Packet) (*media.VideoFrame, error) {
	nals := bitstream.SplitAnnexB(pkt.Data, d.hevc)
	picture := len(nals) == 0 && len(pkt.Data) > 0
	for _, nal := range nals {
		if d.isSPS(nal.Type) {
			d.updateSize(nal.Data)
		}
		if d.isSlice(nal.Type) {
			picture = true
		}
	}
	if !picture {
		return nil, nil
	}
	if d.width <= 0 || d.height <= 0 {
		return nil, errSizeUnknown
	}

	return &media.VideoFrame{
		Width:   d.width,
		Height:  d.height,
		Format:  media.PixelFormatI420,
		Planes:  d.grey(),
		Strides: []int{d.width, (d.width + 1) / 2, (d.width + 1) / 2},
		PTS:     pkt.PTS,
	}, nil
}

func (d *TimingVideoDecoder) isSPS(t uint8) bool {
	if d.hevc {
		return t == bitstream.H265NALSPS
	}
	return t == bitstream.H264NALSPS
}

// isSlice reports VCL NAL units: types 1-5 for H.264, 0-31 for H.265.
func (d *TimingVideoDecoder) isSlice(t uint8) bool {
	if d.hevc {
		return t <= 31
	}
	return t >= 1 && t <= 5
}

func (d *TimingVideoDecoder) updateSize(nal []byte) {
	var (
		sps bitstream.SPS
		err error
	)
	if d.hevc {
		sps, err = bitstream.ParseH265SPS(nal)
	} else {
		sps, err = bitstream.ParseH264SPS(nal)
	}
	if err != nil {
		d.log.Debug("ignoring unparseable SPS", "error", err)
		return
	}
	if sps.Width != d.width || sps.Height != d.height {
		d.log.Debug("picture size changed", "width", sps.Width, "height", sps.Height)
		d.width, d.height = sps.Width, sps.Height
		d.planes = nil
	}
}

func (d *TimingVideoDecoder) grey() [][]byte {
	if d.planes != nil {
		return d.planes
	}
	cw, ch := (d.width+1)/2, (d.height+1)/2
	y := make([]byte, d.width*d.height)
	for i := range y {
		y[i] = 0x80
	}
	uv := make([]byte, cw*ch)
	for i := range uv {
		uv[i] = 0x80
	}
	d.planes = [][]byte{y, uv, uv}
	return d.planes
}

func (d *TimingVideoDecoder) Close() error { return nil }

// TimingAudioDecoder consumes one ADTS frame per call and returns the
// matching duration of S16 silence.
type TimingAudioDecoder struct {
	log     *slog.Logger
	silence []byte
}

// NewTimingAudioDecoder returns an AAC stand-in decoder.
func NewTimingAudioDecoder(log *slog.Logger) *TimingAudioDecoder {
	if log == nil {
		log = slog.Default()
	}
	return &TimingAudioDecoder{log: log.With("component", "timing-audio")}
}

func (d *TimingAudioDecoder) Decode(data []byte) (int, *media.AudioFrame, error) {
	h, err := bitstream.ParseADTSHeader(data)
	if err != nil {
		return len(data), nil, fmt.Errorf("aac: %w", err)
	}
	if h.Channels == 0 {
		return len(data), nil, fmt.Errorf("aac: channel layout in program config element unsupported")
	}
	size := bitstream.AACSamplesPerFrame * h.Channels * 2
	if cap(d.silence) < size {
		d.silence = make([]byte, size)
	}
	return h.FrameLen, &media.AudioFrame{
		SampleRate: h.SampleRate,
		Channels:   h.Channels,
		Format:     media.SampleFormatS16,
		Samples:    bitstream.AACSamplesPerFrame,
		Data:       d.silence[:size],
	}, nil
}

func (d *TimingAudioDecoder) Close() error { return nil }
