package codec

import (
	"fmt"
	"log/slog"

	"github.com/Azunyan1111/libvpx-go/vpx"

	"github.com/zsiec/avsync/internal/media"
)

// VPXDecoder decodes VP8 or VP9 into RGBA frames.
type VPXDecoder struct {
	log *slog.Logger
	ctx *vpx.CodecCtx
}

// NewVPXDecoder initialises a libvpx decoder for codec.
func NewVPXDecoder(codec media.Codec, log *slog.Logger) (*VPXDecoder, error) {
	if log == nil {
		log = slog.Default()
	}
	var iface *vpx.CodecIface
	switch codec {
	case media.CodecVP8:
		iface = vpx.DecoderIfaceVP8()
	case media.CodecVP9:
		iface = vpx.DecoderIfaceVP9()
	default:
		return nil, fmt.Errorf("%w: %s is not VPX", ErrUnsupportedCodec, codec)
	}

	ctx := vpx.NewCodecCtx()
	if err := vpx.Error(vpx.CodecDecInitVer(ctx, iface, nil, 0, vpx.DecoderABIVersion)); err != nil {
		return nil, fmt.Errorf("initializing %s decoder: %w", codec, err)
	}
	return &VPXDecoder{log: log.With("component", "vpx", "codec", string(codec)), ctx: ctx}, nil
}

// Decode decodes one packet. The returned frame holds a single RGBA plane
// and the packet's timestamp.
func (d *VPXDecoder) Decode(pkt media.Packet) (*media.VideoFrame, error) {
	if len(pkt.Data) == 0 {
		return nil, nil
	}
	if err := vpx.Error(vpx.CodecDecode(d.ctx, string(pkt.Data), uint32(len(pkt.Data)), nil, 0)); err != nil {
		return nil, fmt.Errorf("vpx decode: %w", err)
	}

	var iter vpx.CodecIter
	img := vpx.CodecGetFrame(d.ctx, &iter)
	if img == nil {
		return nil, nil
	}
	img.Deref()

	rgba := img.ImageRGBA()
	return &media.VideoFrame{
		Width:   int(img.DW),
		Height:  int(img.DH),
		Format:  media.PixelFormatRGBA,
		Planes:  [][]byte{rgba.Pix},
		Strides: []int{rgba.Stride},
		PTS:     pkt.PTS,
	}, nil
}

// Close releases the libvpx context.
func (d *VPXDecoder) Close() error {
	if d.ctx != nil {
		vpx.CodecDestroy(d.ctx)
		d.ctx = nil
	}
	return nil
}
