package codec

import (
	"fmt"

	"github.com/zsiec/avsync/internal/media"
)

// RGBAConverter produces tightly packed RGBA pictures from RGBA or I420
// frames. Each picture gets its own buffer; the surface keeps it after
// presentation.
type RGBAConverter struct{}

func (RGBAConverter) Convert(frame *media.VideoFrame, pts float64) (*media.Picture, error) {
	w, h := frame.Width, frame.Height
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("convert: invalid size %dx%d", w, h)
	}
	pic := &media.Picture{
		Width:  w,
		Height: h,
		Format: media.PixelFormatRGBA,
		Stride: w * 4,
		Pix:    make([]byte, w*h*4),
		PTS:    pts,
	}

	switch frame.Format {
	case media.PixelFormatRGBA:
		if err := checkPlanes(frame, 1); err != nil {
			return nil, err
		}
		src, stride := frame.Planes[0], frame.Strides[0]
		if len(src) < (h-1)*stride+w*4 {
			return nil, fmt.Errorf("convert: rgba plane of %d bytes too small for %dx%d", len(src), w, h)
		}
		for y := 0; y < h; y++ {
			copy(pic.Pix[y*pic.Stride:(y+1)*pic.Stride], src[y*stride:])
		}
	case media.PixelFormatI420:
		if err := checkPlanes(frame, 3); err != nil {
			return nil, err
		}
		if err := i420ToRGBA(frame, pic); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("convert: unsupported pixel format %s", frame.Format)
	}
	return pic, nil
}

func checkPlanes(frame *media.VideoFrame, n int) error {
	if len(frame.Planes) < n || len(frame.Strides) < n {
		return fmt.Errorf("convert: %s frame needs %d planes, has %d", frame.Format, n, len(frame.Planes))
	}
	return nil
}

// i420ToRGBA applies BT.601 limited-range conversion in 8.8 fixed point.
func i420ToRGBA(frame *media.VideoFrame, pic *media.Picture) error {
	w, h := frame.Width, frame.Height
	yp, up, vp := frame.Planes[0], frame.Planes[1], frame.Planes[2]
	ys, us, vs := frame.Strides[0], frame.Strides[1], frame.Strides[2]
	cw, ch := (w+1)/2, (h+1)/2
	if len(yp) < (h-1)*ys+w || len(up) < (ch-1)*us+cw || len(vp) < (ch-1)*vs+cw {
		return fmt.Errorf("convert: i420 planes too small for %dx%d", w, h)
	}

	for row := 0; row < h; row++ {
		out := pic.Pix[row*pic.Stride:]
		yRow := yp[row*ys:]
		uRow := up[(row/2)*us:]
		vRow := vp[(row/2)*vs:]
		for col := 0; col < w; col++ {
			c := 298 * (int(yRow[col]) - 16)
			d := int(uRow[col/2]) - 128
			e := int(vRow[col/2]) - 128
			o := col * 4
			out[o] = clampToByte((c + 409*e + 128) >> 8)
			out[o+1] = clampToByte((c - 100*d - 208*e + 128) >> 8)
			out[o+2] = clampToByte((c + 516*d + 128) >> 8)
			out[o+3] = 0xFF
		}
	}
	return nil
}

func clampToByte(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
