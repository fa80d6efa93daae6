package bitstream

import "errors"

// ErrInvalidADTS is returned when the ADTS sync word or header is malformed.
var ErrInvalidADTS = errors.New("bitstream: invalid ADTS header")

// AACSamplesPerFrame is the number of PCM samples per channel in one AAC-LC
// frame.
const AACSamplesPerFrame = 1024

var adtsSampleRates = [...]int{
	96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050,
	16000, 12000, 11025, 8000, 7350,
}

// ADTSHeader describes one ADTS frame.
type ADTSHeader struct {
	SampleRate int
	Channels   int
	HeaderLen  int // 7, or 9 with CRC
	FrameLen   int // header plus payload
}

// ParseADTSHeader parses the ADTS header at the start of data. The whole
// frame need not be present.
func ParseADTSHeader(data []byte) (ADTSHeader, error) {
	if len(data) < 7 {
		return ADTSHeader{}, ErrShortData
	}
	if data[0] != 0xFF || data[1]&0xF0 != 0xF0 {
		return ADTSHeader{}, ErrInvalidADTS
	}

	h := ADTSHeader{HeaderLen: 7}
	if data[1]&0x01 == 0 {
		h.HeaderLen = 9
	}
	idx := int(data[2]>>2) & 0x0F
	if idx >= len(adtsSampleRates) {
		return ADTSHeader{}, ErrInvalidADTS
	}
	h.SampleRate = adtsSampleRates[idx]
	h.Channels = int(data[2]&0x01)<<2 | int(data[3]>>6)
	h.FrameLen = int(data[3]&0x03)<<11 | int(data[4])<<3 | int(data[5]>>5)
	if h.FrameLen < h.HeaderLen {
		return ADTSHeader{}, ErrInvalidADTS
	}
	return h, nil
}

// SplitADTS returns the complete ADTS frames in data, resynchronising past
// garbage. A truncated trailing frame is left out.
func SplitADTS(data []byte) [][]byte {
	var frames [][]byte
	for off := 0; len(data)-off >= 7; {
		h, err := ParseADTSHeader(data[off:])
		if err != nil {
			off++
			continue
		}
		if off+h.FrameLen > len(data) {
			break
		}
		frames = append(frames, data[off:off+h.FrameLen])
		off += h.FrameLen
	}
	return frames
}
