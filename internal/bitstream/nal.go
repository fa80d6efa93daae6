package bitstream

// H.264 NAL unit types (ITU-T H.264 Table 7-1).
const (
	H264NALSlice = 1
	H264NALIDR   = 5
	H264NALSEI   = 6
	H264NALSPS   = 7
	H264NALPPS   = 8
	H264NALAUD   = 9
)

// H.265 NAL unit types (ITU-T H.265 Table 7-1).
const (
	H265NALBlaWLP = 16
	H265NALCraNut = 21
	H265NALVPS    = 32
	H265NALSPS    = 33
	H265NALPPS    = 34
	H265NALAUD    = 35
)

// NALUnit is one NAL unit without its start code. Data includes the NAL
// header byte(s).
type NALUnit struct {
	Type byte
	Data []byte
}

// H264NALType returns the type from an H.264 NAL header byte.
func H264NALType(b byte) byte { return b & 0x1F }

// H265NALType returns the type from the first byte of an H.265 NAL header.
func H265NALType(b byte) byte { return (b >> 1) & 0x3F }

// SplitAnnexB splits an Annex B byte stream on 3- and 4-byte start codes.
// hevc selects the two-byte H.265 NAL header.
func SplitAnnexB(data []byte, hevc bool) []NALUnit {
	minLen, typeOf := 1, H264NALType
	if hevc {
		minLen, typeOf = 2, H265NALType
	}

	var units []NALUnit
	start := -1
	emit := func(end int) {
		if start < 0 {
			return
		}
		// A 4-byte start code leaves a zero on the previous unit.
		for end > start && data[end-1] == 0 {
			end--
		}
		if end-start >= minLen {
			units = append(units, NALUnit{Type: typeOf(data[start]), Data: data[start:end]})
		}
	}

	for i := 0; i+2 < len(data); {
		if data[i] == 0 && data[i+1] == 0 && data[i+2] == 1 {
			emit(i)
			i += 3
			start = i
			continue
		}
		i++
	}
	if start >= 0 && start < len(data) {
		emit(len(data))
	}
	return units
}

// H264Keyframe reports whether an Annex B access unit holds an IDR slice.
func H264Keyframe(au []byte) bool {
	for _, u := range SplitAnnexB(au, false) {
		if u.Type == H264NALIDR {
			return true
		}
	}
	return false
}

// H265Keyframe reports whether an Annex B access unit holds a random access
// point picture (BLA, IDR or CRA).
func H265Keyframe(au []byte) bool {
	for _, u := range SplitAnnexB(au, true) {
		if u.Type >= H265NALBlaWLP && u.Type <= H265NALCraNut {
			return true
		}
	}
	return false
}
