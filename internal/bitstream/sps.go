package bitstream

import "fmt"

// SPS is what playback needs from a sequence parameter set.
type SPS struct {
	Width  int
	Height int
	// FrameRate is derived from VUI timing info and is zero when absent.
	FrameRate float64
}

// high profiles carry chroma format and scaling matrices in the SPS.
var h264HighProfiles = map[uint]bool{
	100: true, 110: true, 122: true, 244: true, 44: true, 83: true,
	86: true, 118: true, 128: true, 138: true, 139: true, 134: true,
}

// ParseH264SPS parses an H.264 SPS NAL unit, header byte included.
func ParseH264SPS(nalu []byte) (SPS, error) {
	if len(nalu) < 4 {
		return SPS{}, ErrShortData
	}
	r := newBitReader(unescapeRBSP(nalu[1:]))

	profile := r.bits(8)
	r.skip(16) // constraint flags, level_idc
	r.ue()     // seq_parameter_set_id

	chromaFormat := uint(1)
	separatePlanes := false
	if h264HighProfiles[profile] {
		chromaFormat = r.ue()
		if chromaFormat == 3 {
			separatePlanes = r.flag()
		}
		r.ue() // bit_depth_luma_minus8
		r.ue() // bit_depth_chroma_minus8
		r.skip(1)
		if r.flag() { // seq_scaling_matrix_present_flag
			lists := 8
			if chromaFormat == 3 {
				lists = 12
			}
			for i := range lists {
				if !r.flag() {
					continue
				}
				size := 16
				if i >= 6 {
					size = 64
				}
				skipScalingList(r, size)
			}
		}
	}

	r.ue() // log2_max_frame_num_minus4
	switch r.ue() {
	case 0:
		r.ue()
	case 1:
		r.skip(1)
		r.se()
		r.se()
		for n := r.ue(); n > 0 && r.err == nil; n-- {
			r.se()
		}
	}
	r.ue()    // max_num_ref_frames
	r.skip(1) // gaps_in_frame_num_value_allowed_flag

	widthMbs := r.ue() + 1
	heightUnits := r.ue() + 1
	frameMbsOnly := r.bit()
	if frameMbsOnly == 0 {
		r.skip(1)
	}
	r.skip(1) // direct_8x8_inference_flag

	var cropL, cropR, cropT, cropB uint
	if r.flag() {
		cropL, cropR, cropT, cropB = r.ue(), r.ue(), r.ue(), r.ue()
	}
	if r.err != nil {
		return SPS{}, fmt.Errorf("h264 sps: %w", r.err)
	}

	subW, subH := uint(2), uint(2)
	switch {
	case separatePlanes || chromaFormat == 0 || chromaFormat == 3:
		subW, subH = 1, 1
	case chromaFormat == 2:
		subW, subH = 2, 1
	}
	cropY := subH * (2 - frameMbsOnly)

	sps := SPS{
		Width:  int(widthMbs*16 - subW*(cropL+cropR)),
		Height: int(heightUnits*16*(2-frameMbsOnly) - cropY*(cropT+cropB)),
	}

	if !r.flag() { // vui_parameters_present_flag
		return sps, nil
	}
	if r.flag() { // aspect_ratio_info_present_flag
		if r.bits(8) == 255 {
			r.skip(32)
		}
	}
	if r.flag() { // overscan_info_present_flag
		r.skip(1)
	}
	if r.flag() { // video_signal_type_present_flag
		r.skip(4)
		if r.flag() {
			r.skip(24)
		}
	}
	if r.flag() { // chroma_loc_info_present_flag
		r.ue()
		r.ue()
	}
	if r.flag() { // timing_info_present_flag
		tick := r.bits(32)
		scale := r.bits(32)
		if r.err == nil && tick > 0 {
			sps.FrameRate = float64(scale) / float64(2*tick)
		}
	}
	return sps, nil
}

func skipScalingList(r *bitReader, size int) {
	last, next := 8, 8
	for range size {
		if next != 0 {
			next = (last + r.se() + 256) % 256
		}
		if next != 0 {
			last = next
		}
	}
}

// ParseH265SPS parses an H.265 SPS NAL unit, two-byte header included.
// Only the picture size is extracted.
func ParseH265SPS(nalu []byte) (SPS, error) {
	if len(nalu) < 4 {
		return SPS{}, ErrShortData
	}
	r := newBitReader(unescapeRBSP(nalu[2:]))

	r.skip(4) // sps_video_parameter_set_id
	subLayers := r.bits(3)
	r.skip(1) // sps_temporal_id_nesting_flag

	// general profile_tier_level: 2+1+5+32+48+8 bits.
	r.skip(96)
	if subLayers > 0 {
		profilePresent := make([]bool, subLayers)
		levelPresent := make([]bool, subLayers)
		for i := range subLayers {
			profilePresent[i] = r.flag()
			levelPresent[i] = r.flag()
		}
		for i := subLayers; i < 8; i++ {
			r.skip(2)
		}
		for i := range subLayers {
			if profilePresent[i] {
				r.skip(88)
			}
			if levelPresent[i] {
				r.skip(8)
			}
		}
	}

	r.ue() // sps_seq_parameter_set_id
	chromaFormat := r.ue()
	if chromaFormat == 3 {
		r.skip(1)
	}
	width := r.ue()
	height := r.ue()
	if r.err != nil {
		return SPS{}, fmt.Errorf("h265 sps: %w", r.err)
	}

	sps := SPS{Width: int(width), Height: int(height)}
	if r.flag() { // conformance_window_flag
		l, rt, t, b := r.ue(), r.ue(), r.ue(), r.ue()
		if r.err == nil {
			subW, subH := uint(1), uint(1)
			switch chromaFormat {
			case 1:
				subW, subH = 2, 2
			case 2:
				subW, subH = 2, 1
			}
			sps.Width -= int((l + rt) * subW)
			sps.Height -= int((t + b) * subH)
		}
	}
	return sps, nil
}
