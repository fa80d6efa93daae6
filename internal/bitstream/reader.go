package bitstream

import "errors"

// ErrShortData is returned when a bitstream ends before a required field.
var ErrShortData = errors.New("bitstream: data too short")

// bitReader reads MSB-first fields. The first overrun is sticky: later reads
// return zero and err stays set, so callers check once at the end.
type bitReader struct {
	data []byte
	off  int // bit offset
	err  error
}

func newBitReader(data []byte) *bitReader {
	return &bitReader{data: data}
}

func (r *bitReader) bit() uint {
	if r.err != nil {
		return 0
	}
	if r.off >= len(r.data)*8 {
		r.err = ErrShortData
		return 0
	}
	v := uint(r.data[r.off/8]>>(7-r.off%8)) & 1
	r.off++
	return v
}

func (r *bitReader) bits(n int) uint {
	var v uint
	for range n {
		v = v<<1 | r.bit()
	}
	return v
}

func (r *bitReader) flag() bool {
	return r.bit() == 1
}

func (r *bitReader) skip(n int) {
	for range n {
		r.bit()
	}
}

// ue reads an unsigned Exp-Golomb code.
func (r *bitReader) ue() uint {
	zeros := 0
	for r.bit() == 0 {
		if r.err != nil {
			return 0
		}
		zeros++
		if zeros > 31 {
			r.err = ErrShortData
			return 0
		}
	}
	return (1 << zeros) - 1 + r.bits(zeros)
}

// se reads a signed Exp-Golomb code.
func (r *bitReader) se() int {
	v := r.ue()
	if v%2 == 0 {
		return -int(v / 2)
	}
	return int((v + 1) / 2)
}

// unescapeRBSP strips emulation prevention bytes (00 00 03).
func unescapeRBSP(data []byte) []byte {
	out := make([]byte, 0, len(data))
	zeros := 0
	for _, b := range data {
		if zeros >= 2 && b == 0x03 {
			zeros = 0
			continue
		}
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
		out = append(out, b)
	}
	return out
}
