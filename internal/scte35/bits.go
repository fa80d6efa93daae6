package scte35

// bitReader reads bits MSB-first. Reading past the end yields zeros and
// sets overflow.
type bitReader struct {
	data     []byte
	pos      int
	overflow bool
}

func (r *bitReader) bit() bool {
	if r.pos >= len(r.data)*8 {
		r.overflow = true
		return false
	}
	b := r.data[r.pos/8] >> (7 - r.pos%8) & 1
	r.pos++
	return b == 1
}

func (r *bitReader) uint(n int) uint64 {
	var v uint64
	for range n {
		v <<= 1
		if r.bit() {
			v |= 1
		}
	}
	return v
}

func (r *bitReader) skip(n int) {
	r.pos += n
	if r.pos > len(r.data)*8 {
		r.overflow = true
	}
}

// bytePos returns the byte offset of the next read.
func (r *bitReader) bytePos() int {
	return (r.pos + 7) / 8
}
