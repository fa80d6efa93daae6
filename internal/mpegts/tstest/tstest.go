// Package tstest builds synthetic transport streams for tests.
package tstest

import "bytes"

// PacketSize is the length of one transport packet.
const PacketSize = 188

// Packet builds one transport packet, stuffing short payloads through the
// adaptation field.
func Packet(pid uint16, cc uint8, unitStart bool, payload []byte) []byte {
	return PacketAF(pid, cc, unitStart, false, payload)
}

// PacketAF is Packet with control over the random access indicator.
func PacketAF(pid uint16, cc uint8, unitStart, randomAccess bool, payload []byte) []byte {
	if len(payload) > 184 {
		panic("tstest: payload too large")
	}
	b := make([]byte, 0, PacketSize)
	b1 := byte(pid>>8) & 0x1F
	if unitStart {
		b1 |= 0x40
	}
	b = append(b, 0x47, b1, byte(pid))

	stuff := 184 - len(payload)
	if stuff == 0 && !randomAccess {
		b = append(b, 0x10|cc&0x0F)
		return append(b, payload...)
	}
	if randomAccess && stuff < 2 {
		panic("tstest: no room for adaptation flags")
	}
	b = append(b, 0x30|cc&0x0F)
	afLen := stuff - 1
	b = append(b, byte(afLen))
	if afLen > 0 {
		flags := byte(0)
		if randomAccess {
			flags |= 0x40
		}
		b = append(b, flags)
		b = append(b, bytes.Repeat([]byte{0xFF}, afLen-1)...)
	}
	return append(b, payload...)
}

// CRC32 is the MPEG-2 section checksum.
func CRC32(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc ^= uint32(b) << 24
		for range 8 {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// Section wraps body in a long-form PSI section with a valid CRC.
func Section(tableID uint8, idExt uint16, body []byte) []byte {
	n := 5 + len(body) + 4
	s := []byte{
		tableID,
		0xB0 | byte(n>>8)&0x0F, byte(n),
		byte(idExt >> 8), byte(idExt),
		0xC1, 0x00, 0x00,
	}
	s = append(s, body...)
	crc := CRC32(s)
	return append(s, byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))
}

// PrivateSection wraps body in a section with section_syntax_indicator
// clear, as SCTE-35 sends it, followed by a valid CRC.
func PrivateSection(tableID uint8, body []byte) []byte {
	n := len(body) + 4
	s := []byte{tableID, 0x30 | byte(n>>8)&0x0F, byte(n)}
	s = append(s, body...)
	crc := CRC32(s)
	return append(s, byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))
}

// PAT builds a PAT section from program number / PMT PID pairs.
func PAT(programs ...[2]uint16) []byte {
	var body []byte
	for _, p := range programs {
		body = append(body, byte(p[0]>>8), byte(p[0]), 0xE0|byte(p[1]>>8), byte(p[1]))
	}
	return Section(0x00, 1, body)
}

// Stream is one PMT entry.
type Stream struct {
	Type uint8
	PID  uint16
}

// PMT builds a PMT section.
func PMT(program, pcrPID uint16, streams ...Stream) []byte {
	body := []byte{0xE0 | byte(pcrPID>>8), byte(pcrPID), 0xF0, 0x00}
	for _, s := range streams {
		body = append(body, s.Type, 0xE0|byte(s.PID>>8), byte(s.PID), 0xF0, 0x00)
	}
	return Section(0x02, program, body)
}

// PSI prefixes a section with a zero pointer field.
func PSI(section []byte) []byte {
	return append([]byte{0x00}, section...)
}

// Timestamp encodes a 33-bit PTS or DTS with the given 4-bit prefix.
func Timestamp(prefix byte, ts int64) []byte {
	return []byte{
		prefix<<4 | byte(ts>>29)&0x0E | 1,
		byte(ts >> 22),
		byte(ts>>14)&0xFE | 1,
		byte(ts >> 7),
		byte(ts<<1)&0xFE | 1,
	}
}

// PES builds a PES packet. A negative pts omits timestamps; a negative dts
// sends PTS only. bounded sets PES_packet_length.
func PES(streamID byte, pts, dts int64, bounded bool, data []byte) []byte {
	var hdr []byte
	flags := byte(0)
	switch {
	case pts >= 0 && dts >= 0:
		flags = 0xC0
		hdr = append(Timestamp(0x3, pts), Timestamp(0x1, dts)...)
	case pts >= 0:
		flags = 0x80
		hdr = Timestamp(0x2, pts)
	}

	b := []byte{0x00, 0x00, 0x01, streamID, 0, 0, 0x80, flags, byte(len(hdr))}
	b = append(b, hdr...)
	b = append(b, data...)
	if bounded {
		n := len(b) - 6
		b[4], b[5] = byte(n>>8), byte(n)
	}
	return b
}

// Split spreads a PES over as many packets as needed, starting at cc, and
// returns the next continuity counter.
func Split(w *bytes.Buffer, pid uint16, cc uint8, pes []byte) uint8 {
	for first := true; len(pes) > 0 || first; first = false {
		n := min(184, len(pes))
		w.Write(Packet(pid, cc, first, pes[:n]))
		pes = pes[n:]
		cc = (cc + 1) & 0x0F
	}
	return cc
}
