package mpegts

import "errors"

var errNotPES = errors.New("mpegts: missing PES start code")

func hasPESStartCode(b []byte) bool {
	return len(b) >= 3 && b[0] == 0 && b[1] == 0 && b[2] == 1
}

// streamIDHasHeader reports whether a PES stream_id carries the optional
// header: padding, private_stream_2, ECM, EMM, DSMCC, H.222.1 type E and the
// program stream directory do not.
func streamIDHasHeader(id uint8) bool {
	switch id {
	case 0xBC, 0xBE, 0xBF, 0xF0, 0xF1, 0xF2, 0xF8, 0xFF:
		return false
	}
	return true
}

func parsePES(pid uint16, b []byte) (*PES, error) {
	if len(b) < 6 {
		return nil, errors.New("mpegts: PES too short")
	}
	if !hasPESStartCode(b) {
		return nil, errNotPES
	}

	pes := &PES{PID: pid, StreamID: b[3], PTS: NoTimestamp, DTS: NoTimestamp}
	end := len(b)
	if n := int(b[4])<<8 | int(b[5]); n > 0 && 6+n <= len(b) {
		end = 6 + n
	}

	if !streamIDHasHeader(pes.StreamID) {
		pes.Data = b[6:end]
		return pes, nil
	}
	if len(b) < 9 {
		return nil, errors.New("mpegts: PES header too short")
	}

	flags := b[7] >> 6
	start := min(9+int(b[8]), end)
	if flags&0x2 != 0 && len(b) >= 14 {
		pes.PTS = readTimestamp(b[9:14])
		pes.DTS = pes.PTS
	}
	if flags == 0x3 && len(b) >= 19 {
		pes.DTS = readTimestamp(b[14:19])
	}
	pes.Data = b[start:end]
	return pes, nil
}

// readTimestamp decodes a 33-bit PTS/DTS spread over five marker-bit bytes.
func readTimestamp(b []byte) int64 {
	return int64(b[0]>>1&0x07)<<30 |
		int64(b[1])<<22 |
		int64(b[2]>>1)<<15 |
		int64(b[3])<<7 |
		int64(b[4]>>1)
}
