package mpegts

import "fmt"

const (
	packetSize = 188
	syncByte   = 0x47
)

// tsPacket is one parsed 188-byte transport packet.
type tsPacket struct {
	pid           uint16
	cc            uint8
	unitStart     bool
	transportErr  bool
	hasPayload    bool
	discontinuity bool
	randomAccess  bool
	payload       []byte
}

func parsePacket(buf []byte) (tsPacket, error) {
	if len(buf) != packetSize {
		return tsPacket{}, fmt.Errorf("mpegts: packet is %d bytes, want %d", len(buf), packetSize)
	}
	if buf[0] != syncByte {
		return tsPacket{}, fmt.Errorf("mpegts: bad sync byte 0x%02X", buf[0])
	}

	p := tsPacket{
		transportErr: buf[1]&0x80 != 0,
		unitStart:    buf[1]&0x40 != 0,
		pid:          uint16(buf[1]&0x1F)<<8 | uint16(buf[2]),
		hasPayload:   buf[3]&0x10 != 0,
		cc:           buf[3] & 0x0F,
	}

	off := 4
	if buf[3]&0x20 != 0 {
		afLen := int(buf[4])
		if afLen > 0 {
			p.discontinuity = buf[5]&0x80 != 0
			p.randomAccess = buf[5]&0x40 != 0
		}
		off = min(5+afLen, packetSize)
	}

	if p.hasPayload && off < packetSize {
		p.payload = append([]byte(nil), buf[off:]...)
	}
	return p, nil
}
