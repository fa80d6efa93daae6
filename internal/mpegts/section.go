package mpegts

import (
	"errors"
	"fmt"
)

const (
	pidPAT     = 0x0000
	tableIDPAT = 0x00
	tableIDPMT = 0x02
)

var errCRC = errors.New("mpegts: section CRC mismatch")

// crcTable is the MPEG-2 CRC32 table, polynomial 0x04C11DB7, MSB first.
var crcTable = func() (t [256]uint32) {
	for i := range t {
		c := uint32(i) << 24
		for range 8 {
			if c&0x80000000 != 0 {
				c = c<<1 ^ 0x04C11DB7
			} else {
				c <<= 1
			}
		}
		t[i] = c
	}
	return t
}()

func crc32MPEG(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc = crc<<8 ^ crcTable[byte(crc>>24)^b]
	}
	return crc
}

// sectionSpan returns the length of the section starting at payload[off],
// zero at stuffing, or -1 if more data is needed. Private sections such as
// SCTE-35 may clear section_syntax_indicator.
func sectionSpan(payload []byte, off int, private bool) int {
	if off >= len(payload) || payload[off] == 0xFF {
		return 0
	}
	if off+3 > len(payload) {
		return -1
	}
	// PAT and PMT always set section_syntax_indicator; zero padding does not.
	if payload[off+1]&0x80 == 0 && !private {
		return 0
	}
	n := 3 + (int(payload[off+1]&0x0F)<<8 | int(payload[off+2]))
	if off+n > len(payload) {
		return -1
	}
	return n
}

// sectionsComplete reports whether payload, starting with a pointer field,
// holds every section it announces.
func sectionsComplete(payload []byte, private bool) bool {
	if len(payload) == 0 {
		return false
	}
	off := 1 + int(payload[0])
	if off >= len(payload) {
		return false
	}
	for {
		n := sectionSpan(payload, off, private)
		switch {
		case n < 0:
			return false
		case n == 0:
			return true
		}
		off += n
	}
}

// parseSections decodes the PAT and PMT sections in a PSI payload. With
// private set every CRC-checked section is returned whole instead.
func parseSections(payload []byte, private bool) ([]Unit, error) {
	if len(payload) == 0 {
		return nil, errors.New("mpegts: empty PSI payload")
	}
	off := 1 + int(payload[0])
	if off >= len(payload) {
		return nil, errors.New("mpegts: PSI pointer field out of range")
	}

	var units []Unit
	for {
		n := sectionSpan(payload, off, private)
		if n <= 0 {
			return units, nil
		}
		section := payload[off : off+n]
		off += n

		if crc32MPEG(section) != 0 {
			return units, fmt.Errorf("table 0x%02X: %w", section[0], errCRC)
		}
		if private {
			units = append(units, Unit{Section: &Section{TableID: section[0], Data: section}})
			continue
		}
		switch section[0] {
		case tableIDPAT:
			units = append(units, Unit{PAT: parsePAT(section)})
		case tableIDPMT:
			pmt, err := parsePMT(section)
			if err != nil {
				return units, err
			}
			units = append(units, Unit{PMT: pmt})
		}
	}
}

// parsePAT reads the program loop between the 8-byte header and the CRC.
// Program 0 points at the NIT and is skipped.
func parsePAT(section []byte) []Program {
	var progs []Program
	for i := 8; i+4 <= len(section)-4; i += 4 {
		num := uint16(section[i])<<8 | uint16(section[i+1])
		if num == 0 {
			continue
		}
		progs = append(progs, Program{
			Number: num,
			PMTPID: uint16(section[i+2]&0x1F)<<8 | uint16(section[i+3]),
		})
	}
	return progs
}

func parsePMT(section []byte) (*PMT, error) {
	if len(section) < 16 {
		return nil, errors.New("mpegts: PMT too short")
	}
	pmt := &PMT{
		ProgramNumber: uint16(section[3])<<8 | uint16(section[4]),
		PCRPID:        uint16(section[8]&0x1F)<<8 | uint16(section[9]),
	}
	end := len(section) - 4
	off := 12 + (int(section[10]&0x0F)<<8 | int(section[11]))
	for off+5 <= end {
		pmt.Streams = append(pmt.Streams, ElementaryStream{
			StreamType: section[off],
			PID:        uint16(section[off+1]&0x1F)<<8 | uint16(section[off+2]),
		})
		off += 5 + (int(section[off+3]&0x0F)<<8 | int(section[off+4]))
	}
	return pmt, nil
}
