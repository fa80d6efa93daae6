// Package mpegts reads MPEG transport streams. It discovers programs from
// the PAT and PMT, reassembles PES packets per PID and extracts their 90 kHz
// timestamps. SCTE-35 PIDs are surfaced as raw sections. Elementary stream
// parsing is left to the caller.
package mpegts

import "time"

// Elementary stream types from the PMT (ISO/IEC 13818-1 Table 2-34).
const (
	StreamTypeMPEG1Audio = 0x03
	StreamTypeMPEG2Audio = 0x04
	StreamTypeAAC        = 0x0F
	StreamTypeH264       = 0x1B
	StreamTypeH265       = 0x24
	StreamTypeSCTE35     = 0x86
)

// NoTimestamp marks an absent PTS or DTS.
const NoTimestamp int64 = -1

// ClockRate is the PES timestamp frequency.
const ClockRate = 90000

// Program is one PAT entry.
type Program struct {
	Number uint16
	PMTPID uint16
}

// ElementaryStream is one PMT entry.
type ElementaryStream struct {
	PID        uint16
	StreamType uint8
}

// PMT is a parsed Program Map Table.
type PMT struct {
	ProgramNumber uint16
	PCRPID        uint16
	Streams       []ElementaryStream
}

// PES is a reassembled PES packet.
type PES struct {
	PID      uint16
	StreamID uint8
	PTS      int64 // NoTimestamp when absent
	DTS      int64 // NoTimestamp when absent; equals PTS when only PTS is sent
	// RandomAccess is the adaptation-field random access indicator of the
	// first TS packet.
	RandomAccess bool
	Data         []byte
}

// Section is a private section carried on a PID the PMT declares as
// StreamTypeSCTE35. Data holds the whole section including its CRC.
type Section struct {
	PID     uint16
	TableID uint8
	Data    []byte
}

// Unit is one item produced by the Reader. Exactly one field is set.
type Unit struct {
	PAT     []Program
	PMT     *PMT
	PES     *PES
	Section *Section
}

// Duration converts a 90 kHz timestamp into a duration.
func Duration(ts int64) time.Duration {
	return time.Duration(ts) * time.Second / ClockRate
}
