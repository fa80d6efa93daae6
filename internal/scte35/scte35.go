// Package scte35 decodes SCTE-35 splice_info_sections into cues. It covers
// splice_null, splice_insert and time_signal commands and reads the
// segmentation descriptors that accompany them. Encoding is not supported.
package scte35

import (
	"errors"
	"fmt"
)

// TableID is the table_id of every splice_info_section.
const TableID = 0xFC

// NoTime marks an absent splice time or duration.
const NoTime int64 = -1

const (
	ptsWrap          = int64(1) << 33
	cueiIdentifier   = 0x43554549
	segmentationTag  = 0x02
	minSectionLength = 17
)

var (
	ErrTableID            = errors.New("scte35: not a splice_info_section")
	ErrShort              = errors.New("scte35: section truncated")
	ErrEncrypted          = errors.New("scte35: encrypted section")
	ErrUnsupportedCommand = errors.New("scte35: unsupported splice command")
)

// Command is a splice_command_type.
type Command uint8

const (
	CommandNull       Command = 0x00
	CommandInsert     Command = 0x05
	CommandTimeSignal Command = 0x06
)

func (c Command) String() string {
	switch c {
	case CommandNull:
		return "splice_null"
	case CommandInsert:
		return "splice_insert"
	case CommandTimeSignal:
		return "time_signal"
	default:
		return fmt.Sprintf("command(0x%02X)", uint8(c))
	}
}

// Segmentation is the part of a segmentation_descriptor a player acts on.
type Segmentation struct {
	EventID  uint32
	Cancel   bool
	TypeID   uint8
	Duration int64 // 90 kHz, NoTime when absent
}

// Cue is a decoded splice_info_section. PTS already includes the section's
// pts_adjustment.
type Cue struct {
	Command      Command
	EventID      uint32
	Cancel       bool
	OutOfNetwork bool
	Immediate    bool
	PTS          int64 // 90 kHz, NoTime when absent
	Duration     int64 // break duration in 90 kHz, NoTime when absent
	AutoReturn   bool
	Segments     []Segmentation
}

// Decode parses one splice_info_section. The CRC is not checked; the
// transport reader has already verified it.
func Decode(section []byte) (Cue, error) {
	cue := Cue{PTS: NoTime, Duration: NoTime}
	if len(section) < 3 {
		return cue, ErrShort
	}
	if section[0] != TableID {
		return cue, ErrTableID
	}
	n := 3 + (int(section[1]&0x0F)<<8 | int(section[2]))
	if n < minSectionLength || n > len(section) {
		return cue, ErrShort
	}
	section = section[:n-4]

	r := &bitReader{data: section}
	r.skip(24 + 8) // header, protocol_version
	if r.bit() {
		return cue, ErrEncrypted
	}
	r.skip(6)
	adjust := int64(r.uint(33))
	r.skip(8 + 12) // cw_index, tier
	cmdLen := int(r.uint(12))
	cue.Command = Command(r.uint(8))

	start := r.bytePos()
	if cmdLen == 0xFFF {
		// Legacy senders leave the length unset.
		cmdLen = -1
	}

	switch cue.Command {
	case CommandNull:
	case CommandInsert:
		decodeInsert(r, &cue)
	case CommandTimeSignal:
		cue.PTS = spliceTime(r)
	default:
		return cue, fmt.Errorf("%w: %s", ErrUnsupportedCommand, cue.Command)
	}
	if r.overflow {
		return cue, ErrShort
	}

	if cmdLen >= 0 {
		r = &bitReader{data: section, pos: (start + cmdLen) * 8}
	}
	loopLen := int(r.uint(16))
	off := r.bytePos()
	if r.overflow || off+loopLen > len(section) {
		return cue, ErrShort
	}
	cue.Segments = decodeDescriptors(section[off : off+loopLen])

	if cue.PTS != NoTime {
		cue.PTS = (cue.PTS + adjust) % ptsWrap
	}
	return cue, nil
}

func decodeInsert(r *bitReader, cue *Cue) {
	cue.EventID = uint32(r.uint(32))
	cue.Cancel = r.bit()
	r.skip(7)
	if cue.Cancel {
		return
	}
	cue.OutOfNetwork = r.bit()
	program := r.bit()
	hasDuration := r.bit()
	cue.Immediate = r.bit()
	r.skip(4)

	if program {
		if !cue.Immediate {
			cue.PTS = spliceTime(r)
		}
	} else {
		// Component splices take the first component's time.
		count := int(r.uint(8))
		for i := range count {
			r.skip(8)
			if cue.Immediate {
				continue
			}
			if pts := spliceTime(r); i == 0 {
				cue.PTS = pts
			}
		}
	}

	if hasDuration {
		cue.AutoReturn = r.bit()
		r.skip(6)
		cue.Duration = int64(r.uint(33))
	}
	r.skip(16 + 8 + 8) // unique_program_id, avail_num, avails_expected
}

func spliceTime(r *bitReader) int64 {
	if !r.bit() {
		r.skip(7)
		return NoTime
	}
	r.skip(6)
	return int64(r.uint(33))
}

// decodeDescriptors returns the CUEI segmentation descriptors in loop.
// Other descriptors and malformed entries are skipped.
func decodeDescriptors(loop []byte) []Segmentation {
	var segs []Segmentation
	for len(loop) >= 2 {
		tag, n := loop[0], int(loop[1])
		if 2+n > len(loop) {
			break
		}
		body := loop[2 : 2+n]
		loop = loop[2+n:]
		if tag != segmentationTag {
			continue
		}
		if seg, ok := decodeSegmentation(body); ok {
			segs = append(segs, seg)
		}
	}
	return segs
}

func decodeSegmentation(body []byte) (Segmentation, bool) {
	seg := Segmentation{Duration: NoTime}
	r := &bitReader{data: body}
	if r.uint(32) != cueiIdentifier {
		return seg, false
	}
	seg.EventID = uint32(r.uint(32))
	seg.Cancel = r.bit()
	r.skip(7)
	if seg.Cancel {
		return seg, !r.overflow
	}

	program := r.bit()
	hasDuration := r.bit()
	r.skip(6) // delivery_not_restricted and its flags
	if !program {
		count := int(r.uint(8))
		r.skip(count * 48) // component_tag, reserved, pts_offset
	}
	if hasDuration {
		seg.Duration = int64(r.uint(40))
	}
	r.skip(8) // upid_type
	r.skip(int(r.uint(8)) * 8)
	seg.TypeID = uint8(r.uint(8))
	r.skip(16) // segment_num, segments_expected
	return seg, !r.overflow
}
