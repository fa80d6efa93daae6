// Package media defines the packet, frame, and picture types that flow
// through the playback core, from demultiplexing through presentation.
package media

import (
	"math"
	"time"
)

// NoTimestamp marks an absent or invalid PTS/DTS.
const NoTimestamp = time.Duration(math.MinInt64)

// Kind tags an elementary stream as audio or video.
type Kind int

// Stream kinds.
const (
	KindUnknown Kind = iota
	KindAudio
	KindVideo
)

func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindVideo:
		return "video"
	default:
		return "unknown"
	}
}

// Packet is one compressed media unit read from a container. Ownership moves
// from the demultiplexer into exactly one packet queue and from there to the
// decoder of the matching stream.
type Packet struct {
	Kind        Kind
	StreamIndex int
	PTS         time.Duration
	DTS         time.Duration
	Duration    time.Duration
	IsKeyframe  bool
	Data        []byte
}

// Size returns the payload size in bytes, the unit packet queues are bounded by.
func (p Packet) Size() int {
	return len(p.Data)
}

// HasPTS reports whether the packet carries a valid presentation timestamp.
func (p Packet) HasPTS() bool {
	return p.PTS != NoTimestamp
}

// Seconds converts a timestamp to seconds. NoTimestamp converts to NaN.
func Seconds(ts time.Duration) float64 {
	if ts == NoTimestamp {
		return math.NaN()
	}
	return ts.Seconds()
}

// FromSeconds converts seconds back to a timestamp. NaN converts to NoTimestamp.
func FromSeconds(s float64) time.Duration {
	if math.IsNaN(s) {
		return NoTimestamp
	}
	return time.Duration(s * float64(time.Second))
}
