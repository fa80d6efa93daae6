// Package surface implements headless presentation surfaces: a trace that
// records every presented picture in a compact binary log, and a logger.
package surface

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go/quicvarint"

	"github.com/zsiec/avsync/internal/media"
)

// traceMagic opens every trace stream.
var traceMagic = [4]byte{'A', 'V', 'T', 'R'}

const traceVersion = 1

// ErrBadTrace is returned by ReadTrace for input that is not a trace.
var ErrBadTrace = errors.New("surface: not a presentation trace")

// Record is one presented picture.
type Record struct {
	Seq     uint64
	PTS     time.Duration
	Wall    time.Duration // since the first presentation
	Width   int
	Height  int
	Payload int
}

// Lateness is how far presentation trailed the picture's timestamp, taking
// the first record as the common origin.
func (r Record) Lateness(first Record) time.Duration {
	return (r.Wall - first.Wall) - (r.PTS - first.PTS)
}

// TraceSurface writes one varint-framed record per presented picture.
// Write errors are counted, not returned: Present runs on the host loop.
type TraceSurface struct {
	log *slog.Logger
	now func() time.Time

	mu      sync.Mutex
	w       io.Writer
	buf     []byte
	start   time.Time
	seq     uint64
	started bool

	presented atomic.Int64
	errors    atomic.Int64
}

// NewTraceSurface writes the trace header to w. If log is nil,
// slog.Default() is used.
func NewTraceSurface(w io.Writer, log *slog.Logger) (*TraceSurface, error) {
	if log == nil {
		log = slog.Default()
	}
	hdr := quicvarint.Append(traceMagic[:], traceVersion)
	if _, err := w.Write(hdr); err != nil {
		return nil, fmt.Errorf("writing trace header: %w", err)
	}
	return &TraceSurface{log: log.With("component", "trace-surface"), w: w, now: time.Now}, nil
}

// Present appends a record for pic.
func (s *TraceSurface) Present(pic *media.Picture) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !s.started {
		s.start, s.started = now, true
	}
	s.seq++
	pts := media.FromSeconds(pic.PTS)
	if pts == media.NoTimestamp {
		pts = 0
	}

	b := s.buf[:0]
	b = quicvarint.Append(b, s.seq)
	b = quicvarint.Append(b, zigzag(pts.Microseconds()))
	b = quicvarint.Append(b, uint64(now.Sub(s.start).Microseconds()))
	b = quicvarint.Append(b, uint64(pic.Width))
	b = quicvarint.Append(b, uint64(pic.Height))
	b = quicvarint.Append(b, uint64(len(pic.Pix)))
	s.buf = b

	s.presented.Add(1)
	if _, err := s.w.Write(b); err != nil {
		if s.errors.Add(1) == 1 {
			s.log.Warn("trace write failed", "error", err)
		}
	}
}

// Presented returns how many pictures were presented.
func (s *TraceSurface) Presented() int64 {
	return s.presented.Load()
}

// WriteErrors returns how many records failed to write.
func (s *TraceSurface) WriteErrors() int64 {
	return s.errors.Load()
}

// ReadTrace parses a trace written by TraceSurface.
func ReadTrace(r io.Reader) ([]Record, error) {
	br := bufio.NewReader(r)
	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil || magic != traceMagic {
		return nil, ErrBadTrace
	}
	version, err := quicvarint.Read(br)
	if err != nil {
		return nil, ErrBadTrace
	}
	if version != traceVersion {
		return nil, fmt.Errorf("%w: version %d", ErrBadTrace, version)
	}

	var out []Record
	for {
		var f [6]uint64
		for i := range f {
			v, err := quicvarint.Read(br)
			if err != nil {
				if i == 0 && errors.Is(err, io.EOF) {
					return out, nil
				}
				return out, fmt.Errorf("reading record %d: %w", len(out)+1, io.ErrUnexpectedEOF)
			}
			f[i] = v
		}
		out = append(out, Record{
			Seq:     f[0],
			PTS:     time.Duration(unzigzag(f[1])) * time.Microsecond,
			Wall:    time.Duration(f[2]) * time.Microsecond,
			Width:   int(f[3]),
			Height:  int(f[4]),
			Payload: int(f[5]),
		})
	}
}

// zigzag maps signed values onto varint-friendly unsigned ones. Values are
// clamped to the 62-bit varint range.
func zigzag(v int64) uint64 {
	const limit = int64(quicvarint.Max >> 1)
	v = max(min(v, limit), -limit)
	return uint64(v<<1) ^ uint64(v>>63)
}

func unzigzag(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

// LogSurface logs presentations at debug level and counts them.
type LogSurface struct {
	log       *slog.Logger
	presented atomic.Int64
}

// NewLogSurface returns a surface logging to log, or slog.Default().
func NewLogSurface(log *slog.Logger) *LogSurface {
	if log == nil {
		log = slog.Default()
	}
	return &LogSurface{log: log.With("component", "log-surface")}
}

func (s *LogSurface) Present(pic *media.Picture) {
	n := s.presented.Add(1)
	s.log.Debug("present", "n", n, "pts", pic.PTS, "width", pic.Width, "height", pic.Height)
}

// Presented returns how many pictures were presented.
func (s *LogSurface) Presented() int64 {
	return s.presented.Load()
}

// Multi presents each picture on every surface in order.
type Multi []interface{ Present(*media.Picture) }

func (m Multi) Present(pic *media.Picture) {
	for _, s := range m {
		s.Present(pic)
	}
}
