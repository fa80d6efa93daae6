package mpegts

import (
	"context"
	"errors"
	"io"
)

// Reader pulls Units from a transport stream.
type Reader struct {
	r      io.Reader
	buf    []byte
	offset int // bytes before the sync byte in each packet
	asm    *assembler

	pending []Unit
	eof     bool

	packets int64
	corrupt int64
}

// Option configures a Reader.
type Option func(*Reader)

// WithPacketSize sets the on-wire packet size: 188, 192 for streams with a
// 4-byte timestamp prefix (M2TS), or 204 for streams with Reed-Solomon
// parity appended.
func WithPacketSize(n int) Option {
	return func(r *Reader) {
		r.buf = make([]byte, n)
		r.offset = 0
		if n == 192 {
			r.offset = 4
		}
	}
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader, opts ...Option) *Reader {
	tr := &Reader{
		r:   r,
		buf: make([]byte, packetSize),
		asm: newAssembler(),
	}
	for _, opt := range opts {
		opt(tr)
	}
	return tr
}

// Next returns the next PAT, PMT, PES or private section unit. At the end of input the
// units still buffered are returned before io.EOF. Corrupt packets and
// sections are skipped.
func (r *Reader) Next(ctx context.Context) (Unit, error) {
	for {
		if len(r.pending) > 0 {
			u := r.pending[0]
			r.pending = r.pending[1:]
			return u, nil
		}
		if r.eof {
			return Unit{}, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return Unit{}, err
		}

		if _, err := io.ReadFull(r.r, r.buf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				r.eof = true
				for _, c := range r.asm.drain() {
					r.pending = append(r.pending, r.units(c)...)
				}
				continue
			}
			return Unit{}, err
		}
		r.packets++

		p, err := parsePacket(r.buf[r.offset : r.offset+packetSize])
		if err != nil {
			r.corrupt++
			continue
		}
		if c, ok := r.asm.push(p); ok {
			r.pending = append(r.pending, r.units(c)...)
		}
	}
}

// units decodes a completed chunk. PAT entries register their PMT PIDs and
// PMT entries register their SCTE-35 PIDs.
func (r *Reader) units(c chunk) []Unit {
	if r.asm.isPSI(c.pid) {
		units, err := parseSections(c.data, r.asm.sectionPIDs[c.pid])
		if err != nil {
			r.corrupt++
		}
		for _, u := range units {
			for _, prog := range u.PAT {
				r.asm.pmtPIDs[prog.PMTPID] = true
			}
			if u.PMT != nil {
				for _, es := range u.PMT.Streams {
					if es.StreamType == StreamTypeSCTE35 {
						r.asm.sectionPIDs[es.PID] = true
					}
				}
			}
			if u.Section != nil {
				u.Section.PID = c.pid
			}
		}
		return units
	}

	if !hasPESStartCode(c.data) {
		return nil
	}
	pes, err := parsePES(c.pid, c.data)
	if err != nil {
		r.corrupt++
		return nil
	}
	pes.RandomAccess = c.randomAccess
	return []Unit{{PES: pes}}
}

// Stats returns the number of packets read, packets or sections skipped as
// corrupt, and units dropped to continuity errors.
func (r *Reader) Stats() (packets, corrupt, dropped int64) {
	return r.packets, r.corrupt, int64(r.asm.dropped)
}
