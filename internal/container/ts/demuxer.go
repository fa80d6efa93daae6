// Package ts adapts an MPEG transport stream into timestamped media packets.
// It selects the first program, maps H.264, H.265 and AAC elementary
// streams, and rebases timestamps so the first PES starts at zero. SCTE-35
// splice cues are decoded and kept on the same timeline.
package ts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/zsiec/avsync/internal/bitstream"
	"github.com/zsiec/avsync/internal/media"
	"github.com/zsiec/avsync/internal/mpegts"
	"github.com/zsiec/avsync/internal/scte35"
)

// ErrNoProgram is returned by Open when no PMT is found within the probe
// window.
var ErrNoProgram = errors.New("ts: no program map found")

const (
	defaultProbeUnits = 1024
	tsWrap            = int64(1) << 33
	maxCues           = 256
)

// Cue is a splice signal placed on the stream timeline. At is
// media.NoTimestamp for immediate splices and for cues that arrive before
// the first PES.
type Cue struct {
	scte35.Cue
	At time.Duration
}

// Demuxer reads a transport stream. It is not safe for concurrent use; the
// demux loop is its only caller.
type Demuxer struct {
	log    *slog.Logger
	rd     *mpegts.Reader
	closer io.Closer

	closeOnce sync.Once
	closeErr  error

	streams []media.StreamInfo
	byPID   map[uint16]int
	hevc    map[uint16]bool
	pending []media.Packet

	origin    int64
	hasOrigin bool

	cues    []Cue
	badCues int

	probeUnits int
	readerOpts []mpegts.Option
}

// Option configures a Demuxer.
type Option func(*Demuxer)

// WithPacketSize passes a non-standard packet size to the transport reader.
func WithPacketSize(n int) Option {
	return func(d *Demuxer) {
		d.readerOpts = append(d.readerOpts, mpegts.WithPacketSize(n))
	}
}

// WithProbeUnits bounds how many units Open reads while discovering streams.
func WithProbeUnits(n int) Option {
	return func(d *Demuxer) {
		d.probeUnits = n
	}
}

// Open probes r until the program's streams are described. If r is also an
// io.Closer, Close closes it, and so does ctx ending during Open or
// ReadPacket, which unblocks a read stuck on a quiet live source.
func Open(ctx context.Context, r io.Reader, log *slog.Logger, opts ...Option) (*Demuxer, error) {
	if log == nil {
		log = slog.Default()
	}
	d := &Demuxer{
		log:        log.With("component", "ts-demux"),
		byPID:      make(map[uint16]int),
		hevc:       make(map[uint16]bool),
		probeUnits: defaultProbeUnits,
	}
	for _, opt := range opts {
		opt(d)
	}
	if c, ok := r.(io.Closer); ok {
		d.closer = c
	}
	d.rd = mpegts.NewReader(r, d.readerOpts...)

	stop := d.closeOnDone(ctx)
	err := d.probe(ctx)
	stop()
	if err != nil {
		return nil, err
	}
	return d, nil
}

// probe reads until the PMT is known and every mapped stream has delivered
// a PES, so sizes and rates can be filled in. Packets read meanwhile are
// kept for ReadPacket.
func (d *Demuxer) probe(ctx context.Context) error {
	described := make(map[int]bool)
	for n := 0; n < d.probeUnits; n++ {
		u, err := d.next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("probing transport stream: %w", err)
		}

		switch {
		case u.PMT != nil && len(d.streams) == 0:
			d.mapProgram(u.PMT)
		case u.Section != nil:
			d.cue(u.Section)
		case u.PES != nil:
			idx, ok := d.byPID[u.PES.PID]
			if !ok {
				continue
			}
			if !described[idx] {
				d.describe(idx, u.PES)
				described[idx] = true
			}
			d.pending = append(d.pending, d.packet(idx, u.PES))
		}

		if len(d.streams) > 0 && len(described) == len(d.streams) {
			break
		}
	}

	if len(d.streams) == 0 {
		return ErrNoProgram
	}
	for _, s := range d.streams {
		d.log.Info("stream found", "stream", s.String())
	}
	return nil
}

func (d *Demuxer) mapProgram(pmt *mpegts.PMT) {
	for _, es := range pmt.Streams {
		info := media.StreamInfo{Index: len(d.streams)}
		switch es.StreamType {
		case mpegts.StreamTypeH264:
			info.Kind, info.Codec = media.KindVideo, media.CodecH264
		case mpegts.StreamTypeH265:
			info.Kind, info.Codec = media.KindVideo, media.CodecH265
			d.hevc[es.PID] = true
		case mpegts.StreamTypeAAC:
			info.Kind, info.Codec = media.KindAudio, media.CodecAAC
		default:
			d.log.Debug("ignoring elementary stream", "pid", es.PID, "type", fmt.Sprintf("0x%02X", es.StreamType))
			continue
		}
		d.byPID[es.PID] = info.Index
		d.streams = append(d.streams, info)
	}
	d.log.Debug("program mapped", "program", pmt.ProgramNumber, "streams", len(d.streams))
}

// describe fills stream parameters from the first PES of a stream.
func (d *Demuxer) describe(idx int, pes *mpegts.PES) {
	s := &d.streams[idx]
	switch s.Codec {
	case media.CodecAAC:
		h, err := bitstream.ParseADTSHeader(pes.Data)
		if err != nil {
			d.log.Warn("unparseable ADTS header", "pid", pes.PID, "error", err)
			return
		}
		s.SampleRate, s.Channels = h.SampleRate, h.Channels
		s.FrameDuration = time.Duration(bitstream.AACSamplesPerFrame) * time.Second / time.Duration(h.SampleRate)

	case media.CodecH264, media.CodecH265:
		hevc := s.Codec == media.CodecH265
		for _, nal := range bitstream.SplitAnnexB(pes.Data, hevc) {
			var sps bitstream.SPS
			var err error
			switch {
			case !hevc && nal.Type == bitstream.H264NALSPS:
				sps, err = bitstream.ParseH264SPS(nal.Data)
			case hevc && nal.Type == bitstream.H265NALSPS:
				sps, err = bitstream.ParseH265SPS(nal.Data)
			default:
				continue
			}
			if err != nil {
				d.log.Warn("unparseable SPS", "pid", pes.PID, "error", err)
				return
			}
			s.Width, s.Height = sps.Width, sps.Height
			if sps.FrameRate > 0 {
				s.FrameDuration = time.Duration(float64(time.Second) / sps.FrameRate)
			}
			return
		}
	}
}

// Streams returns the mapped elementary streams.
func (d *Demuxer) Streams() []media.StreamInfo {
	return d.streams
}

// ReadPacket returns the next packet of a mapped stream, or io.EOF once the
// input is exhausted.
func (d *Demuxer) ReadPacket(ctx context.Context) (media.Packet, error) {
	if len(d.pending) > 0 {
		pkt := d.pending[0]
		d.pending = d.pending[1:]
		return pkt, nil
	}
	defer d.closeOnDone(ctx)()
	for {
		u, err := d.next(ctx)
		if err != nil {
			return media.Packet{}, err
		}
		if u.Section != nil {
			d.cue(u.Section)
			continue
		}
		if u.PES == nil {
			continue
		}
		if idx, ok := d.byPID[u.PES.PID]; ok {
			return d.packet(idx, u.PES), nil
		}
	}
}

func (d *Demuxer) packet(idx int, pes *mpegts.PES) media.Packet {
	s := d.streams[idx]
	pkt := media.Packet{
		Kind:        s.Kind,
		StreamIndex: idx,
		PTS:         d.rebase(pes.PTS),
		DTS:         d.rebase(pes.DTS),
		Duration:    s.FrameDuration,
		Data:        pes.Data,
	}
	switch s.Codec {
	case media.CodecH264:
		pkt.IsKeyframe = pes.RandomAccess || bitstream.H264Keyframe(pes.Data)
	case media.CodecH265:
		pkt.IsKeyframe = pes.RandomAccess || bitstream.H265Keyframe(pes.Data)
	default:
		pkt.IsKeyframe = true
	}
	return pkt
}

// rebase maps a 90 kHz timestamp onto the stream timeline, anchored at the
// first timestamp seen and unwrapped across the 33-bit rollover.
func (d *Demuxer) rebase(ts int64) time.Duration {
	if ts == mpegts.NoTimestamp {
		return media.NoTimestamp
	}
	if !d.hasOrigin {
		d.origin = ts
		d.hasOrigin = true
	}
	delta := (ts - d.origin) % tsWrap
	if delta < 0 {
		delta += tsWrap
	}
	if delta > tsWrap/2 {
		delta -= tsWrap
	}
	return mpegts.Duration(delta)
}

func (d *Demuxer) cue(sec *mpegts.Section) {
	c, err := scte35.Decode(sec.Data)
	if err != nil {
		d.badCues++
		d.log.Debug("skipping splice section", "pid", sec.PID, "error", err)
		return
	}
	at := media.NoTimestamp
	if c.PTS != scte35.NoTime && d.hasOrigin {
		at = d.rebase(c.PTS)
	}
	d.log.Info("splice cue",
		"command", c.Command.String(),
		"event", c.EventID,
		"out", c.OutOfNetwork,
		"at", at,
		"segments", len(c.Segments))
	if len(d.cues) < maxCues {
		d.cues = append(d.cues, Cue{Cue: c, At: at})
	}
}

// Cues returns the splice cues decoded so far, up to the first 256, and the
// number of splice sections that failed to decode.
func (d *Demuxer) Cues() ([]Cue, int) {
	return d.cues, d.badCues
}

// Stats reports transport-level counters: packets read, corrupt packets or
// sections, and units dropped to continuity errors.
func (d *Demuxer) Stats() (packets, corrupt, dropped int64) {
	return d.rd.Stats()
}

// next reads one unit. A read failing because ctx ended reports ctx.Err().
func (d *Demuxer) next(ctx context.Context) (mpegts.Unit, error) {
	u, err := d.rd.Next(ctx)
	if err != nil && ctx.Err() != nil {
		return u, ctx.Err()
	}
	return u, err
}

// closeOnDone closes the source if ctx ends before the returned stop is
// called. A blocked io.ReadFull only returns once its source is closed.
func (d *Demuxer) closeOnDone(ctx context.Context) (stop func()) {
	if d.closer == nil {
		return func() {}
	}
	s := context.AfterFunc(ctx, func() {
		if err := d.closeSource(); err != nil {
			d.log.Debug("closing source on cancel", "error", err)
		}
	})
	return func() { s() }
}

func (d *Demuxer) closeSource() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.closer.Close()
	})
	return d.closeErr
}

// Close closes the underlying source when it is closable. It is safe to
// call more than once.
func (d *Demuxer) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closeSource()
}
