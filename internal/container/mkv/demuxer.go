// Package mkv reads Matroska and WebM files into timestamped media packets.
// Parsing runs in a background goroutine and feeds a bounded channel, so a
// slow consumer applies backpressure to the parser.
package mkv

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/remko/go-mkvparse"

	"github.com/zsiec/avsync/internal/media"
)

// ErrNoTracks is returned by Open when the file ends before any supported
// track is described.
var ErrNoTracks = errors.New("mkv: no supported tracks")

var errClosed = errors.New("mkv: demuxer closed")

const (
	idTracks         mkvparse.ElementID = 0x1654AE6B
	idTrackEntry     mkvparse.ElementID = 0xAE
	idTrackNumber    mkvparse.ElementID = 0xD7
	idCodecID        mkvparse.ElementID = 0x86
	idDefaultDur     mkvparse.ElementID = 0x23E383
	idPixelWidth     mkvparse.ElementID = 0xB0
	idPixelHeight    mkvparse.ElementID = 0xBA
	idSamplingFreq   mkvparse.ElementID = 0xB5
	idChannels       mkvparse.ElementID = 0x9F
	idTimecodeScale  mkvparse.ElementID = 0x2AD7B1
	idCluster        mkvparse.ElementID = 0x1F43B675
	idClusterTime    mkvparse.ElementID = 0xE7
	idSimpleBlock    mkvparse.ElementID = 0xA3
	idBlockGroup     mkvparse.ElementID = 0xA0
	idBlock          mkvparse.ElementID = 0xA1
	idReferenceBlock mkvparse.ElementID = 0xFB

	defaultTimecodeScale = 1000000
	packetBuffer         = 64
)

// Demuxer reads a Matroska stream.
type Demuxer struct {
	log    *slog.Logger
	closer io.Closer

	streams []media.StreamInfo
	packets chan media.Packet
	ready   chan struct{}
	done    chan struct{}

	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// Open starts parsing r and waits until the track list is known. If r is
// also an io.Closer, Close closes it.
func Open(ctx context.Context, r io.Reader, log *slog.Logger) (*Demuxer, error) {
	if log == nil {
		log = slog.Default()
	}
	d := &Demuxer{
		log:     log.With("component", "mkv-demux"),
		packets: make(chan media.Packet, packetBuffer),
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}
	if c, ok := r.(io.Closer); ok {
		d.closer = c
	}

	h := newHandler(d)
	go d.parse(r, h)

	select {
	case <-d.ready:
	case <-ctx.Done():
		_ = d.Close()
		return nil, ctx.Err()
	}
	if len(d.streams) == 0 {
		_ = d.Close()
		if err := d.parseErr(); err != nil {
			return nil, fmt.Errorf("reading tracks: %w", err)
		}
		return nil, ErrNoTracks
	}
	for _, s := range d.streams {
		d.log.Info("stream found", "stream", s.String())
	}
	return d, nil
}

func (d *Demuxer) parse(r io.Reader, h *handler) {
	defer close(d.packets)
	err := mkvparse.Parse(r, h)
	h.markReady()
	if err != nil && !errors.Is(err, errClosed) && !errors.Is(err, io.EOF) {
		d.errMu.Lock()
		d.err = err
		d.errMu.Unlock()
	}
}

func (d *Demuxer) parseErr() error {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	return d.err
}

// Streams returns the supported tracks in file order.
func (d *Demuxer) Streams() []media.StreamInfo {
	return d.streams
}

// ReadPacket returns the next block of a supported track, io.EOF at the end
// of the file, or the parse error that stopped the reader.
func (d *Demuxer) ReadPacket(ctx context.Context) (media.Packet, error) {
	select {
	case pkt, ok := <-d.packets:
		if ok {
			return pkt, nil
		}
		if err := d.parseErr(); err != nil {
			return media.Packet{}, err
		}
		return media.Packet{}, io.EOF
	case <-ctx.Done():
		return media.Packet{}, ctx.Err()
	}
}

// Close stops the parser and closes the source when it is closable.
func (d *Demuxer) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.done)
		if d.closer != nil {
			err = d.closer.Close()
		}
	})
	return err
}

type track struct {
	number  int64
	codecID string
	info    media.StreamInfo
	defDur  time.Duration
}

// handler receives parse events. It runs on the parser goroutine only.
type handler struct {
	d         *Demuxer
	readyOnce sync.Once

	scale   int64
	cur     *track
	byNum   map[int64]int
	cluster int64

	group     []byte
	groupRef  bool
	inGroup   bool
	laceDrops int64
}

func newHandler(d *Demuxer) *handler {
	return &handler{d: d, scale: defaultTimecodeScale, byNum: make(map[int64]int)}
}

func (h *handler) markReady() {
	h.readyOnce.Do(func() { close(h.d.ready) })
}

func (h *handler) HandleMasterBegin(id mkvparse.ElementID, _ mkvparse.ElementInfo) (bool, error) {
	switch id {
	case idTrackEntry:
		h.cur = &track{}
	case idCluster:
		h.markReady()
	case idBlockGroup:
		h.inGroup, h.group, h.groupRef = true, nil, false
	}
	return true, nil
}

func (h *handler) HandleMasterEnd(id mkvparse.ElementID, _ mkvparse.ElementInfo) error {
	switch id {
	case idTrackEntry:
		h.addTrack(h.cur)
		h.cur = nil
	case idTracks:
		h.markReady()
	case idBlockGroup:
		h.inGroup = false
		if h.group != nil {
			return h.block(h.group, !h.groupRef)
		}
	}
	return nil
}

func (h *handler) addTrack(t *track) {
	if t == nil {
		return
	}
	switch t.codecID {
	case "V_VP8":
		t.info.Kind, t.info.Codec = media.KindVideo, media.CodecVP8
	case "V_VP9":
		t.info.Kind, t.info.Codec = media.KindVideo, media.CodecVP9
	case "A_OPUS":
		t.info.Kind, t.info.Codec = media.KindAudio, media.CodecOpus
	case "A_PCM/INT/LIT":
		t.info.Kind, t.info.Codec = media.KindAudio, media.CodecPCMS16LE
	default:
		h.d.log.Debug("ignoring track", "number", t.number, "codec", t.codecID)
		return
	}
	t.info.Index = len(h.d.streams)
	t.info.FrameDuration = t.defDur
	h.byNum[t.number] = t.info.Index
	h.d.streams = append(h.d.streams, t.info)
}

func (h *handler) HandleInteger(id mkvparse.ElementID, v int64, _ mkvparse.ElementInfo) error {
	switch id {
	case idTimecodeScale:
		if v > 0 {
			h.scale = v
		}
	case idClusterTime:
		h.cluster = v
	case idReferenceBlock:
		h.groupRef = true
	}
	if h.cur == nil {
		return nil
	}
	switch id {
	case idTrackNumber:
		h.cur.number = v
	case idDefaultDur:
		h.cur.defDur = time.Duration(v)
	case idPixelWidth:
		h.cur.info.Width = int(v)
	case idPixelHeight:
		h.cur.info.Height = int(v)
	case idChannels:
		h.cur.info.Channels = int(v)
	}
	return nil
}

func (h *handler) HandleFloat(id mkvparse.ElementID, v float64, _ mkvparse.ElementInfo) error {
	if id == idSamplingFreq && h.cur != nil {
		h.cur.info.SampleRate = int(v)
	}
	return nil
}

func (h *handler) HandleString(id mkvparse.ElementID, v string, _ mkvparse.ElementInfo) error {
	if id == idCodecID && h.cur != nil {
		h.cur.codecID = v
	}
	return nil
}

func (h *handler) HandleDate(mkvparse.ElementID, time.Time, mkvparse.ElementInfo) error {
	return nil
}

func (h *handler) HandleBinary(id mkvparse.ElementID, v []byte, _ mkvparse.ElementInfo) error {
	switch id {
	case idSimpleBlock:
		return h.block(v, len(v) > 0 && blockFlags(v)&0x80 != 0)
	case idBlock:
		if h.inGroup {
			h.group = append([]byte(nil), v...)
			return nil
		}
		return h.block(v, true)
	}
	return nil
}

// blockFlags returns the flags byte following the track number and the
// relative timecode, or 0 when the header is short.
func blockFlags(b []byte) byte {
	_, n := readVint(b)
	if n == 0 || len(b) < n+3 {
		return 0
	}
	return b[n+2]
}

func (h *handler) block(b []byte, key bool) error {
	num, n := readVint(b)
	if n == 0 || len(b) < n+3 {
		h.d.log.Debug("short block", "len", len(b))
		return nil
	}
	idx, ok := h.byNum[int64(num)]
	if !ok {
		return nil
	}
	rel := int64(int16(binary.BigEndian.Uint16(b[n : n+2])))
	flags := b[n+2]
	s := h.d.streams[idx]

	frames, err := unlace(flags, b[n+3:])
	if err != nil {
		h.laceDrops++
		h.d.log.Debug("dropping laced block", "track", num, "error", err, "drops", h.laceDrops)
		return nil
	}

	pts := time.Duration((h.cluster + rel) * h.scale)
	for i, f := range frames {
		pkt := media.Packet{
			Kind:        s.Kind,
			StreamIndex: idx,
			PTS:         pts + time.Duration(i)*s.FrameDuration,
			DTS:         media.NoTimestamp,
			Duration:    s.FrameDuration,
			IsKeyframe:  key || s.Kind == media.KindAudio,
			Data:        append([]byte(nil), f...),
		}
		if i > 0 && s.FrameDuration == 0 {
			pkt.PTS = media.NoTimestamp
		}
		if err := h.send(pkt); err != nil {
			return err
		}
	}
	return nil
}

func (h *handler) send(pkt media.Packet) error {
	select {
	case h.d.packets <- pkt:
		return nil
	case <-h.d.done:
		return errClosed
	}
}

// unlace splits a block payload according to its lacing mode. EBML lacing
// is not supported.
func unlace(flags byte, data []byte) ([][]byte, error) {
	switch (flags >> 1) & 0x03 {
	case 0:
		return [][]byte{data}, nil
	case 1:
		return xiphLace(data)
	case 3:
		return fixedLace(data)
	default:
		return nil, errors.New("EBML lacing unsupported")
	}
}

func fixedLace(data []byte) ([][]byte, error) {
	if len(data) < 1 {
		return nil, io.ErrUnexpectedEOF
	}
	count := int(data[0]) + 1
	data = data[1:]
	if len(data)%count != 0 {
		return nil, fmt.Errorf("fixed lace of %d bytes not divisible by %d", len(data), count)
	}
	size := len(data) / count
	out := make([][]byte, count)
	for i := range out {
		out[i] = data[i*size : (i+1)*size]
	}
	return out, nil
}

func xiphLace(data []byte) ([][]byte, error) {
	if len(data) < 1 {
		return nil, io.ErrUnexpectedEOF
	}
	count := int(data[0]) + 1
	pos := 1
	sizes := make([]int, count-1)
	for i := range sizes {
		for {
			if pos >= len(data) {
				return nil, io.ErrUnexpectedEOF
			}
			b := data[pos]
			pos++
			sizes[i] += int(b)
			if b != 0xFF {
				break
			}
		}
	}
	out := make([][]byte, 0, count)
	for _, sz := range sizes {
		if pos+sz > len(data) {
			return nil, io.ErrUnexpectedEOF
		}
		out = append(out, data[pos:pos+sz])
		pos += sz
	}
	return append(out, data[pos:]), nil
}

// readVint decodes an EBML variable-length integer with its marker bit
// removed. n is 0 when b does not hold a complete vint.
func readVint(b []byte) (v uint64, n int) {
	if len(b) == 0 || b[0] == 0 {
		return 0, 0
	}
	mask := byte(0x80)
	n = 1
	for b[0]&mask == 0 {
		mask >>= 1
		n++
	}
	if len(b) < n {
		return 0, 0
	}
	v = uint64(b[0] & (mask - 1))
	for i := 1; i < n; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v, n
}
