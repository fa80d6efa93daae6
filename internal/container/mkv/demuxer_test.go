package mkv

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"github.com/zsiec/avsync/internal/media"
)

// el encodes one EBML element with an 8-byte size field.
func el(id uint32, payload ...[]byte) []byte {
	var idb []byte
	for shift := 24; shift >= 0; shift -= 8 {
		if b := byte(id >> shift); b != 0 || len(idb) > 0 {
			idb = append(idb, b)
		}
	}
	body := bytes.Join(payload, nil)
	size := make([]byte, 8)
	binary.BigEndian.PutUint64(size, uint64(len(body)))
	size[0] = 0x01
	return append(append(idb, size...), body...)
}

func uintEl(id uint32, v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return el(id, b)
}

func floatEl(id uint32, v float32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, math.Float32bits(v))
	return el(id, b)
}

func strEl(id uint32, s string) []byte {
	return el(id, []byte(s))
}

func block(track byte, rel int16, flags byte, data ...byte) []byte {
	b := []byte{0x80 | track, byte(uint16(rel) >> 8), byte(rel), flags}
	return append(b, data...)
}

func header() []byte {
	return el(0x1A45DFA3, strEl(0x4282, "webm"))
}

func testFile() []byte {
	tracks := el(0x1654AE6B,
		el(0xAE, uintEl(0xD7, 1), strEl(0x86, "V_VP8"), uintEl(0x23E383, 40000000),
			el(0xE0, uintEl(0xB0, 2), uintEl(0xBA, 2))),
		el(0xAE, uintEl(0xD7, 2), strEl(0x86, "A_OPUS"),
			el(0xE1, floatEl(0xB5, 48000), uintEl(0x9F, 2))),
		el(0xAE, uintEl(0xD7, 3), strEl(0x86, "S_TEXT/UTF8")),
	)
	cluster := el(0x1F43B675,
		uintEl(0xE7, 1000),
		el(0xA3, block(1, 0, 0x80, 0xAA)),
		el(0xA3, block(2, 20, 0x80, 0xBB)),
		el(0xA3, block(3, 30, 0x80, 0xCC)),
		el(0xA0, el(0xA1, block(1, 40, 0, 0xDD)), el(0xFB, []byte{0xD8})),
	)
	info := el(0x1549A966, uintEl(0x2AD7B1, 1000000))
	return append(header(), el(0x18538067, info, tracks, cluster)...)
}

func TestOpenDescribesTracks(t *testing.T) {
	t.Parallel()
	d, err := Open(context.Background(), bytes.NewReader(testFile()), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	streams := d.Streams()
	if len(streams) != 2 {
		t.Fatalf("streams: got %d, want 2 (subtitles ignored)", len(streams))
	}
	v, a := streams[0], streams[1]
	if v.Codec != media.CodecVP8 || v.Width != 2 || v.Height != 2 || v.FrameDuration != 40*time.Millisecond {
		t.Errorf("video: got %+v", v)
	}
	if a.Codec != media.CodecOpus || a.SampleRate != 48000 || a.Channels != 2 {
		t.Errorf("audio: got %+v", a)
	}
}

func TestReadPacketTimestamps(t *testing.T) {
	t.Parallel()
	d, err := Open(context.Background(), bytes.NewReader(testFile()), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	want := []struct {
		idx  int
		pts  time.Duration
		key  bool
		data byte
	}{
		{0, time.Second, true, 0xAA},
		{1, 1020 * time.Millisecond, true, 0xBB},
		{0, 1040 * time.Millisecond, false, 0xDD},
	}
	for i, w := range want {
		pkt, err := d.ReadPacket(context.Background())
		if err != nil {
			t.Fatalf("packet %d: %v", i, err)
		}
		if pkt.StreamIndex != w.idx || pkt.PTS != w.pts || pkt.IsKeyframe != w.key || pkt.Data[0] != w.data {
			t.Errorf("packet %d: got idx %d pts %v key %v data %x, want %+v",
				i, pkt.StreamIndex, pkt.PTS, pkt.IsKeyframe, pkt.Data, w)
		}
	}
	if _, err := d.ReadPacket(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("got %v, want io.EOF", err)
	}
}

func TestOpenWithoutTracks(t *testing.T) {
	t.Parallel()
	file := append(header(), el(0x18538067, el(0x1654AE6B, el(0xAE, uintEl(0xD7, 1), strEl(0x86, "S_TEXT/UTF8"))))...)
	if _, err := Open(context.Background(), bytes.NewReader(file), nil); !errors.Is(err, ErrNoTracks) {
		t.Errorf("got %v, want ErrNoTracks", err)
	}
}

func TestCloseUnblocksParser(t *testing.T) {
	t.Parallel()
	d, err := Open(context.Background(), bytes.NewReader(testFile()), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second close: got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		_, err := d.ReadPacket(ctx)
		if errors.Is(err, io.EOF) {
			return
		}
		if errors.Is(err, context.DeadlineExceeded) {
			t.Fatal("parser did not stop after close")
		}
	}
}

func TestUnlace(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		flags byte
		data  []byte
		want  [][]byte
		err   bool
	}{
		{name: "none", flags: 0, data: []byte{1, 2, 3}, want: [][]byte{{1, 2, 3}}},
		{name: "fixed", flags: 0x06, data: []byte{1, 1, 2, 3, 4}, want: [][]byte{{1, 2}, {3, 4}}},
		{name: "fixed uneven", flags: 0x06, data: []byte{1, 1, 2, 3}, err: true},
		{name: "xiph", flags: 0x02, data: []byte{1, 2, 9, 9, 7}, want: [][]byte{{9, 9}, {7}}},
		{name: "xiph truncated", flags: 0x02, data: []byte{1, 5, 9}, err: true},
		{name: "ebml", flags: 0x04, data: []byte{0}, err: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := unlace(tt.flags, tt.data)
			if tt.err {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("frames: got %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if !bytes.Equal(got[i], tt.want[i]) {
					t.Errorf("frame %d: got %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestReadVint(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   []byte
		want uint64
		n    int
	}{
		{[]byte{0x81}, 1, 1},
		{[]byte{0x40, 0x02}, 2, 2},
		{[]byte{0x40}, 0, 0},
		{[]byte{0x00}, 0, 0},
	}
	for _, tt := range tests {
		v, n := readVint(tt.in)
		if v != tt.want || n != tt.n {
			t.Errorf("%x: got (%d, %d), want (%d, %d)", tt.in, v, n, tt.want, tt.n)
		}
	}
}
