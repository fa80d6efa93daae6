package scte35

import (
	"encoding/hex"
	"errors"
	"testing"
)

// Sections captured from a splice inserter, CRCs intact.
var vectors = map[string]string{
	"ProviderAdStart":    "fc302700000000000000fff00506fe000dbba00011020f43554549000000017fbf0000300101ee197d02",
	"DistributorAdStart": "fc302c00000000000000fff00506fe000dbba00016021443554549000000027fff00002932e000003201031233f909",
	"SpliceInsertOut":    "fc303200000000000000fff01005000000057fbf00fe007b98a0000101010011020f43554549000000057fbf00002201017f1add87",
	"SpliceInsertIn":     "fc302d00000000000000fff00b05000000067f1f00000101010011020f43554549000000067fbf0000230101c2262974",
}

func vector(t *testing.T, name string) []byte {
	t.Helper()
	b, err := hex.DecodeString(vectors[name])
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestDecodeTimeSignal(t *testing.T) {
	t.Parallel()
	cue, err := Decode(vector(t, "ProviderAdStart"))
	if err != nil {
		t.Fatal(err)
	}
	if cue.Command != CommandTimeSignal || cue.PTS != 900000 || cue.Duration != NoTime {
		t.Errorf("got %+v, want time_signal at 900000", cue)
	}
	if len(cue.Segments) != 1 {
		t.Fatalf("segments: got %d, want 1", len(cue.Segments))
	}
	if seg := cue.Segments[0]; seg.EventID != 1 || seg.TypeID != 0x30 || seg.Duration != NoTime {
		t.Errorf("segment: got %+v", seg)
	}
}

func TestDecodeSegmentationDuration(t *testing.T) {
	t.Parallel()
	cue, err := Decode(vector(t, "DistributorAdStart"))
	if err != nil {
		t.Fatal(err)
	}
	if len(cue.Segments) != 1 {
		t.Fatalf("segments: got %d, want 1", len(cue.Segments))
	}
	if seg := cue.Segments[0]; seg.TypeID != 0x32 || seg.Duration != 30*90000 {
		t.Errorf("segment: got %+v, want type 0x32 lasting 30s", seg)
	}
}

func TestDecodeSpliceInsert(t *testing.T) {
	t.Parallel()
	out, err := Decode(vector(t, "SpliceInsertOut"))
	if err != nil {
		t.Fatal(err)
	}
	if out.Command != CommandInsert || out.EventID != 5 || !out.OutOfNetwork || !out.Immediate {
		t.Errorf("out: got %+v", out)
	}
	if out.PTS != NoTime || out.Duration != 90*90000 || !out.AutoReturn {
		t.Errorf("out timing: got pts %d duration %d auto %v", out.PTS, out.Duration, out.AutoReturn)
	}
	if len(out.Segments) != 1 || out.Segments[0].TypeID != 0x22 {
		t.Errorf("out segments: got %+v, want break start", out.Segments)
	}

	in, err := Decode(vector(t, "SpliceInsertIn"))
	if err != nil {
		t.Fatal(err)
	}
	if in.EventID != 6 || in.OutOfNetwork || in.Duration != NoTime {
		t.Errorf("in: got %+v", in)
	}
}

func TestDecodeAppliesPTSAdjustment(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		adjust [5]byte // encrypted flag, algorithm and pts_adjustment
		want   int64
	}{
		{"one second", [5]byte{0x00, 0x00, 0x01, 0x5F, 0x90}, 990000},
		{"wraps", [5]byte{0x01, 0xFF, 0xFF, 0xFF, 0xFF}, 899999},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sec := vector(t, "ProviderAdStart")
			copy(sec[4:9], tt.adjust[:])
			cue, err := Decode(sec)
			if err != nil {
				t.Fatal(err)
			}
			if cue.PTS != tt.want {
				t.Errorf("got %d, want %d", cue.PTS, tt.want)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()
	good := vector(t, "ProviderAdStart")

	wrongTable := append([]byte(nil), good...)
	wrongTable[0] = 0x02
	encrypted := append([]byte(nil), good...)
	encrypted[4] |= 0x80
	unknown := append([]byte(nil), good...)
	unknown[13] = 0x07 // bandwidth_reservation

	tests := []struct {
		name string
		in   []byte
		want error
	}{
		{"empty", nil, ErrShort},
		{"truncated", good[:20], ErrShort},
		{"table", wrongTable, ErrTableID},
		{"encrypted", encrypted, ErrEncrypted},
		{"command", unknown, ErrUnsupportedCommand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Decode(tt.in); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCommandString(t *testing.T) {
	t.Parallel()
	if got := CommandInsert.String(); got != "splice_insert" {
		t.Errorf("got %q, want splice_insert", got)
	}
	if got := Command(0xFF).String(); got != "command(0xFF)" {
		t.Errorf("got %q, want command(0xFF)", got)
	}
}
