package h264bitstream

import (
	"bytes"
	"testing"
)

func TestWriteUE(t *testing.T) {
	cases := []struct {
		v    uint32
		bits string
	}{
		{0, "1"},
		{1, "010"},
		{2, "011"},
		{3, "00100"},
		{4, "00101"},
		{5, "00110"},
		{6, "00111"},
	}
	for _, c := range cases {
		w := newBitWriter()
		w.writeUE(c.v)
		got := bitsString(w)
		if got[:len(c.bits)] != c.bits {
			t.Errorf("writeUE(%d) = %s, want prefix %s", c.v, got, c.bits)
		}
	}
}

func TestWriteSE(t *testing.T) {
	// se(v) mapping: 0,1,-1,2,-2,3,-3 -> codeNum 0,1,2,3,4,5,6
	cases := []struct {
		v    int32
		bits string
	}{
		{0, "1"},
		{1, "010"},
		{-1, "011"},
		{2, "00100"},
		{-2, "00101"},
	}
	for _, c := range cases {
		w := newBitWriter()
		w.writeSE(c.v)
		got := bitsString(w)
		if got[:len(c.bits)] != c.bits {
			t.Errorf("writeSE(%d) = %s, want prefix %s", c.v, got, c.bits)
		}
	}
}

func TestWriteUN(t *testing.T) {
	w := newBitWriter()
	w.writeUN(0b1011, 4)
	if got := bitsString(w); got != "1011" {
		t.Errorf("writeUN = %s, want 1011", got)
	}
}

func TestRBSPTrailingBitsByteAligns(t *testing.T) {
	w := newBitWriter()
	w.writeUN(0b101, 3)
	w.rbspTrailingBits()
	if len(w.bytes()) != 1 {
		t.Fatalf("expected exactly 1 byte after trailing bits, got %d", len(w.bytes()))
	}
}

func TestEmulationPrevention(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		want []byte
	}{
		{"no run", []byte{0x01, 0x02, 0x03}, []byte{0x01, 0x02, 0x03}},
		{"00 00 00", []byte{0x00, 0x00, 0x00}, []byte{0x00, 0x00, 0x03, 0x00}},
		{"00 00 01", []byte{0x00, 0x00, 0x01}, []byte{0x00, 0x00, 0x03, 0x01}},
		{"00 00 02", []byte{0x00, 0x00, 0x02}, []byte{0x00, 0x00, 0x03, 0x02}},
		{"00 00 03", []byte{0x00, 0x00, 0x03}, []byte{0x00, 0x00, 0x03, 0x03}},
		{"00 00 04 untouched", []byte{0x00, 0x00, 0x04}, []byte{0x00, 0x00, 0x04}},
		{"long zero run", []byte{0x00, 0x00, 0x00, 0x00, 0x01}, []byte{0x00, 0x00, 0x03, 0x00, 0x00, 0x03, 0x01}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := emulationPrevent(c.in)
			if !bytes.Equal(got, c.want) {
				t.Errorf("emulationPrevent(% x) = % x, want % x", c.in, got, c.want)
			}
		})
	}
}

func TestEmulationPreventionNoForbiddenTriples(t *testing.T) {
	// Exhaustive-ish fuzz-free check: any payload containing every
	// 2-zero-prefixed triple must come out with an inserted 0x03 before it.
	in := bytes.Repeat([]byte{0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x02, 0x00, 0x00, 0x03}, 4)
	out := emulationPrevent(in)
	for i := 0; i+2 < len(out); i++ {
		if out[i] != 0 || out[i+1] != 0 {
			continue
		}
		if out[i+2] <= 2 {
			t.Fatalf("forbidden triple at offset %d: % x", i, out[i:i+3])
		}
		// 00 00 03 is only legal as an inserted escape, which always
		// precedes a byte in 00..03.
		if out[i+2] == 3 && (i+3 >= len(out) || out[i+3] > 3) {
			t.Fatalf("00 00 03 at offset %d is not an emulation-prevention escape: % x", i, out[i:])
		}
	}
}

// bitsString renders the bits written so far as a string of '0'/'1',
// including the partially-filled current byte, for test readability.
func bitsString(w *bitWriter) string {
	var sb []byte
	for _, b := range w.buf {
		for i := 7; i >= 0; i-- {
			if (b>>uint(i))&1 == 1 {
				sb = append(sb, '1')
			} else {
				sb = append(sb, '0')
			}
		}
	}
	for i := w.nBits - 1; i >= 0; i-- {
		if (w.curByte>>uint(i))&1 == 1 {
			sb = append(sb, '1')
		} else {
			sb = append(sb, '0')
		}
	}
	return string(sb)
}
