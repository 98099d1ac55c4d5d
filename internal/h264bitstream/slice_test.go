package h264bitstream

import (
	"errors"
	"testing"
)

func TestIDRPreambleOrdering(t *testing.T) {
	// §8 "IDR preamble": SPS NAL then PPS NAL then the first slice NAL.
	sps := WriteSPS(SPSParams{ProfileIDC: 66, LevelIDC: 31, Width: 640, Height: 480, MaxNumRefPic: 2})
	pps := WritePPS(PPSParams{NumRefIdxL0Default: 1, NumRefIdxL1Default: 1})
	slice := WriteSliceHeader(SliceHeaderParams{
		SliceType:       SliceTypeI,
		IsIDR:           true,
		IDRPicID:        0,
		Log2MaxFrameNum: Log2MaxFrameNum,
		Log2MaxPOCLsb:   Log2MaxPicOrderCntLsb,
	}, []byte{0xde, 0xad})

	preamble := append(append([]byte{}, sps...), pps...)
	preamble = append(preamble, slice...)

	firstType := nalTypeAt(preamble, 0)
	if firstType != NALTypeSPS {
		t.Fatalf("first NAL type = %d, want SPS (%d)", firstType, NALTypeSPS)
	}

	secondOffset := nextStartCode(preamble, 4)
	secondType := nalTypeAt(preamble, secondOffset)
	if secondType != NALTypePPS {
		t.Fatalf("second NAL type = %d, want PPS (%d)", secondType, NALTypePPS)
	}

	thirdOffset := nextStartCode(preamble, secondOffset+4)
	thirdType := nalTypeAt(preamble, thirdOffset)
	if thirdType != NALTypeIDRSlice {
		t.Fatalf("third NAL type = %d, want IDR slice (%d)", thirdType, NALTypeIDRSlice)
	}
}

func TestBSliceHasZeroRefIDC(t *testing.T) {
	nal := WriteSliceHeader(SliceHeaderParams{
		SliceType:       SliceTypeB,
		Log2MaxFrameNum: Log2MaxFrameNum,
		Log2MaxPOCLsb:   Log2MaxPicOrderCntLsb,
		L0:              []RefPicListEntry{{FrameNum: 3}},
		L1:              []RefPicListEntry{{FrameNum: 4}},
	}, nil)
	refIDC := (nal[4] >> 5) & 0x3
	if refIDC != NALRefIDCNone {
		t.Errorf("B slice nal_ref_idc = %d, want 0", refIDC)
	}
}

// TestBSliceEmitsDirectSpatialMvPredFlag walks the actual header bits of a B
// slice with a tiny read-side bit reader (independent of bitWriter) to prove
// direct_spatial_mv_pred_flag is present between pic_order_cnt_lsb and
// num_ref_idx_active_override_flag, per H.264 §7.3.3 — the field an
// independent parser needs to stay aligned for everything that follows.
func TestBSliceEmitsDirectSpatialMvPredFlag(t *testing.T) {
	nal := WriteSliceHeader(SliceHeaderParams{
		SliceType:       SliceTypeB,
		Log2MaxFrameNum: Log2MaxFrameNum,
		Log2MaxPOCLsb:   Log2MaxPicOrderCntLsb,
		L0:              []RefPicListEntry{{FrameNum: 3}},
		L1:              []RefPicListEntry{{FrameNum: 4}},
	}, nil)

	// Skip the 4-byte start code and 1-byte NAL header to reach the RBSP.
	r := newTestBitReader(nal[5:])

	r.readUE() // first_mb_in_slice

	sliceType := r.readUE() // slice_type
	if sliceType != SliceTypeB {
		t.Fatalf("slice_type = %d, want %d", sliceType, SliceTypeB)
	}

	r.readUE()                             // pic_parameter_set_id
	r.readBits(int(Log2MaxFrameNum))       // frame_num
	r.readBits(int(Log2MaxPicOrderCntLsb)) // pic_order_cnt_lsb

	directSpatialMvPredFlag := r.readBit()
	if directSpatialMvPredFlag != 0 {
		t.Errorf("direct_spatial_mv_pred_flag = %d, want 0", directSpatialMvPredFlag)
	}

	numRefIdxActiveOverrideFlag := r.readBit()
	if numRefIdxActiveOverrideFlag != 0 {
		t.Errorf("num_ref_idx_active_override_flag = %d, want 0", numRefIdxActiveOverrideFlag)
	}
	if r.err != nil {
		t.Fatalf("bit reader ran past the end of the header: %v", r.err)
	}
}

func TestPSliceHasNonZeroRefIDC(t *testing.T) {
	nal := WriteSliceHeader(SliceHeaderParams{
		SliceType:       SliceTypeP,
		Log2MaxFrameNum: Log2MaxFrameNum,
		Log2MaxPOCLsb:   Log2MaxPicOrderCntLsb,
	}, nil)
	refIDC := (nal[4] >> 5) & 0x3
	if refIDC == NALRefIDCNone {
		t.Errorf("P slice nal_ref_idc = 0, want nonzero")
	}
}

// testBitReader is a minimal, read-only, MSB-first bit reader independent of
// bitWriter, used only to prove the fields WriteSliceHeader emits land where
// an independent parser would expect them.
type testBitReader struct {
	buf     []byte
	byteIdx int
	bitIdx  int // 0-7, next bit to read within buf[byteIdx]
	err     error
}

func newTestBitReader(buf []byte) *testBitReader {
	return &testBitReader{buf: buf}
}

func (r *testBitReader) readBit() uint32 {
	if r.err != nil {
		return 0
	}
	if r.byteIdx >= len(r.buf) {
		r.err = errEndOfBuffer
		return 0
	}
	bit := (r.buf[r.byteIdx] >> (7 - r.bitIdx)) & 1
	r.bitIdx++
	if r.bitIdx == 8 {
		r.bitIdx = 0
		r.byteIdx++
	}
	return uint32(bit)
}

func (r *testBitReader) readBits(n int) uint32 {
	var v uint32
	for i := 0; i < n; i++ {
		v = v<<1 | r.readBit()
	}
	return v
}

// readUE reads an unsigned Exp-Golomb code: leadingZeroBits, then a 1 bit,
// then leadingZeroBits more bits, per H.264 §9.1.
func (r *testBitReader) readUE() uint32 {
	leadingZeroBits := 0
	for r.readBit() == 0 {
		leadingZeroBits++
		if r.err != nil || leadingZeroBits > 32 {
			return 0
		}
	}
	if leadingZeroBits == 0 {
		return 0
	}
	return (1 << uint(leadingZeroBits)) - 1 + r.readBits(leadingZeroBits)
}

var errEndOfBuffer = errors.New("h264bitstream: read past end of buffer")

// nalTypeAt returns the nal_unit_type byte of the NAL starting at a known
// start-code offset.
func nalTypeAt(b []byte, startCodeOffset int) uint8 {
	return b[startCodeOffset+4] & 0x1f
}

// nextStartCode finds the next 00 00 00 01 sequence at or after from.
func nextStartCode(b []byte, from int) int {
	for i := from; i+4 <= len(b); i++ {
		if b[i] == 0 && b[i+1] == 0 && b[i+2] == 0 && b[i+3] == 1 {
			return i
		}
	}
	return -1
}
