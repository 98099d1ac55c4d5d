package h264bitstream

import "testing"

func TestMacroblockDims1920x1080(t *testing.T) {
	// §8 scenario 6.
	mbWidth, mbHeight, cropRight, cropBottom := macroblockDims(1920, 1080)
	if mbWidth-1 != 119 {
		t.Errorf("pic_width_in_mbs_minus1 = %d, want 119", mbWidth-1)
	}
	if cropRight != 0 {
		t.Errorf("frame_crop_right_offset = %d, want 0", cropRight)
	}
	if cropBottom != 4 {
		t.Errorf("frame_crop_bottom_offset = %d, want 4", cropBottom)
	}
	_ = mbHeight
}

func TestWriteSPSStartsWithNALHeader(t *testing.T) {
	nal := WriteSPS(SPSParams{
		ProfileIDC:   66,
		LevelIDC:     31,
		Width:        1920,
		Height:       1080,
		MaxNumRefPic: 2,
	})
	if len(nal) < 5 {
		t.Fatalf("SPS NAL too short: %d bytes", len(nal))
	}
	if nal[0] != 0 || nal[1] != 0 || nal[2] != 0 || nal[3] != 1 {
		t.Fatalf("missing Annex-B start code: % x", nal[:4])
	}
	nalType := nal[4] & 0x1f
	if nalType != NALTypeSPS {
		t.Fatalf("nal_unit_type = %d, want %d", nalType, NALTypeSPS)
	}
}

func TestWriteSPSNoCropForAlignedResolution(t *testing.T) {
	_, _, cropRight, cropBottom := macroblockDims(1280, 720)
	if cropRight != 0 || cropBottom != 0 {
		t.Errorf("1280x720 is macroblock-aligned, want no cropping, got right=%d bottom=%d", cropRight, cropBottom)
	}
}
