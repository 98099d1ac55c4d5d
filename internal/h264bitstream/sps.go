package h264bitstream

// Fixed SPS constants the driver never varies (spec. §6): 4:2:0 chroma,
// log2 ranges chosen oversized by the original implementation and carried
// forward as-is (see DESIGN.md Open Question 3) rather than right-sized per
// FramePattern, progressive-only, 8x8 direct-mode inference enabled.
const (
	chromaFormatIDC             = 1  // 4:2:0
	log2MaxFrameNumMinus4       = 12 // log2_max_frame_num = 16
	log2MaxPicOrderCntLsbMinus4 = 12 // log2_max_pic_order_cnt_lsb = 16

	// Log2MaxFrameNum / Log2MaxPicOrderCntLsb are exported so slice.go
	// callers (the driver) can size FrameNum/PicOrderCntLsb fields to match
	// the SPS this package emits.
	Log2MaxFrameNum       = log2MaxFrameNumMinus4 + 4
	Log2MaxPicOrderCntLsb = log2MaxPicOrderCntLsbMinus4 + 4
)

// SPSParams is the subset of sequence_parameter_set_rbsp fields this driver
// derives from an EncoderConfig resolution/profile/level. Unlisted SPS
// fields are the fixed constants above, since this driver only ever emits
// progressive, 4:2:0, single-slice-group streams.
type SPSParams struct {
	ProfileIDC   uint8
	LevelIDC     uint8
	SPSID        uint8
	Width        uint32
	Height       uint32
	MaxNumRefPic uint8
}

// macroblockDims returns the resolution rounded up to the next multiple of
// 16, and the crop offsets needed to signal the true resolution.
func macroblockDims(width, height uint32) (mbWidth, mbHeight, cropRight, cropBottom uint32) {
	mbWidth = (width + 15) / 16
	mbHeight = (height + 15) / 16
	alignedWidth := mbWidth * 16
	alignedHeight := mbHeight * 16
	// 4:2:0 chroma: crop units are 2 luma samples horizontally, 2 vertically.
	cropRight = (alignedWidth - width) / 2
	cropBottom = (alignedHeight - height) / 2
	return
}

// WriteSPS renders a complete SPS NAL unit (start code + header + RBSP with
// emulation prevention and trailing bits).
func WriteSPS(p SPSParams) []byte {
	return WriteNAL(NALTypeSPS, NALRefIDCHigh, writeSPSRBSP(p))
}

func writeSPSRBSP(p SPSParams) []byte {
	w := newBitWriter()

	w.writeUN(uint32(p.ProfileIDC), 8)
	// constraint_set0-5_flag + reserved_zero_2bits
	w.writeUN(0, 8)
	w.writeUN(uint32(p.LevelIDC), 8)
	w.writeUE(uint32(p.SPSID))

	// High-family profiles carry chroma/bit-depth fields; baseline and main
	// omit them and 4:2:0 8-bit is inferred.
	switch p.ProfileIDC {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134, 135:
		w.writeUE(chromaFormatIDC) // chroma_format_idc
		w.writeUE(0)               // bit_depth_luma_minus8
		w.writeUE(0)               // bit_depth_chroma_minus8
		w.writeFlag(false)         // qpprime_y_zero_transform_bypass_flag
		w.writeFlag(false)         // seq_scaling_matrix_present_flag
	}
	w.writeUE(log2MaxFrameNumMinus4)

	w.writeUE(0) // pic_order_cnt_type = 0: the only mode this driver emits
	w.writeUE(log2MaxPicOrderCntLsbMinus4)

	w.writeUE(uint32(p.MaxNumRefPic))
	w.writeFlag(true) // gaps_in_frame_num_value_allowed_flag

	mbWidth, mbHeight, cropRight, cropBottom := macroblockDims(p.Width, p.Height)
	w.writeUE(mbWidth - 1)
	w.writeUE(mbHeight - 1)

	w.writeFlag(true) // frame_mbs_only_flag: progressive only
	w.writeFlag(true) // direct_8x8_inference_flag

	cropped := cropRight != 0 || cropBottom != 0
	w.writeFlag(cropped)
	if cropped {
		w.writeUE(0)          // frame_crop_left_offset
		w.writeUE(cropRight)  // frame_crop_right_offset
		w.writeUE(0)          // frame_crop_top_offset
		w.writeUE(cropBottom) // frame_crop_bottom_offset
	}

	w.writeFlag(false) // vui_parameters_present_flag

	w.rbspTrailingBits()
	return w.bytes()
}
