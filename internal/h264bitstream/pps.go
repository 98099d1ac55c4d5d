package h264bitstream

// Fixed PPS constants the driver never varies (spec. §6): CABAC entropy
// coding and a baseline init QP of 24, applied uniformly regardless of
// EncoderConfig's rate-control QP bounds (those govern the backend's
// per-frame QP, not this static PPS default).
const (
	entropyCodingModeCABAC = true
	picInitQP              = 24
)

// PPSParams is the subset of picture_parameter_set_rbsp fields this driver
// derives from EncoderConfig. This driver always emits a single slice
// group and never signals per-slice deblocking-filter overrides.
type PPSParams struct {
	PPSID               uint8
	SPSID               uint8
	NumRefIdxL0Default  uint8
	NumRefIdxL1Default  uint8
	ChromaQPIndexOffset int32
}

// WritePPS renders a complete PPS NAL unit.
func WritePPS(p PPSParams) []byte {
	return WriteNAL(NALTypePPS, NALRefIDCHigh, writePPSRBSP(p))
}

func writePPSRBSP(p PPSParams) []byte {
	w := newBitWriter()

	w.writeUE(uint32(p.PPSID))
	w.writeUE(uint32(p.SPSID))
	w.writeFlag(entropyCodingModeCABAC)
	w.writeFlag(false) // bottom_field_pic_order_in_frame_present_flag
	w.writeUE(0)        // num_slice_groups_minus1: single slice group

	w.writeUE(uint32(p.NumRefIdxL0Default) - 1)
	w.writeUE(uint32(p.NumRefIdxL1Default) - 1)

	w.writeFlag(false) // weighted_pred_flag
	w.writeUN(0, 2)     // weighted_bipred_idc

	w.writeSE(picInitQP - 26) // pic_init_qp_minus26
	w.writeSE(picInitQP - 26) // pic_init_qs_minus26
	w.writeSE(p.ChromaQPIndexOffset)

	w.writeFlag(true)  // deblocking_filter_control_present_flag
	w.writeFlag(false) // constrained_intra_pred_flag
	w.writeFlag(false) // redundant_pic_cnt_present_flag

	w.rbspTrailingBits()
	return w.bytes()
}
