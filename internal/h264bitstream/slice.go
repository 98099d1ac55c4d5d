package h264bitstream

// SliceType values per Table 7-6 (only the three this driver emits).
const (
	SliceTypeP = 0
	SliceTypeB = 1
	SliceTypeI = 2
)

// RefPicListEntry is one entry of a slice's L0 or L1 reference picture list:
// enough to emit ref_pic_list_modification and the reorder deltas. The
// backend-specific picture descriptor itself never appears here — the
// bitstream writer only needs each entry's frame_num delta from the slice
// being coded.
type RefPicListEntry struct {
	FrameNum uint16
}

// SliceHeaderParams is the subset of slice_header fields this driver derives
// per picture from the planner (Component A) and the DPB manager
// (Component D).
type SliceHeaderParams struct {
	FirstMBInSlice uint32
	SliceType      uint8
	PPSID          uint8
	FrameNum       uint16
	IsIDR          bool
	IDRPicID       uint16 // only meaningful when IsIDR
	PicOrderCntLsb uint32
	NumRefIdxL0    uint8 // 0 for I/IDR slices
	NumRefIdxL1    uint8 // 0 for everything but B slices
	L0             []RefPicListEntry
	L1             []RefPicListEntry
	SliceQPDelta   int32

	Log2MaxFrameNum   uint32 // log2_max_frame_num_minus4 + 4, must match the SPS
	Log2MaxPOCLsb     uint32 // log2_max_pic_order_cnt_lsb_minus4 + 4, must match the SPS
}

// WriteSliceHeader renders the slice_header RBSP followed by a placeholder
// slice_data payload (the backend owns macroblock/residual coding; the
// driver only ever needs a syntactically valid header preceding backend
// output bytes it receives already coded). refIDC is 0 for B slices and the
// packed reference priority otherwise, matching H.264's nal_ref_idc rule
// that non-reference pictures carry ref_idc = 0.
func WriteSliceHeader(p SliceHeaderParams, payload []byte) []byte {
	nalType := uint8(NALTypeNonIDRSlice)
	refIDC := uint8(NALRefIDCHigh)
	if p.IsIDR {
		nalType = NALTypeIDRSlice
	}
	if p.SliceType == SliceTypeB {
		refIDC = NALRefIDCNone
	}

	w := newBitWriter()

	w.writeUE(p.FirstMBInSlice)
	w.writeUE(uint32(p.SliceType))
	w.writeUE(uint32(p.PPSID))

	w.writeUN(uint32(p.FrameNum), int(p.Log2MaxFrameNum))

	if p.IsIDR {
		w.writeUE(uint32(p.IDRPicID))
	}

	w.writeUN(p.PicOrderCntLsb, int(p.Log2MaxPOCLsb))

	if p.SliceType == SliceTypeB {
		w.writeFlag(false) // direct_spatial_mv_pred_flag: spatial direct mode
	}

	if p.SliceType != SliceTypeI {
		w.writeFlag(false) // num_ref_idx_active_override_flag: use PPS defaults
	}

	if p.SliceType != SliceTypeI {
		writeRefPicListModification(w, p.L0)
	}
	if p.SliceType == SliceTypeB {
		writeRefPicListModification(w, p.L1)
	}

	if refIDC != NALRefIDCNone {
		writeDecRefPicMarking(w, p.IsIDR)
	}

	if p.SliceType != SliceTypeI {
		w.writeUE(0) // cabac_init_idc handled at PPS level; no override here
	}
	w.writeSE(p.SliceQPDelta)

	w.writeUE(0) // disable_deblocking_filter_idc: always filter
	w.writeSE(0) // slice_alpha_c0_offset_div2
	w.writeSE(0) // slice_beta_offset_div2

	w.rbspTrailingBits()
	rbsp := append(w.bytes(), payload...)
	return WriteNAL(nalType, refIDC, rbsp)
}

func writeRefPicListModification(w *bitWriter, refs []RefPicListEntry) {
	// This driver always submits reference lists in the order the DPB
	// manager already built them, so no reordering commands are ever
	// needed: ref_pic_list_modification_flag_l{0,1} = 0.
	w.writeFlag(false)
	_ = refs
}

func writeDecRefPicMarking(w *bitWriter, isIDR bool) {
	if isIDR {
		w.writeFlag(false) // no_output_of_prior_pics_flag
		w.writeFlag(false) // long_term_reference_flag
		return
	}
	w.writeFlag(false) // adaptive_ref_pic_marking_mode_flag: sliding window only
}
