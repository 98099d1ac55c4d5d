package h264bitstream

// NAL unit type codes, Table 7-1 of the H.264 spec (ITU-T Rec. H.264),
// grounded on ausocean-av/codec/h264/lex.go's constants.
const (
	NALTypeNonIDRSlice = 1
	NALTypeIDRSlice    = 5
	NALTypeSEI         = 6
	NALTypeSPS         = 7
	NALTypePPS         = 8
)

// nalPrefix is the Annex-B start code, grounded on lex.go's h264Prefix
// (there used as a 5-byte lex marker including a forbidden first-slice NAL;
// here we only need the bare 4-byte start code since each NAL is framed
// independently on write).
var nalPrefix = [4]byte{0x00, 0x00, 0x00, 0x01}

// NALRefIDC values used by this driver: parameter sets and reference slices
// carry the highest priority, non-reference (B) slices carry zero.
const (
	NALRefIDCHigh = 3
	NALRefIDCNone = 0
)

// WriteNAL frames rbsp as a complete Annex-B NAL unit: start code, one header
// byte (forbidden_zero_bit=0, nal_ref_idc, nal_unit_type), then the RBSP
// payload with emulation-prevention bytes inserted.
func WriteNAL(nalType uint8, refIDC uint8, rbsp []byte) []byte {
	out := make([]byte, 0, len(nalPrefix)+1+len(rbsp)+len(rbsp)/3+1)
	out = append(out, nalPrefix[:]...)
	header := (refIDC&0x3)<<5 | (nalType & 0x1f)
	out = append(out, header)
	out = append(out, emulationPrevent(rbsp)...)
	return out
}

// emulationPrevent inserts an 0x03 byte before the third byte of any 00 00 00,
// 00 00 01, 00 00 02 or 00 00 03 sequence in payload, per H.264 Annex-B
// emulation prevention.
func emulationPrevent(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+len(payload)/3+1)
	zeroRun := 0
	for _, b := range payload {
		if zeroRun >= 2 && b <= 3 {
			out = append(out, 0x03)
			zeroRun = 0
		}
		out = append(out, b)
		if b == 0 {
			zeroRun++
		} else {
			zeroRun = 0
		}
	}
	return out
}
