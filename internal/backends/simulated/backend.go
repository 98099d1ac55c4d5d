// Package simulated implements a no-GPU H264EncoderBackend that drives the
// bitstream writer directly instead of any real macroblock/residual coder.
// It exists for tests and as the CLI harness's default device when no real
// accelerator is requested, the same role the teacher's encoder_software.go
// placeholder plays ("until x264/vpx bindings are integrated").
package simulated

import (
	"fmt"
	"sync"

	"github.com/breeze-rmm/h264enc/internal/encoder"
	"github.com/breeze-rmm/h264enc/internal/h264bitstream"
)

// picInitQP must track the fixed pic_init_qp the PPS writer always emits
// (h264bitstream.WritePPS), since SliceQPDelta is relative to it.
const picInitQP = 24

// resource is the per-slot state this backend needs: nothing GPU-shaped,
// just the uploaded frame and the coded output blobs produced by EncodeSlot.
type resource struct {
	input  []byte
	blobs  [][]byte
}

// chanFence simulates an out-of-order-capable GPU completion signal with a
// channel closed from a goroutine, rather than resolving synchronously — so
// code exercising SlotPool's backlog/drain paths behaves the same way it
// would against a real accelerator.
type chanFence struct {
	done chan struct{}
	err  error
}

func newChanFence() *chanFence {
	return &chanFence{done: make(chan struct{})}
}

func (f *chanFence) complete(err error) {
	f.err = err
	close(f.done)
}

func (f *chanFence) Wait() error {
	<-f.done
	return f.err
}

func (f *chanFence) Poll() (bool, error) {
	select {
	case <-f.done:
		return true, f.err
	default:
		return false, nil
	}
}

type backend struct {
	mu   sync.Mutex
	cfg  encoder.EncoderConfig
	rc   encoder.RateControl
	sps  []byte
	pps  []byte
	init bool
}

func newBackend(cfg encoder.EncoderConfig) *backend {
	return &backend{cfg: cfg, rc: buildRateControl(cfg)}
}

// buildRateControl turns cfg's flat QP bounds into a two-layer RateControl:
// layer 0 covers reference pictures at the configured bounds; layer 1
// widens the ceiling for non-reference B-frames, which can tolerate coarser
// quantization since no later picture is ever predicted from them.
func buildRateControl(cfg encoder.EncoderConfig) encoder.RateControl {
	minQP, maxQP := cfg.MinQP, cfg.MaxQP
	if minQP == 0 && maxQP == 0 {
		minQP, maxQP = 0, 51
	}
	bMaxQP := maxQP
	if bMaxQP < 51-4 {
		bMaxQP += 4
	} else {
		bMaxQP = 51
	}
	rc, err := encoder.NewRateControlBuilder(cfg.RateControl).
		WithLayerBound(0, minQP, maxQP).
		WithLayerBound(1, minQP, bMaxQP).
		Build()
	if err != nil {
		// minQP <= maxQP is guaranteed by validate.go before a Driver is
		// ever constructed; a builder failure here means that contract
		// was violated upstream.
		panic(fmt.Sprintf("simulated: %v", err))
	}
	return rc
}

func (b *backend) WaitEncodeSlot(slot *encoder.EncodeSlot[*resource]) error {
	return nil
}

func (b *backend) PollEncodeSlot(slot *encoder.EncodeSlot[*resource]) (bool, error) {
	return true, nil
}

func (b *backend) ReadOutEncodeSlot(slot *encoder.EncodeSlot[*resource], output *[][]byte) error {
	*output = append(*output, slot.Resource.blobs...)
	return nil
}

func (b *backend) UploadImageToSlot(slot *encoder.EncodeSlot[*resource], img encoder.Image) error {
	nv12, err := encoder.ConvertToNV12(img)
	if err != nil {
		return err
	}
	slot.Resource = &resource{input: nv12}
	return nil
}

func (b *backend) EncodeSlot(info encoder.FrameEncodeInfo, slot *encoder.EncodeSlot[*resource], setupRef *encoder.DpbSlot[*resource], l0, l1 []*encoder.DpbSlot[*resource]) (encoder.Fence, error) {
	fence := newChanFence()
	go func() {
		fence.complete(b.encode(info, slot, l0, l1))
	}()
	return fence, nil
}

func (b *backend) encode(info encoder.FrameEncodeInfo, slot *encoder.EncodeSlot[*resource], l0, l1 []*encoder.DpbSlot[*resource]) error {
	if slot.Resource != nil && slot.Resource.input != nil {
		// This backend never reads pixel data back out of the uploaded
		// buffer (it drives the bitstream writer directly), so the buffer
		// is done being needed the moment encode starts.
		encoder.ReleaseNV12Buffer(slot.Resource.input)
	}

	b.mu.Lock()
	if !b.init {
		b.sps, b.pps = b.buildParameterSets()
		b.init = true
	}
	b.mu.Unlock()

	var blobs [][]byte
	if info.FrameType == encoder.FrameIDR {
		blobs = append(blobs, append(append([]byte(nil), b.sps...), b.pps...))
	}

	bound := b.rc.BoundFor(info.FrameType)
	qp := (uint32(bound.MinQP) + uint32(bound.MaxQP)) / 2

	slice := h264bitstream.WriteSliceHeader(h264bitstream.SliceHeaderParams{
		SliceType:         sliceType(info.FrameType),
		PPSID:             0,
		FrameNum:          info.FrameNum,
		IsIDR:             info.FrameType == encoder.FrameIDR,
		IDRPicID:          info.IDRPicID,
		PicOrderCntLsb:    uint32(info.PictureOrderCount) & ((1 << h264bitstream.Log2MaxPicOrderCntLsb) - 1),
		NumRefIdxL0:       uint8(len(l0)),
		NumRefIdxL1:       uint8(len(l1)),
		L0:                toRefList(l0),
		L1:                toRefList(l1),
		SliceQPDelta:      int32(qp) - picInitQP,
		Log2MaxFrameNum:   h264bitstream.Log2MaxFrameNum,
		Log2MaxPOCLsb:     h264bitstream.Log2MaxPicOrderCntLsb,
	}, nil)
	blobs = append(blobs, slice)

	slot.Resource = &resource{blobs: blobs}
	slot.IsIDR = info.FrameType == encoder.FrameIDR
	return nil
}

func (b *backend) buildParameterSets() (sps, pps []byte) {
	maxRef := b.cfg.MaxL0References
	if maxRef == 0 {
		maxRef = 1
	}
	sps = h264bitstream.WriteSPS(h264bitstream.SPSParams{
		ProfileIDC:   profileIDC(b.cfg.Profile),
		LevelIDC:     uint8(b.cfg.Level),
		SPSID:        0,
		Width:        b.cfg.Resolution.Width,
		Height:       b.cfg.Resolution.Height,
		MaxNumRefPic: uint8(maxRef),
	})
	pps = h264bitstream.WritePPS(h264bitstream.PPSParams{
		PPSID:               0,
		SPSID:               0,
		NumRefIdxL0Default:  uint8(maxRef),
		NumRefIdxL1Default:  1,
		ChromaQPIndexOffset: 0,
	})
	return sps, pps
}

func sliceType(t encoder.FrameType) uint8 {
	switch t {
	case encoder.FrameIDR, encoder.FrameI:
		return h264bitstream.SliceTypeI
	case encoder.FrameB:
		return h264bitstream.SliceTypeB
	default:
		return h264bitstream.SliceTypeP
	}
}

func profileIDC(p encoder.Profile) uint8 {
	switch p {
	case encoder.ProfileMain:
		return 77
	case encoder.ProfileHigh:
		return 100
	default:
		return 66
	}
}

func toRefList(slots []*encoder.DpbSlot[*resource]) []h264bitstream.RefPicListEntry {
	out := make([]h264bitstream.RefPicListEntry, len(slots))
	for i, s := range slots {
		out[i] = h264bitstream.RefPicListEntry{FrameNum: s.FrameNum()}
	}
	return out
}

type device struct{}

func (device) Profiles() []encoder.Profile {
	return []encoder.Profile{encoder.ProfileBaseline, encoder.ProfileMain, encoder.ProfileHigh}
}

func (device) Capabilities(profile encoder.Profile) (encoder.Capabilities, error) {
	return encoder.Capabilities{
		MinQP:                 0,
		MaxQP:                 51,
		MinResolution:         encoder.Resolution{Width: 16, Height: 16},
		MaxResolution:         encoder.Resolution{Width: 7680, Height: 4320},
		MaxL0PReferences:      4,
		MaxL0BReferences:      2,
		MaxL1BReferences:      1,
		MaxQualityLevel:       1,
		SupportedInputFormats: []encoder.PixelFormat{encoder.PixelFormatNV12, encoder.PixelFormatRGBA, encoder.PixelFormatBGRA, encoder.PixelFormatRGB, encoder.PixelFormatBGR},
	}, nil
}

func (device) CreateEncoder(cfg encoder.EncoderConfig) (encoder.H264EncoderBackend[*resource], error) {
	return newBackend(cfg), nil
}

func init() {
	encoder.RegisterSoftwareDevice(func(cfg encoder.EncoderConfig) (encoder.Encoder, error) {
		return encoder.New[*resource](device{}, cfg)
	})
}
