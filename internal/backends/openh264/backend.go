// Package openh264 is the one backend in this repo that can emit real,
// decodable H.264 without a GPU: it wraps github.com/y9o/go-openh264's CPU
// encoder. Unlike internal/backends/simulated, it does not use
// internal/h264bitstream at all — go-openh264 is a complete encoder that
// produces its own SPS/PPS/slice NALs, so this backend's job is limited to
// format conversion, keyframe forcing, and shuttling bytes in and out of the
// pool's slot/fence shape.
package openh264

import (
	"fmt"
	"sync"

	goh264 "github.com/y9o/go-openh264"

	"github.com/breeze-rmm/h264enc/internal/encoder"
)

type resource struct {
	blobs [][]byte
}

type doneFence struct{ err error }

func (f doneFence) Wait() error          { return f.err }
func (f doneFence) Poll() (bool, error) { return true, f.err }

// backend serializes access to the single underlying goh264.Encoder:
// go-openh264's CPU encoder is not safe for concurrent Encode calls, so
// every EncodeSlot call takes the same lock a real single-session hardware
// context would (per spec.md §5, all driver calls are already serialized
// through one goroutine, but EncodeSlot's returned Fence is expected to be
// safe to Wait/Poll from elsewhere).
type backend struct {
	mu  sync.Mutex
	enc *goh264.Encoder
	cfg encoder.EncoderConfig
}

func newBackend(cfg encoder.EncoderConfig) (*backend, error) {
	enc, err := goh264.NewEncoder(goh264.EncoderParams{
		Width:        int(cfg.Resolution.Width),
		Height:       int(cfg.Resolution.Height),
		MaxFrameRate: float32(cfg.FrameRate),
		BitRate:      targetBitRate(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("openh264: new encoder: %w", err)
	}
	return &backend{enc: enc, cfg: cfg}, nil
}

func targetBitRate(cfg encoder.EncoderConfig) int {
	// go-openh264 wants an absolute bitrate; this driver's public config only
	// carries a QP range and a quality level (spec.md §3), so pick a
	// resolution-proportional default for the CBR/VBR cases and let the
	// library's own rate control take over from there.
	pixels := int(cfg.Resolution.Width) * int(cfg.Resolution.Height)
	return pixels * 2
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
	slot.Resource = &resource{blobs: [][]byte{nv12}} // nv12 parked until EncodeSlot consumes it
	return nil
}

func (b *backend) EncodeSlot(info encoder.FrameEncodeInfo, slot *encoder.EncodeSlot[*resource], setupRef *encoder.DpbSlot[*resource], l0, l1 []*encoder.DpbSlot[*resource]) (encoder.Fence, error) {
	nv12 := slot.Resource.blobs[0]

	b.mu.Lock()
	if info.FrameType == encoder.FrameIDR {
		b.enc.ForceIntraFrame()
	}
	nals, err := b.enc.Encode(nv12)
	b.mu.Unlock()
	encoder.ReleaseNV12Buffer(nv12)
	if err != nil {
		return nil, fmt.Errorf("openh264: encode: %w", err)
	}

	slot.Resource = &resource{blobs: nals}
	slot.IsIDR = info.FrameType == encoder.FrameIDR
	return doneFence{}, nil
}

func (b *backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enc.Close()
}

type device struct{}

func (device) Profiles() []encoder.Profile {
	return []encoder.Profile{encoder.ProfileBaseline, encoder.ProfileMain, encoder.ProfileHigh}
}

func (device) Capabilities(profile encoder.Profile) (encoder.Capabilities, error) {
	if profile == encoder.ProfileHigh {
		return encoder.Capabilities{}, &encoder.ErrUnsupportedProfile{Profile: profile}
	}
	return encoder.Capabilities{
		MinQP:                 0,
		MaxQP:                 51,
		MinResolution:         encoder.Resolution{Width: 16, Height: 16},
		MaxResolution:         encoder.Resolution{Width: 3840, Height: 2160},
		MaxL0PReferences:      1,
		MaxL0BReferences:      0,
		MaxL1BReferences:      0,
		MaxQualityLevel:       1,
		SupportedInputFormats: []encoder.PixelFormat{encoder.PixelFormatNV12, encoder.PixelFormatRGBA, encoder.PixelFormatBGRA, encoder.PixelFormatRGB, encoder.PixelFormatBGR},
	}, nil
}

func (device) CreateEncoder(cfg encoder.EncoderConfig) (encoder.H264EncoderBackend[*resource], error) {
	return newBackend(cfg)
}

// init registers this as a software fallback, not a hardware device: it runs
// entirely on the CPU, matching the teacher's registerHardwareFactory/
// newSoftwareEncoder split where only real accelerator bindings register as
// hardware.
func init() {
	encoder.RegisterSoftwareDevice(func(cfg encoder.EncoderConfig) (encoder.Encoder, error) {
		return encoder.New[*resource](device{}, cfg)
	})
}
