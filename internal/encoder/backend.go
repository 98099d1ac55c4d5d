package encoder

import (
	"fmt"
	"sync"
)

// Image is the colour-input interface the driver accepts from its caller
// (spec. §6 "Colour-input interface"): planar pixel data tagged with its
// format and whether it is already YUV or needs BT.709 full-range RGB→YUV
// conversion. Concrete implementations live outside this package (the CLI
// harness, a WebRTC track source, a test fixture).
type Image interface {
	PixelFormat() PixelFormat
	Width() uint32
	Height() uint32
	// Planes returns one []byte per plane in the format's natural plane
	// order (e.g. Y then interleaved UV for NV12).
	Planes() [][]byte
	// Strides returns the byte stride of each plane, same order as Planes.
	Strides() []int
}

// H264EncoderBackend is the contract the driver expects from an accelerator
// (spec. §4.F). R is the backend's opaque per-slot resource type — a Vulkan
// image view, a VA-API surface ID, or a plain byte buffer for a software
// backend. Errors are returned, never panicked (panics are reserved for
// invariant violations the driver itself detects, per §7).
type H264EncoderBackend[R any] interface {
	// WaitEncodeSlot blocks until slot's GPU work has completed or failed.
	WaitEncodeSlot(slot *EncodeSlot[R]) error
	// PollEncodeSlot reports whether slot's GPU work has completed, without
	// blocking.
	PollEncodeSlot(slot *EncodeSlot[R]) (done bool, err error)
	// ReadOutEncodeSlot appends the slot's coded output to output: for an
	// IDR slot, the SPS+PPS blob first, then the coded-picture blob;
	// otherwise just the coded-picture blob.
	ReadOutEncodeSlot(slot *EncodeSlot[R], output *[][]byte) error
	// UploadImageToSlot converts (if necessary) and copies img into slot's
	// input resource.
	UploadImageToSlot(slot *EncodeSlot[R], img Image) error
	// EncodeSlot records and submits the commands that encode info's
	// picture using slot's input image against setupRef/l0/l1, then arms
	// slot's completion fence and returns it.
	EncodeSlot(info FrameEncodeInfo, slot *EncodeSlot[R], setupRef *DpbSlot[R], l0, l1 []*DpbSlot[R]) (Fence, error)
}

// H264EncoderDevice is the factory contract a backend's "physical device"
// handle satisfies: the driver opens an encoder through it the same way the
// Rust trait's profiles/capabilities/create_encoder triad works.
type H264EncoderDevice[R any] interface {
	CapabilityProbe
	CreateEncoder(cfg EncoderConfig) (H264EncoderBackend[R], error)
}

// RateControlMode selects the rate-control variant in EncoderConfig. The
// driver only validates it; a backend turns it and the QP bounds into its own
// flat RateControl descriptor (see ratecontrol.go; spec. §9 design note on
// avoiding a self-referential pointer graph at the public boundary).
type RateControlMode uint8

const (
	RateControlDisabled RateControlMode = iota
	RateControlCBR
	RateControlVBR
	RateControlConstantQuality
)

func (m RateControlMode) String() string {
	switch m {
	case RateControlCBR:
		return "cbr"
	case RateControlVBR:
		return "vbr"
	case RateControlConstantQuality:
		return "constant_quality"
	default:
		return "disabled"
	}
}

// EncoderConfig is the caller-supplied, backend-agnostic configuration for
// one Driver instance (spec. §3). It carries no CLI/env/file dependency —
// callers (e.g. the CLI harness in cmd/h264encd) are responsible for
// populating it from whatever source they choose.
type EncoderConfig struct {
	Profile    Profile
	Level      Level
	Resolution Resolution
	FrameRate  uint32

	Pattern FramePattern

	RateControl  RateControlMode
	MinQP, MaxQP uint8
	QualityLevel uint32

	MaxSliceLen uint32

	MaxL0References uint32
	MaxL1References uint32

	PreferHardware bool
}

// Encoder is the type-erased façade every Driver[R] satisfies. The
// hardware/software device registry below hands callers one of these so
// cmd/h264encd and internal/transport never need to know a concrete R.
type Encoder interface {
	EncodeFrame(img Image) error
	PollResult() ([]byte, error)
	WaitResult() ([]byte, error)
	ForceKeyframe() error
	Close() error
}

// DeviceFactory opens an Encoder for the given config, or returns an error
// (e.g. ErrUnsupportedEncodeProfile, or a device-not-present error for a
// hardware probe).
type DeviceFactory func(cfg EncoderConfig) (Encoder, error)

var (
	registryMu        sync.Mutex
	hardwareFactories []DeviceFactory
	softwareFactories []DeviceFactory
)

// RegisterHardwareDevice registers a hardware-backed device factory (VA-API,
// Vulkan Video, a vendor SDK). Backends self-register via init(), the same
// registerHardwareFactory pattern the teacher's desktop package uses for
// encoder_nvenc.go/encoder_videotoolbox.go.
func RegisterHardwareDevice(f DeviceFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	hardwareFactories = append(hardwareFactories, f)
}

// RegisterSoftwareDevice registers a CPU-only fallback device factory (e.g.
// the go-openh264 backend, or a simulated backend used by tests).
func RegisterSoftwareDevice(f DeviceFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	softwareFactories = append(softwareFactories, f)
}

// OpenBestDevice tries hardware factories first when cfg.PreferHardware is
// set, then falls back to software factories in registration order. It
// mirrors the teacher's newBackend/tryHardware pair.
func OpenBestDevice(cfg EncoderConfig) (Encoder, error) {
	if cfg.PreferHardware {
		if enc := tryDevices(snapshotFactories(&hardwareFactories), cfg); enc != nil {
			return enc, nil
		}
	}
	if enc := tryDevices(snapshotFactories(&softwareFactories), cfg); enc != nil {
		return enc, nil
	}
	return nil, fmt.Errorf("h264enc: no registered backend device could open profile %s", cfg.Profile)
}

func snapshotFactories(factories *[]DeviceFactory) []DeviceFactory {
	registryMu.Lock()
	defer registryMu.Unlock()
	return append([]DeviceFactory(nil), (*factories)...)
}

func tryDevices(factories []DeviceFactory, cfg EncoderConfig) Encoder {
	for _, factory := range factories {
		enc, err := factory(cfg)
		if err == nil && enc != nil {
			return enc
		}
	}
	return nil
}
