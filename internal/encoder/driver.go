package encoder

import "fmt"

// pendingB is a B-frame the driver has queued for later submission, waiting
// on its anchor (spec. §4.F step 4): "If frame_type == B, enqueue (slot,
// info) into the pending-B queue and return."
type pendingB[R any] struct {
	slot *EncodeSlot[R]
	info FrameEncodeInfo
}

// Driver is the stateless, backend-agnostic orchestrator (spec. §4.F,
// Component F). It owns the frame-pattern planner, the DPB, the encode-slot
// pool, and a single backend instance; every public method is synchronous
// from the caller's perspective even though the backend dispatches to
// parallel GPU queues internally (spec. §5).
type Driver[R any] struct {
	cfg     EncoderConfig
	backend H264EncoderBackend[R]

	planner *Planner
	dpb     *Dpb[R]
	slots   *SlotPool[R]

	pendingBs []pendingB[R]

	// forceKeyframe is set by ForceKeyframe when a B-frame is currently
	// pending an anchor; it is applied at the next safe point (once the
	// pending queue drains) instead of immediately, to avoid the Idr/
	// non-empty-pending-queue invariant violation below.
	forceKeyframe bool

	poisoned error
}

// New constructs a Driver against device. device's CreateEncoder is called
// with cfg to obtain the backend instance; the slot pool honors the spec. §9
// rule that slots must be at least ip_period + 1 so a full run of queued
// B-frames can never deadlock at acquire(), and the DPB is sized from the
// backend's reported reference caps.
func New[R any](device H264EncoderDevice[R], cfg EncoderConfig) (*Driver[R], error) {
	if _, err := NewFramePattern(cfg.Pattern.IntraIDRPeriod, cfg.Pattern.IntraPeriod, cfg.Pattern.IPPeriod); err != nil {
		return nil, err
	}

	switch cfg.RateControl {
	case RateControlDisabled, RateControlCBR, RateControlVBR, RateControlConstantQuality:
	default:
		return nil, ErrUnsupportedRateControl
	}

	profileSupported := false
	for _, p := range device.Profiles() {
		if p == cfg.Profile {
			profileSupported = true
			break
		}
	}
	if !profileSupported {
		return nil, ErrUnsupportedEncodeProfile
	}

	caps, err := device.Capabilities(cfg.Profile)
	if err != nil {
		return nil, &ResourceAllocationError{Stage: "capabilities", Err: err}
	}

	backend, err := device.CreateEncoder(cfg)
	if err != nil {
		return nil, &ResourceAllocationError{Stage: "create_encoder", Err: err}
	}

	slotCount := ParallelEncodings
	minSlots := int(cfg.Pattern.IPPeriod) + 1
	if slotCount < minSlots {
		slotCount = minSlots
	}

	maxActiveRefs := caps.MaxL0PReferences
	if v := caps.MaxL0BReferences + caps.MaxL1BReferences; v > maxActiveRefs {
		maxActiveRefs = v
	}
	dpbSize := int(maxActiveRefs) + 1
	if dpbSize < 2 {
		dpbSize = 2
	}

	d := &Driver[R]{
		cfg:     cfg,
		backend: backend,
		planner: NewPlanner(cfg.Pattern),
		dpb:     NewDpb[R](dpbSize, caps.MaxL0PReferences, caps.MaxL0BReferences, caps.MaxL1BReferences),
		slots:   NewSlotPool[R](slotCount),
	}
	return d, nil
}

// EncodeFrame implements spec. §4.F's encode_frame algorithm.
func (d *Driver[R]) EncodeFrame(img Image) error {
	if d.poisoned != nil {
		return d.poisoned
	}

	info := d.planner.Next()

	slot, err := d.slots.Acquire(d.readOut)
	if err != nil {
		return d.poison(err)
	}

	if err := d.backend.UploadImageToSlot(slot, img); err != nil {
		return d.poison(&RuntimeError{Op: "upload_image_to_slot", Err: err})
	}

	if info.FrameType == FrameB {
		d.pendingBs = append(d.pendingBs, pendingB[R]{slot: slot, info: info})
		return nil
	}

	if info.FrameType == FrameIDR {
		if len(d.pendingBs) != 0 {
			invariantViolation("driver: pending B-frame queue non-empty at IDR")
		}
		d.dpb.Reset()
	}

	if err := d.submitReference(slot, info); err != nil {
		return err
	}

	// Drain any B-frames that were waiting on this anchor, in FIFO order.
	pending := d.pendingBs
	d.pendingBs = nil
	for _, b := range pending {
		if err := d.submitB(b.slot, b.info); err != nil {
			return err
		}
	}

	if d.forceKeyframe && len(d.pendingBs) == 0 {
		d.planner.ForceKeyframe()
		d.forceKeyframe = false
	}
	return nil
}

// ForceKeyframe requests that the next submitted picture start a fresh GOP
// (an external keyframe request, e.g. a WebRTC PLI/FIR per internal/
// transport). It takes effect immediately if no B-frame is currently
// waiting on an anchor; otherwise it is deferred until the pending queue
// next empties, so the IDR/non-empty-pending-queue invariant in
// EncodeFrame never fires.
func (d *Driver[R]) ForceKeyframe() error {
	if d.poisoned != nil {
		return d.poisoned
	}
	if len(d.pendingBs) == 0 {
		d.planner.ForceKeyframe()
		return nil
	}
	d.forceKeyframe = true
	return nil
}

// submitReference picks references and invokes the backend for a reference
// picture (IDR/I/P), then activates its setup slot in the DPB.
func (d *Driver[R]) submitReference(slot *EncodeSlot[R], info FrameEncodeInfo) error {
	setupRef := d.dpb.AcquireSetupReference()
	l0 := d.dpb.BuildL0(d.cfg.MaxL0References, false)

	fence, err := d.backend.EncodeSlot(info, slot, setupRef, l0, nil)
	if err != nil {
		return d.poison(&RuntimeError{Op: "encode_slot", Err: err})
	}
	slot.IsIDR = info.FrameType == FrameIDR
	d.dpb.Activate(setupRef, info.FrameNum, info.PictureOrderCount)
	d.slots.Submit(slot, fence)
	return nil
}

// submitB invokes the backend for a deferred, non-reference B-frame. Its
// setup slot is ephemeral: released back to the DPB pool immediately since
// B-frames are never referenced by this driver.
func (d *Driver[R]) submitB(slot *EncodeSlot[R], info FrameEncodeInfo) error {
	setupRef := d.dpb.AcquireSetupReference()
	l0 := d.dpb.BuildL0(d.cfg.MaxL0References, true)
	l1 := d.dpb.BuildL1(true)
	if uint32(len(l1)) > d.cfg.MaxL1References {
		l1 = l1[:d.cfg.MaxL1References]
	}

	fence, err := d.backend.EncodeSlot(info, slot, setupRef, l0, l1)
	if err != nil {
		return d.poison(&RuntimeError{Op: "encode_slot", Err: err})
	}
	d.dpb.ReleaseEphemeral(setupRef)
	d.slots.Submit(slot, fence)
	return nil
}

// PollResult returns the next deliverable bitstream blob without blocking,
// or nil if none is ready.
func (d *Driver[R]) PollResult() ([]byte, error) {
	if d.poisoned != nil {
		return nil, d.poisoned
	}
	blob, err := d.slots.PollResult(d.readOut)
	if err != nil {
		return nil, d.poison(err)
	}
	return blob, nil
}

// WaitResult returns the next deliverable bitstream blob, blocking until one
// is available.
func (d *Driver[R]) WaitResult() ([]byte, error) {
	if d.poisoned != nil {
		return nil, d.poisoned
	}
	blob, err := d.slots.WaitResult(d.readOut)
	if err != nil {
		return nil, d.poison(err)
	}
	return blob, nil
}

// Close releases the backend. The caller must have drained all in-flight
// work (via WaitResult) before calling Close, per spec. §5's Drop
// requirement; Close itself does not wait.
func (d *Driver[R]) Close() error {
	if closer, ok := d.backend.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// readOut is SlotPool's hook back into the backend; SlotPool itself owns
// what happens to slot afterwards (returned for reuse, or pushed back onto
// the available pool), so this must not touch slot's lifecycle.
func (d *Driver[R]) readOut(slot *EncodeSlot[R]) ([][]byte, error) {
	var out [][]byte
	if err := d.backend.ReadOutEncodeSlot(slot, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// poison records a sticky error (DESIGN.md Open Question 2): once set,
// EncodeFrame, ForceKeyframe, PollResult and WaitResult return it immediately
// without touching the backend again, since a failed fence may have left
// in-flight state undefined. Close still closes the backend.
func (d *Driver[R]) poison(err error) error {
	if d.poisoned == nil {
		d.poisoned = fmt.Errorf("%w: %v", ErrPoisoned, err)
	}
	return d.poisoned
}
