package encoder

// DpbSlot is one reference-picture slot owned by the driver and leased to
// the backend for the duration of a single encode_slot call. R is the
// backend's opaque per-slot resource type (a Vulkan ImageView + std
// reference-info struct, a VA-API VASurfaceID, or nothing at all for a
// software backend that keeps its own reference buffers).
type DpbSlot[R any] struct {
	Resource R

	frameNum uint16
	poc      int32
	active   bool // currently named in L0 ∪ L1 ∪ {setup-reference} for an in-flight picture
}

// FrameNum reports the frame_num this slot's picture was activated with, so
// a backend can build ref_pic_list_modification / slice-header syntax
// elements against it.
func (s *DpbSlot[R]) FrameNum() uint16 { return s.frameNum }

// PictureOrderCount reports the POC this slot's picture was activated with.
func (s *DpbSlot[R]) PictureOrderCount() int32 { return s.poc }

// Dpb owns the pool of reference-picture slots and implements the selection
// rules of spec. §4.D: an append-only, POC-ordered active list (pictures are
// always added to the DPB in submission order, even when B-frames are
// deferred — see driver.go) plus a pool of available slots, evicting the
// oldest active slot only when the pool is exhausted.
//
// Grounded on the `available_ref_images` / `active_ref_images: VecDeque<
// DpbSlot>` split in media/h264/src/encoder/vulkan/mod.rs: "back contains
// oldest... front contains most recent" becomes, in Go, an ordinary slice
// appended to at the tail and evicted from the head.
type Dpb[R any] struct {
	slots     []*DpbSlot[R]
	available []*DpbSlot[R]
	active    []*DpbSlot[R] // oldest first

	maxL0P, maxL0B, maxL1B uint32
}

// NewDpb allocates size DpbSlot values (each zero-valued; the backend fills
// Resource in once, out-of-band, before first use) and returns a Dpb
// enforcing the given per-list caps.
func NewDpb[R any](size int, maxL0P, maxL0B, maxL1B uint32) *Dpb[R] {
	d := &Dpb[R]{maxL0P: maxL0P, maxL0B: maxL0B, maxL1B: maxL1B}
	d.slots = make([]*DpbSlot[R], size)
	for i := range d.slots {
		d.slots[i] = &DpbSlot[R]{}
		d.available = append(d.available, d.slots[i])
	}
	return d
}

// Reset marks every slot inactive and available, used when an IDR starts a
// fresh reference set (spec. §4.D: "on IDR the entire DPB is marked inactive
// before the encode").
func (d *Dpb[R]) Reset() {
	d.active = d.active[:0]
	d.available = d.available[:0]
	for _, s := range d.slots {
		s.active = false
		d.available = append(d.available, s)
	}
}

// AcquireSetupReference returns the slot that will hold the picture
// currently being encoded once it completes. It prefers an inactive slot;
// failing that, it evicts the oldest active slot. It does not check whether
// an in-flight encode still references the evicted slot.
func (d *Dpb[R]) AcquireSetupReference() *DpbSlot[R] {
	if len(d.available) > 0 {
		s := d.available[len(d.available)-1]
		d.available = d.available[:len(d.available)-1]
		return s
	}
	if len(d.active) == 0 {
		invariantViolation("dpb: no available or active slot to evict")
	}
	s := d.active[0]
	d.active = d.active[1:]
	return s
}

// Activate commits a just-encoded reference picture's setup slot into the
// active list, appended at the tail (append-only, POC-ordered by
// construction since pictures are always submitted to the backend — and
// hence activated here — in increasing display order).
func (d *Dpb[R]) Activate(slot *DpbSlot[R], frameNum uint16, poc int32) {
	slot.frameNum = frameNum
	slot.poc = poc
	slot.active = true
	d.active = append(d.active, slot)
}

// ReleaseEphemeral returns a non-reference picture's setup slot directly to
// the available pool without ever appearing in the active list (spec. §4.D:
// "For B-frames that are non-reference, the setup slot is ephemeral and
// released immediately after the encode completes").
func (d *Dpb[R]) ReleaseEphemeral(slot *DpbSlot[R]) {
	slot.active = false
	d.available = append(d.available, slot)
}

// BuildL0 returns up to maxL0 past references in reverse decoding order, most
// recent first, capped at min(configured, backend-reported) per spec. §4.D. For a
// B-frame, the most recently activated slot is the anchor BuildL1 returns as
// the single future reference — it is excluded here so no slot ever appears
// in both L0 and L1.
func (d *Dpb[R]) BuildL0(maxConfigured uint32, isB bool) []*DpbSlot[R] {
	active := d.active
	limit := d.maxL0P
	if isB {
		limit = d.maxL0B
		if len(active) > 0 {
			active = active[:len(active)-1]
		}
	}
	if maxConfigured < limit {
		limit = maxConfigured
	}
	n := uint32(len(active))
	if n > limit {
		n = limit
	}
	start := uint32(len(active)) - n
	out := make([]*DpbSlot[R], 0, n)
	for i := len(active) - 1; i >= int(start); i-- {
		out = append(out, active[i])
	}
	return out
}

// BuildL1 returns the single nearest future reference already submitted to
// the DPB for a B-frame, or nil for a P-frame (spec. §4.D: "empty for P; for
// B-frames, the single nearest future reference already submitted"). The
// B-frame's anchor is always the most recently activated slot at the point
// the B is actually submitted to the backend (after deferral), since the
// driver activates references strictly in submission order.
func (d *Dpb[R]) BuildL1(isB bool) []*DpbSlot[R] {
	if !isB || len(d.active) == 0 || d.maxL1B == 0 {
		return nil
	}
	return []*DpbSlot[R]{d.active[len(d.active)-1]}
}
