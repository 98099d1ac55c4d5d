package encoder

// ParallelEncodings is the default encode-slot pool capacity, matching the
// Rust backend's PARALLEL_ENCODINGS constant in media-video/h264/src/
// encoder/backends/vulkan/mod.rs.
const ParallelEncodings = 16

// EncodeSlot pairs a backend-owned resource bundle (R) with the bookkeeping
// the pool needs to track in-flight state: whether it currently holds an
// IDR's output (which must be preceded by SPS+PPS on readout).
type EncodeSlot[R any] struct {
	Resource R
	IsIDR    bool
}

// Fence abstracts the backend's completion signal for one encode slot. A
// real backend satisfies this with a GPU fence/semaphore wait; the
// simulated/software backends satisfy it with a channel or an always-ready
// check.
type Fence interface {
	// Wait blocks until the slot's work is complete or failed.
	Wait() error
	// Poll reports whether the slot's work has completed without blocking.
	Poll() (done bool, err error)
}

// SlotPool owns a fixed-size ring of encode slots and the in-flight FIFO
// that serializes readout into submission order (spec. §4.E). R is the
// backend's opaque per-slot GPU resource type, the same parameter DpbSlot
// and H264EncoderBackend use.
//
// Grounded on the `available_src_surfaces` / `in_flight: VecDeque<...>`
// split in media/h264/src/encoder/libva/mod.rs.
type SlotPool[R any] struct {
	all       []*EncodeSlot[R]
	available []*EncodeSlot[R]
	inFlight  []inFlightSlot[R]

	readBacklog [][]byte // blobs already read out, pending delivery in FIFO order
}

type inFlightSlot[R any] struct {
	slot  *EncodeSlot[R]
	fence Fence
}

// NewSlotPool allocates a pool of size slots, each wrapping one zero-valued
// R (the caller/backend fills in R's GPU resources out-of-band before first
// use, mirroring the Rust backend's fixed-size slot array built once at
// create_encoder time).
func NewSlotPool[R any](size int) *SlotPool[R] {
	if size < 1 {
		invariantViolation("slotpool: size must be >= 1, got %d", size)
	}
	p := &SlotPool[R]{}
	for i := 0; i < size; i++ {
		s := &EncodeSlot[R]{}
		p.all = append(p.all, s)
		p.available = append(p.available, s)
	}
	return p
}

// TryAcquire returns an unused slot without blocking, or nil if the pool is
// exhausted. It never drains in-flight work; Acquire does that.
func (p *SlotPool[R]) TryAcquire() *EncodeSlot[R] {
	if len(p.available) == 0 {
		return nil
	}
	s := p.available[len(p.available)-1]
	p.available = p.available[:len(p.available)-1]
	return s
}

// Acquire returns an unused slot, waiting on the oldest in-flight
// completion fence and reading its output into the backlog if the pool is
// exhausted (spec. §4.E).
func (p *SlotPool[R]) Acquire(readOut func(s *EncodeSlot[R]) ([][]byte, error)) (*EncodeSlot[R], error) {
	if s := p.TryAcquire(); s != nil {
		return s, nil
	}
	if len(p.inFlight) == 0 {
		invariantViolation("slotpool: exhausted with no in-flight work to drain")
	}
	front := p.inFlight[0]
	if err := front.fence.Wait(); err != nil {
		return nil, &RuntimeError{Op: "wait_encode_slot", Err: err}
	}
	p.inFlight = p.inFlight[1:]

	blobs, err := readOut(front.slot)
	if err != nil {
		return nil, &RuntimeError{Op: "read_out_encode_slot", Err: err}
	}
	p.readBacklog = append(p.readBacklog, blobs...)
	return front.slot, nil
}

// Submit pushes slot onto the in-flight FIFO behind fence.
func (p *SlotPool[R]) Submit(slot *EncodeSlot[R], fence Fence) {
	p.inFlight = append(p.inFlight, inFlightSlot[R]{slot: slot, fence: fence})
}

// PollResult returns the next deliverable blob without blocking, or nil if
// none is ready yet. Output is delivered in submission order: the backlog
// (already-read blobs from a prior Acquire-under-pressure) drains first,
// then the front of the in-flight FIFO is polled.
func (p *SlotPool[R]) PollResult(readOut func(s *EncodeSlot[R]) ([][]byte, error)) ([]byte, error) {
	if blob, ok := p.popBacklog(); ok {
		return blob, nil
	}
	if len(p.inFlight) == 0 {
		return nil, nil
	}
	front := p.inFlight[0]
	done, err := front.fence.Poll()
	if err != nil {
		return nil, &RuntimeError{Op: "poll_encode_slot", Err: err}
	}
	if !done {
		return nil, nil
	}
	p.inFlight = p.inFlight[1:]

	blobs, err := readOut(front.slot)
	if err != nil {
		return nil, &RuntimeError{Op: "read_out_encode_slot", Err: err}
	}
	p.available = append(p.available, front.slot)
	if len(blobs) == 0 {
		return nil, nil
	}
	p.readBacklog = append(p.readBacklog, blobs[1:]...)
	return blobs[0], nil
}

// WaitResult returns the next deliverable blob, blocking on the front
// in-flight fence if none is immediately available.
func (p *SlotPool[R]) WaitResult(readOut func(s *EncodeSlot[R]) ([][]byte, error)) ([]byte, error) {
	if blob, ok := p.popBacklog(); ok {
		return blob, nil
	}
	if len(p.inFlight) == 0 {
		return nil, nil
	}
	front := p.inFlight[0]
	if err := front.fence.Wait(); err != nil {
		return nil, &RuntimeError{Op: "wait_encode_slot", Err: err}
	}
	p.inFlight = p.inFlight[1:]

	blobs, err := readOut(front.slot)
	if err != nil {
		return nil, &RuntimeError{Op: "read_out_encode_slot", Err: err}
	}
	p.available = append(p.available, front.slot)
	if len(blobs) == 0 {
		return nil, nil
	}
	p.readBacklog = append(p.readBacklog, blobs[1:]...)
	return blobs[0], nil
}

func (p *SlotPool[R]) popBacklog() ([]byte, bool) {
	if len(p.readBacklog) == 0 {
		return nil, false
	}
	blob := p.readBacklog[0]
	p.readBacklog = p.readBacklog[1:]
	return blob, true
}
