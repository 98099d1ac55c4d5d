// Package encoder implements the backend-agnostic H.264 encoder driver: the
// frame-pattern planner, DPB manager, encode-slot pool, and the stateless
// orchestrator that ties them to a caller-supplied accelerator backend.
package encoder

import "fmt"

// FrameType is the H.264 picture type assigned to an encoded frame.
type FrameType uint8

const (
	FrameIDR FrameType = iota
	FrameI
	FrameP
	FrameB
)

func (t FrameType) String() string {
	switch t {
	case FrameIDR:
		return "IDR"
	case FrameI:
		return "I"
	case FrameP:
		return "P"
	case FrameB:
		return "B"
	default:
		return "unknown"
	}
}

// IsReference reports whether a picture of this type is ever used as a DPB
// reference. B-frames are never referenced by this driver (spec.md §4.D).
func (t FrameType) IsReference() bool {
	return t == FrameIDR || t == FrameI || t == FrameP
}

// FramePattern is the fixed GOP structure the planner replays forever.
// Immutable once constructed by NewFramePattern.
type FramePattern struct {
	IntraIDRPeriod uint32
	IntraPeriod    uint32
	IPPeriod       uint32
}

// NewFramePattern validates and returns a FramePattern. Invariants:
// IntraIDRPeriod % IntraPeriod == 0, IntraPeriod % IPPeriod == 0, IPPeriod >= 1.
func NewFramePattern(idrPeriod, intraPeriod, ipPeriod uint32) (FramePattern, error) {
	if ipPeriod < 1 {
		return FramePattern{}, fmt.Errorf("h264enc: ip_period must be >= 1, got %d", ipPeriod)
	}
	if intraPeriod%ipPeriod != 0 {
		return FramePattern{}, fmt.Errorf("h264enc: intra_period (%d) must be a multiple of ip_period (%d)", intraPeriod, ipPeriod)
	}
	if idrPeriod%intraPeriod != 0 {
		return FramePattern{}, fmt.Errorf("h264enc: intra_idr_period (%d) must be a multiple of intra_period (%d)", idrPeriod, intraPeriod)
	}
	return FramePattern{IntraIDRPeriod: idrPeriod, IntraPeriod: intraPeriod, IPPeriod: ipPeriod}, nil
}

// FrameEncodeInfo is the per-picture metadata produced by Planner.Next, the
// same shape spec.md §3 calls FrameEncodeInfo.
type FrameEncodeInfo struct {
	FrameType         FrameType
	FrameNum          uint16
	PictureOrderCount int32
	IDRPicID          uint16
}

// Planner assigns encoding order, display order, frame type, frame_num,
// idr_pic_id and picture_order_cnt_lsb to each submitted picture (spec.md
// §4.A). It is a pure function of submission_counter and FramePattern: the
// per-position frame type and frame_num are precomputed once over a single
// IDR period (the sequence is periodic in submission_counter mod
// IntraIDRPeriod), so Next() only indexes two tables and increments a
// counter.
type Planner struct {
	pattern FramePattern

	// periodTypes[i] / periodFrameNum[i] are the frame type and frame_num for
	// submission position i within a GOP, 0 <= i < pattern.IntraIDRPeriod.
	periodTypes    []FrameType
	periodFrameNum []uint16

	submissionCounter uint64
}

// NewPlanner returns a Planner for pattern, starting at submission_counter 0.
func NewPlanner(pattern FramePattern) *Planner {
	types := computePeriodTypes(pattern)
	frameNums := computePeriodFrameNums(types, pattern.IPPeriod)
	return &Planner{
		pattern:        pattern,
		periodTypes:    types,
		periodFrameNum: frameNums,
	}
}

// computePeriodTypes assigns a FrameType to every position in one IDR period.
//
// The naive forward rule (spec.md §4.A steps 1-4) gets the "trailing B becomes
// P" case wrong when more than one trailing position lacks a naturally
// aligned anchor: a position can only become an anchor for earlier B's once
// we know whether IT has an anchor after it, all the way to the end of the
// period. So this scans the period in REVERSE, letting a position that falls
// back to P (because nothing follows it) retroactively serve as the anchor
// for the positions before it. See DESIGN.md Open Question 1.
func computePeriodTypes(p FramePattern) []FrameType {
	n := int(p.IntraIDRPeriod)
	types := make([]FrameType, n)
	foundAnchor := false
	for m := n - 1; m >= 0; m-- {
		switch {
		case uint32(m)%p.IntraIDRPeriod == 0:
			types[m] = FrameIDR
			foundAnchor = true
		case uint32(m)%p.IntraPeriod == 0:
			types[m] = FrameI
			foundAnchor = true
		case uint32(m)%p.IPPeriod == 0:
			types[m] = FrameP
			foundAnchor = true
		case foundAnchor:
			types[m] = FrameB
		default:
			// No reference anywhere after m in this GOP: this position
			// becomes the trailing anchor instead of a B-frame.
			types[m] = FrameP
			foundAnchor = true
		}
	}
	return types
}

// computePeriodFrameNums assigns frame_num to every position in one IDR
// period given its frame types. Reference pictures (IDR/I/P) get a strictly
// increasing count reset to 0 at the IDR; B-frames take the frame_num of the
// nearest reference at or after their position — the anchor they are encoded
// immediately after once dequeued (spec.md §4.A, §8 scenario 3).
func computePeriodFrameNums(types []FrameType, ipPeriod uint32) []uint16 {
	n := len(types)
	frameNums := make([]uint16, n)

	var counter uint16
	for m := 0; m < n; m++ {
		switch types[m] {
		case FrameIDR:
			counter = 0
			frameNums[m] = 0
		case FrameI, FrameP:
			if m != 0 {
				counter++
			}
			frameNums[m] = counter
		}
	}

	// Backward-fill B positions with the nearest following reference's
	// frame_num. types[n-1] is never FrameB by construction of
	// computePeriodTypes, so nextRef is always initialized by the time a B
	// is encountered.
	var nextRef uint16
	for m := n - 1; m >= 0; m-- {
		if types[m] != FrameB {
			nextRef = frameNums[m]
		} else {
			frameNums[m] = nextRef
		}
	}
	return frameNums
}

// Next produces the FrameEncodeInfo for the next submitted picture and
// advances the submission counter.
func (p *Planner) Next() FrameEncodeInfo {
	n := p.submissionCounter
	idrPeriod := uint64(p.pattern.IntraIDRPeriod)
	pos := n % idrPeriod

	info := FrameEncodeInfo{
		FrameType:         p.periodTypes[pos],
		FrameNum:          p.periodFrameNum[pos],
		PictureOrderCount: int32(pos) * 2,
		IDRPicID:          uint16(n / idrPeriod),
	}
	p.submissionCounter++
	return info
}

// SubmissionCounter returns the number of frames handed out so far.
func (p *Planner) SubmissionCounter() uint64 {
	return p.submissionCounter
}

// ForceKeyframe advances the submission counter to the start of the next
// GOP, if it isn't there already, so the next call to Next returns an Idr
// frame ahead of schedule. The caller (Driver.ForceKeyframe) is responsible
// for only calling this when no B-frame is waiting on an anchor, since an
// early Idr with a non-empty pending queue would violate spec. §4.F step 5.
func (p *Planner) ForceKeyframe() {
	idrPeriod := uint64(p.pattern.IntraIDRPeriod)
	if rem := p.submissionCounter % idrPeriod; rem != 0 {
		p.submissionCounter += idrPeriod - rem
	}
}
