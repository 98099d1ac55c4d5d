package encoder

import "testing"

// fakeFence is a manually-triggered Fence for pool tests.
type fakeFence struct {
	done bool
	err  error
}

func (f *fakeFence) Wait() error {
	f.done = true
	return f.err
}

func (f *fakeFence) Poll() (bool, error) {
	return f.done, f.err
}

func noBlobs(s *EncodeSlot[int]) ([][]byte, error) { return nil, nil }

func TestSlotPoolTryAcquireExhaustion(t *testing.T) {
	p := NewSlotPool[int](2)
	s1 := p.TryAcquire()
	s2 := p.TryAcquire()
	if s1 == nil || s2 == nil {
		t.Fatalf("expected two distinct slots, got %v %v", s1, s2)
	}
	if p.TryAcquire() != nil {
		t.Fatalf("expected nil from TryAcquire on exhausted pool")
	}
}

func TestSlotPoolAcquireDrainsOldestInFlight(t *testing.T) {
	p := NewSlotPool[int](1)
	s := p.TryAcquire()
	f := &fakeFence{}
	p.Submit(s, f)

	readCalls := 0
	acquired, err := p.Acquire(func(got *EncodeSlot[int]) ([][]byte, error) {
		readCalls++
		if got != s {
			t.Fatalf("readOut called with wrong slot")
		}
		return [][]byte{{1, 2, 3}}, nil
	})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if acquired != s {
		t.Fatalf("expected the drained slot to be returned")
	}
	if readCalls != 1 {
		t.Fatalf("readOut calls = %d, want 1", readCalls)
	}
	if !f.done {
		t.Fatalf("expected fence.Wait to have been called")
	}
}

func TestSlotPoolOutputOrderingIsSubmissionOrder(t *testing.T) {
	p := NewSlotPool[int](3)
	var slots []*EncodeSlot[int]
	var fences []*fakeFence
	for i := 0; i < 3; i++ {
		s := p.TryAcquire()
		f := &fakeFence{}
		slots = append(slots, s)
		fences = append(fences, f)
		p.Submit(s, f)
	}

	// Signal completion out of submission order: 1, 2, 0.
	fences[1].done = true
	fences[2].done = true
	fences[0].done = true

	readOut := func(s *EncodeSlot[int]) ([][]byte, error) {
		for i, candidate := range slots {
			if candidate == s {
				return [][]byte{{byte(i)}}, nil
			}
		}
		t.Fatalf("readOut called with unknown slot")
		return nil, nil
	}

	var order []byte
	for i := 0; i < 3; i++ {
		blob, err := p.PollResult(readOut)
		if err != nil {
			t.Fatalf("PollResult: %v", err)
		}
		if blob == nil {
			t.Fatalf("PollResult returned nil at step %d", i)
		}
		order = append(order, blob[0])
	}

	want := []byte{0, 1, 2}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("delivery order = %v, want %v (submission order)", order, want)
		}
	}
}

func TestSlotPoolIDRPreambleFirstInReadOut(t *testing.T) {
	p := NewSlotPool[int](1)
	s := p.TryAcquire()
	s.IsIDR = true
	f := &fakeFence{done: true}
	p.Submit(s, f)

	readOut := func(got *EncodeSlot[int]) ([][]byte, error) {
		if !got.IsIDR {
			t.Fatalf("expected IsIDR slot")
		}
		return [][]byte{{0xAA}, {0xBB}}, nil // SPS+PPS blob, then coded-picture blob
	}

	first, err := p.PollResult(readOut)
	if err != nil {
		t.Fatalf("PollResult: %v", err)
	}
	if first[0] != 0xAA {
		t.Fatalf("first blob = %v, want SPS+PPS blob first", first)
	}
	second, err := p.PollResult(readOut)
	if err != nil {
		t.Fatalf("PollResult: %v", err)
	}
	if second[0] != 0xBB {
		t.Fatalf("second blob = %v, want coded-picture blob", second)
	}
}

func TestSlotPoolWaitResultBlocksOnFrontFence(t *testing.T) {
	p := NewSlotPool[int](1)
	s := p.TryAcquire()
	f := &fakeFence{}
	p.Submit(s, f)

	blob, err := p.WaitResult(func(got *EncodeSlot[int]) ([][]byte, error) {
		return [][]byte{{7}}, nil
	})
	if err != nil {
		t.Fatalf("WaitResult: %v", err)
	}
	if blob == nil || blob[0] != 7 {
		t.Fatalf("blob = %v, want [7]", blob)
	}
	if !f.done {
		t.Fatalf("expected fence.Wait to be called by WaitResult")
	}
}

func TestSlotPoolRuntimeErrorWrapsBackendFailure(t *testing.T) {
	p := NewSlotPool[int](1)
	s := p.TryAcquire()
	f := &fakeFence{err: errBackendFailure}
	p.Submit(s, f)

	_, err := p.WaitResult(noBlobs)
	if err == nil {
		t.Fatalf("expected an error")
	}
	var rtErr *RuntimeError
	if !asRuntimeError(err, &rtErr) {
		t.Fatalf("expected *RuntimeError, got %T: %v", err, err)
	}
}

func asRuntimeError(err error, target **RuntimeError) bool {
	if rt, ok := err.(*RuntimeError); ok {
		*target = rt
		return true
	}
	return false
}

var errBackendFailure = fencesFailure{}

type fencesFailure struct{}

func (fencesFailure) Error() string { return "simulated fence failure" }
