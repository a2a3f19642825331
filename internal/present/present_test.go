package present

import (
	"errors"
	"testing"
)

type fakeHandle struct {
	index     int
	destroyed int
}

func (h *fakeHandle) Destroy() error {
	h.destroyed++
	return nil
}

type fakeAllocator struct {
	handles []*fakeHandle
	fail    error
}

func (a *fakeAllocator) AllocateBuffer(index, width, height, stride int) (Handle, []byte, error) {
	if a.fail != nil {
		return nil, nil, a.fail
	}
	h := &fakeHandle{index: index}
	a.handles = append(a.handles, h)
	return h, make([]byte, stride*height), nil
}

func TestNextFreeAllocatesLazily(t *testing.T) {
	a := &fakeAllocator{}
	p := NewPool(a, 4, 2)
	if len(a.handles) != 0 {
		t.Fatalf("expected no allocation before first use, got %d", len(a.handles))
	}

	b, err := p.NextFree()
	if err != nil {
		t.Fatalf("NextFree: %v", err)
	}
	if b.Index != 0 {
		t.Fatalf("expected buffer 0, got %d", b.Index)
	}
	if b.Stride != 16 || len(b.Pixels) != 32 {
		t.Fatalf("stride %d pixels %d, want 16 and 32", b.Stride, len(b.Pixels))
	}
	for i, v := range b.Pixels {
		if v != 0xff {
			t.Fatalf("pixel byte %d = %#x, want 0xff fill", i, v)
		}
	}
	if len(a.handles) != 1 {
		t.Fatalf("expected exactly one allocation, got %d", len(a.handles))
	}

	// Not marked busy: the same buffer comes back without reallocating.
	again, err := p.NextFree()
	if err != nil || again != b {
		t.Fatalf("expected same free buffer, got %v %v", again, err)
	}
	if len(a.handles) != 1 {
		t.Fatalf("buffer reallocated: %d allocations", len(a.handles))
	}
}

func TestNextFreeNeverReturnsBusyBuffer(t *testing.T) {
	p := NewPool(&fakeAllocator{}, 2, 2)

	first, _ := p.NextFree()
	p.MarkBusy(first.Index)
	second, err := p.NextFree()
	if err != nil {
		t.Fatalf("NextFree: %v", err)
	}
	if second.Index == first.Index {
		t.Fatal("busy buffer handed out again")
	}
	p.MarkBusy(second.Index)

	if _, err := p.NextFree(); !errors.Is(err, ErrNoneAvailable) {
		t.Fatalf("expected ErrNoneAvailable with both busy, got %v", err)
	}

	p.OnReleased(first.Index)
	if p.Busy(first.Index) {
		t.Fatal("released buffer still busy")
	}
	b, err := p.NextFree()
	if err != nil || b.Index != first.Index {
		t.Fatalf("expected released buffer %d, got %v %v", first.Index, b, err)
	}
}

func TestOnReleasedIgnoresUnknownIndex(t *testing.T) {
	p := NewPool(&fakeAllocator{}, 2, 2)
	p.OnReleased(7)
	p.OnReleased(-1)
	if p.Busy(7) || p.Busy(-1) {
		t.Fatal("out of range index reported busy")
	}
}

func TestAllocationFailure(t *testing.T) {
	want := errors.New("memfd exhausted")
	p := NewPool(&fakeAllocator{fail: want}, 2, 2)
	if _, err := p.NextFree(); !errors.Is(err, want) {
		t.Fatalf("expected allocation error, got %v", err)
	}
}

func TestCloseDestroysAllocatedBuffers(t *testing.T) {
	a := &fakeAllocator{}
	p := NewPool(a, 2, 2)
	b, _ := p.NextFree()
	p.MarkBusy(b.Index)
	if _, err := p.NextFree(); err != nil {
		t.Fatalf("NextFree: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	for _, h := range a.handles {
		if h.destroyed != 1 {
			t.Fatalf("handle %d destroyed %d times, want 1", h.index, h.destroyed)
		}
	}
	if _, err := p.NextFree(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after Close, got %v", err)
	}
}
