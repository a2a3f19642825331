package pipeline

import (
	"testing"
	"time"
)

func TestFrameListRecyclesFrames(t *testing.T) {
	l := newFrameList(4, 2)
	f := l.Get()
	if len(f.Pix) != 32 || f.Width != 4 || f.Height != 2 {
		t.Fatalf("new frame %dx%d with %d bytes, want 4x2 with 32", f.Width, f.Height, len(f.Pix))
	}
	f.Seq = 9
	f.Captured = time.Now()
	l.Put(f)

	again := l.Get()
	if again != f {
		t.Fatal("returned frame was not reused")
	}
	if again.Seq != 0 || !again.Captured.IsZero() {
		t.Fatalf("reused frame keeps seq %d captured %v", again.Seq, again.Captured)
	}
}

func TestFrameListRejectsForeignSize(t *testing.T) {
	l := newFrameList(4, 2)
	l.Put(&Frame{Pix: make([]byte, 64), Width: 8, Height: 2})
	l.Put(nil)
	if len(l.free) != 0 {
		t.Fatalf("free list holds %d frames, want 0", len(l.free))
	}
}

func TestFrameListIsBounded(t *testing.T) {
	l := newFrameList(1, 1)
	for i := 0; i < maxFreeFrames+2; i++ {
		l.Put(&Frame{Pix: make([]byte, 4), Width: 1, Height: 1})
	}
	if len(l.free) != maxFreeFrames {
		t.Fatalf("free list holds %d frames, want %d", len(l.free), maxFreeFrames)
	}
}
