package pipeline

import "time"

// Frame is one converted XRGB8888 image. At any moment it belongs to
// exactly one of: the producer, the handoff slot, or the consumer.
type Frame struct {
	Pix      []byte
	Width    int
	Height   int
	Seq      uint64
	Captured time.Time
}

// maxFreeFrames covers the slot, a stalled frame and the one being filled.
const maxFreeFrames = 3

// frameList recycles frames of one resolution. It is owned by the
// pipeline goroutine.
type frameList struct {
	w, h int
	free []*Frame
}

func newFrameList(w, h int) frameList {
	return frameList{w: w, h: h, free: make([]*Frame, 0, maxFreeFrames)}
}

func (l *frameList) Get() *Frame {
	if n := len(l.free); n > 0 {
		f := l.free[n-1]
		l.free = l.free[:n-1]
		return f
	}
	return &Frame{Pix: make([]byte, l.w*l.h*4), Width: l.w, Height: l.h}
}

// Put returns f for reuse. Frames of another size, or beyond the list's
// capacity, are left to the garbage collector.
func (l *frameList) Put(f *Frame) {
	if f == nil || f.Width != l.w || f.Height != l.h || len(l.free) == maxFreeFrames {
		return
	}
	f.Seq = 0
	f.Captured = time.Time{}
	l.free = append(l.free, f)
}
