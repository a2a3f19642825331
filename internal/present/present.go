// Package present manages the two compositor-visible pixel buffers a
// window cycles through, and declares the contracts between the frame
// pipeline and the display connection.
package present

import (
	"errors"
	"fmt"
	"sync"

	"github.com/faith0x7dc/wl-camera-shm/internal/logging"
)

var log = logging.L("present")

// FormatXRGB8888 is the only pixel layout buffers are created with:
// 32-bit little-endian B, G, R, X.
const FormatXRGB8888 = "XRGB8888"

// BytesPerPixel of FormatXRGB8888.
const BytesPerPixel = 4

// BufferCount is fixed at two: one on screen, one being filled.
const BufferCount = 2

var (
	// ErrNoneAvailable is returned when the compositor holds both buffers.
	ErrNoneAvailable = errors.New("present: no free buffer")
	ErrClosed        = errors.New("present: pool closed")
)

// Handle is the compositor-side object behind a buffer.
type Handle interface {
	// Destroy releases the compositor object and the shared memory.
	Destroy() error
}

// Allocator creates shared-memory buffers the compositor can read.
type Allocator interface {
	AllocateBuffer(index, width, height, stride int) (Handle, []byte, error)
}

// Surface shows buffers on screen.
type Surface interface {
	// Present attaches h, damages the whole surface, requests a frame
	// callback and commits.
	Present(h Handle) error
}

// EventHandler receives the compositor events the pipeline cares about.
// It is passed into each dispatch call rather than stored by the display.
type EventHandler interface {
	BufferReleased(index int)
	Redraw() error
}

// Buffer is one presentation buffer. Pixels is nil until the buffer is
// first selected.
type Buffer struct {
	Index  int
	Width  int
	Height int
	Stride int
	Pixels []byte

	handle Handle
	busy   bool
}

func (b *Buffer) Handle() Handle { return b.handle }

func (b *Buffer) Busy() bool { return b.busy }

// Pool hands out whichever buffer the compositor is not currently reading.
type Pool struct {
	mu      sync.Mutex
	alloc   Allocator
	buffers [BufferCount]Buffer
	closed  bool
}

// NewPool prepares two buffers of width x height; memory is allocated
// lazily on first use.
func NewPool(alloc Allocator, width, height int) *Pool {
	p := &Pool{alloc: alloc}
	for i := range p.buffers {
		p.buffers[i] = Buffer{
			Index:  i,
			Width:  width,
			Height: height,
			Stride: width * BytesPerPixel,
		}
	}
	return p
}

// NextFree returns the lowest-index buffer not held by the compositor,
// allocating and white-filling it on first use. It never blocks.
func (p *Pool) NextFree() (*Buffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	for i := range p.buffers {
		b := &p.buffers[i]
		if b.busy {
			continue
		}
		if b.handle == nil {
			h, pixels, err := p.alloc.AllocateBuffer(b.Index, b.Width, b.Height, b.Stride)
			if err != nil {
				return nil, fmt.Errorf("present: allocate buffer %d: %w", b.Index, err)
			}
			for j := range pixels {
				pixels[j] = 0xff
			}
			b.handle, b.Pixels = h, pixels
			log.Debug("buffer allocated", logging.KeyBuffer, b.Index, "bytes", len(pixels))
		}
		return b, nil
	}
	return nil, ErrNoneAvailable
}

// MarkBusy records that buffer i was attached and committed.
func (p *Pool) MarkBusy(i int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i >= 0 && i < BufferCount {
		p.buffers[i].busy = true
	}
}

// OnReleased records that the compositor finished reading buffer i.
func (p *Pool) OnReleased(i int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= BufferCount {
		log.Warn("release for unknown buffer", logging.KeyBuffer, i)
		return
	}
	p.buffers[i].busy = false
}

// Busy reports whether buffer i is held by the compositor. Unknown
// indices are never busy.
func (p *Pool) Busy(i int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= BufferCount {
		return false
	}
	return p.buffers[i].busy
}

// Close destroys every allocated buffer. It is safe to call more than once.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for i := range p.buffers {
		b := &p.buffers[i]
		if b.handle == nil {
			continue
		}
		if err := b.handle.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("present: destroy buffer %d: %w", i, err))
		}
		b.handle, b.Pixels, b.busy = nil, nil, false
	}
	return errors.Join(errs...)
}
