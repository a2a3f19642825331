// Package pipeline runs the single-threaded loop that moves camera frames
// through conversion and a capacity-one handoff slot onto the screen.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/faith0x7dc/wl-camera-shm/internal/convert"
	"github.com/faith0x7dc/wl-camera-shm/internal/logging"
	"github.com/faith0x7dc/wl-camera-shm/internal/present"
)

var log = logging.L("pipeline")

// ErrPoolExhausted means a redraw found both presentation buffers held by
// the compositor, which a well-behaved compositor never causes.
var ErrPoolExhausted = errors.New("pipeline: no free presentation buffer at redraw")

// RuntimeError is a failure after initialization. The session cannot
// continue; the caller tears down and exits.
type RuntimeError struct {
	Op  string
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("pipeline: %s: %v", e.Op, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// FrameSource delivers raw YUYV frames. *capture.Pool implements it.
type FrameSource interface {
	ReadFrame(dst []byte) (int, error)
	Width() int
	Height() int
	FrameSize() int
	Stop() error
	Close() error
}

// EventPump delivers compositor events. Dispatch blocks until at least one
// event was handled or ctx is cancelled, and routes buffer releases and
// frame callbacks to h.
type EventPump interface {
	Dispatch(ctx context.Context, h present.EventHandler) error
	Close() error
}

type Options struct {
	Policy Policy
	// OnPresent is called after every frame put on screen.
	OnPresent func()
}

// Pipeline owns the capture source, the presentation pool and the display
// connection from construction until Close.
type Pipeline struct {
	src     FrameSource
	pool    *present.Pool
	surface present.Surface
	pump    EventPump
	opts    Options

	slot    Slot
	frames  frameList
	raw     []byte
	held    *Frame
	seq     uint64
	metrics *Metrics

	// pendingRedraw is set when a frame callback found the slot empty; the
	// next published frame is presented immediately instead of waiting for
	// a callback that was never armed.
	pendingRedraw bool
	started       bool
	closed        bool
}

// New wires the stages together. The pipeline takes ownership of src,
// pool and pump; Close releases them.
func New(src FrameSource, pool *present.Pool, surface present.Surface, pump EventPump, opts Options) *Pipeline {
	return &Pipeline{
		src:     src,
		pool:    pool,
		surface: surface,
		pump:    pump,
		opts:    opts,
		frames:  newFrameList(src.Width(), src.Height()),
		raw:     make([]byte, src.FrameSize()),
		metrics: newMetrics(),
	}
}

func (p *Pipeline) Metrics() *Metrics { return p.metrics }

// Run captures a first frame, presents it, then alternates one producer
// step with one compositor dispatch until ctx is cancelled or something
// fails. Cancellation returns nil; failures return a *RuntimeError.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.started {
		p.started = true
		if err := p.produce(); err != nil {
			return p.fail("capture", err)
		}
		if err := p.redraw(true); err != nil {
			return p.fail("redraw", err)
		}
	}

	for {
		if ctx.Err() != nil {
			log.Debug("cancellation observed")
			return nil
		}
		if err := p.produce(); err != nil {
			return p.fail("capture", err)
		}
		if err := p.pump.Dispatch(ctx, p); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return p.fail("dispatch", err)
		}
	}
}

func (p *Pipeline) fail(op string, err error) error {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re
	}
	return &RuntimeError{Op: op, Err: err}
}

// produce is one producer tick: capture, convert, publish per policy.
func (p *Pipeline) produce() error {
	if p.held != nil {
		if !p.slot.Publish(p.held) {
			p.metrics.RecordStall()
			return nil
		}
		p.held = nil
		if err := p.published(); err != nil {
			return err
		}
	}

	f, err := p.capture()
	if err != nil || f == nil {
		return err
	}

	switch p.opts.Policy {
	case PolicyStall:
		if !p.slot.Publish(f) {
			p.held = f
			return nil
		}
	case PolicyOverwrite:
		if old := p.slot.Replace(f); old != nil {
			p.frames.Put(old)
			p.metrics.RecordReplace()
		}
	default:
		if !p.slot.Publish(f) {
			p.frames.Put(f)
			p.metrics.RecordDrop()
			return nil
		}
	}
	return p.published()
}

// capture reads and converts one frame. A nil frame without error means
// the driver delivered a short frame, which is dropped.
func (p *Pipeline) capture() (*Frame, error) {
	start := time.Now()
	n, err := p.src.ReadFrame(p.raw)
	if err != nil {
		return nil, err
	}
	captured := time.Now()

	w, h := p.src.Width(), p.src.Height()
	if n < convert.FrameSize(w, h) {
		log.Debug("short frame dropped", "bytes", n, "want", convert.FrameSize(w, h))
		p.metrics.RecordDrop()
		return nil, nil
	}

	f := p.frames.Get()
	if err := convert.YUYVToXRGB(f.Pix, p.raw[:n], w, h); err != nil {
		p.frames.Put(f)
		return nil, err
	}
	p.seq++
	f.Seq = p.seq
	f.Captured = captured
	p.metrics.RecordCapture(captured.Sub(start), time.Since(captured))
	return f, nil
}

func (p *Pipeline) published() error {
	p.metrics.RecordPublish()
	if p.pendingRedraw {
		return p.redraw(false)
	}
	return nil
}

// Redraw handles a fired frame callback.
func (p *Pipeline) Redraw() error {
	return p.redraw(false)
}

// BufferReleased handles the compositor giving a buffer back.
func (p *Pipeline) BufferReleased(index int) {
	if !p.pool.Busy(index) {
		log.Debug("release for idle buffer", logging.KeyBuffer, index)
		return
	}
	p.pool.OnReleased(index)
}

// redraw copies the pending frame into a free buffer and shows it. An
// empty slot keeps the current contents on screen, except on the first
// attach which maps the window with a blank buffer.
func (p *Pipeline) redraw(first bool) error {
	if !p.slot.Full() && !first {
		p.pendingRedraw = true
		p.metrics.RecordSkip()
		return nil
	}

	f := p.slot.Peek()
	b, err := p.pool.NextFree()
	if err != nil {
		if errors.Is(err, present.ErrNoneAvailable) {
			err = fmt.Errorf("%w: %w", ErrPoolExhausted, err)
		}
		return &RuntimeError{Op: "redraw", Err: err}
	}
	if f != nil {
		copy(b.Pixels, f.Pix)
	}
	p.pool.MarkBusy(b.Index)
	if err := p.surface.Present(b.Handle()); err != nil {
		return &RuntimeError{Op: "present", Err: err}
	}
	p.pendingRedraw = false

	if f != nil {
		p.slot.Clear()
		p.metrics.RecordPresent(time.Since(f.Captured))
		p.frames.Put(f)
	}
	if p.opts.OnPresent != nil {
		p.opts.OnPresent()
	}
	return nil
}

// Close tears everything down in a fixed order: stop streaming, release
// the capture buffers and device, destroy the presentation buffers, then
// disconnect from the compositor. It is safe to call more than once.
func (p *Pipeline) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	if err := p.src.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := p.src.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := p.pool.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := p.pump.Close(); err != nil {
		errs = append(errs, err)
	}

	p.slot.Clear()
	p.held = nil

	log.Info("pipeline closed", p.metrics.Snapshot().LogArgs()...)
	return errors.Join(errs...)
}
