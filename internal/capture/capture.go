// Package capture owns the memory-mapped V4L2 buffer ring of one camera
// and hands out YUYV frames one at a time.
package capture

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/faith0x7dc/wl-camera-shm/internal/logging"
	"github.com/faith0x7dc/wl-camera-shm/internal/v4l2"
	"golang.org/x/sys/unix"
)

var log = logging.L("capture")

// Device is the slice of the V4L2 control surface the pool drives.
// *v4l2.Device implements it.
type Device interface {
	QueryCapability() (v4l2.Capability, error)
	ResetCrop() error
	EnumFormat(index int) (v4l2.FormatDesc, error)
	EnumFrameSize(index int, pixelFormat uint32) (v4l2.FrameSize, error)
	SetFormat(width, height, pixelFormat uint32) (v4l2.PixFormat, error)
	RequestBuffers(count int) (int, error)
	QueryBuffer(index int) (v4l2.BufferInfo, error)
	Map(offset uint32, length int) ([]byte, error)
	Unmap(mem []byte) error
	Queue(index int) error
	Dequeue() (index, bytesUsed int, err error)
	StreamOn() error
	StreamOff() error
	WaitReadable(timeout time.Duration) (bool, error)
	Close() error
}

// State is where a capture buffer currently lives.
type State int

const (
	FreeInPool State = iota
	QueuedToKernel
	FilledByKernel
)

func (s State) String() string {
	switch s {
	case FreeInPool:
		return "free"
	case QueuedToKernel:
		return "queued"
	case FilledByKernel:
		return "filled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options tunes the pool. Zero values take the defaults.
type Options struct {
	// BufferCount is the number of driver buffers requested (default 4).
	BufferCount int
	// DiscardFrames are read and dropped right after streaming starts so
	// auto exposure can settle (default 5). Negative disables.
	DiscardFrames int
	// ReadTimeout bounds each ReadFrame call (default 2s).
	ReadTimeout time.Duration
	// Open opens the device node; defaults to v4l2.Open.
	Open func(path string) (Device, error)
	// ListFormats enumerates formats for Probe; defaults to a
	// blackjack/webcam based lister on Linux.
	ListFormats func(path string) ([]FormatInfo, error)
}

// DefaultOptions returns the stock pool configuration.
func DefaultOptions() Options {
	return Options{
		BufferCount:   4,
		DiscardFrames: 5,
		ReadTimeout:   2 * time.Second,
		Open:          openV4L2,
		ListFormats:   listFormats,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.BufferCount <= 0 {
		o.BufferCount = d.BufferCount
	}
	if o.DiscardFrames == 0 {
		o.DiscardFrames = d.DiscardFrames
	} else if o.DiscardFrames < 0 {
		o.DiscardFrames = 0
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = d.ReadTimeout
	}
	if o.Open == nil {
		o.Open = d.Open
	}
	if o.ListFormats == nil {
		o.ListFormats = d.ListFormats
	}
	return o
}

func openV4L2(path string) (Device, error) {
	d, err := v4l2.Open(path)
	if err != nil {
		return nil, err
	}
	return d, nil
}

type buffer struct {
	mem   []byte
	state State
}

// Pool is a ring of driver buffers mapped into this process. At most one
// buffer is held outside the kernel queue at any time, and only for the
// duration of a ReadFrame call. A Pool is not safe for concurrent use.
type Pool struct {
	path      string
	dev       Device
	opts      Options
	caps      v4l2.Capability
	format    v4l2.PixFormat
	width     int
	height    int
	buffers   []buffer
	requested bool
	streaming bool
	closed    bool
	log       *slog.Logger
}

// Open initializes the device at path for YUYV streaming capture at its
// first discrete frame size and maps the driver buffers. On failure it
// returns an *InitError and holds nothing.
func Open(path string, opts Options) (pool *Pool, err error) {
	opts = opts.withDefaults()
	fail := func(reason, cause error) error {
		return &InitError{Device: path, Reason: reason, Err: cause}
	}

	info, err := os.Stat(path)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil, fail(ErrDeviceNotFound, err)
		case errors.Is(err, fs.ErrPermission):
			return nil, fail(ErrPermission, err)
		default:
			return nil, fail(ErrOpenFailed, err)
		}
	}
	if info.Mode()&os.ModeCharDevice == 0 {
		return nil, fail(ErrNotCharDevice, nil)
	}

	dev, err := opts.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fail(ErrPermission, err)
		}
		return nil, fail(ErrOpenFailed, err)
	}

	p := &Pool{
		path: path,
		dev:  dev,
		opts: opts,
		log:  logging.WithDevice(log, path),
	}
	defer func() {
		if err != nil {
			p.release()
		}
	}()

	if p.caps, err = dev.QueryCapability(); err != nil {
		return nil, fail(ErrNotV4L2, err)
	}
	if !p.caps.Has(v4l2.CapVideoCapture) {
		return nil, fail(ErrNoCapture, nil)
	}
	if !p.caps.Has(v4l2.CapStreaming) {
		return nil, fail(ErrNoStreaming, nil)
	}

	if cerr := dev.ResetCrop(); cerr != nil {
		p.log.Debug("crop reset skipped", "error", cerr)
	}

	size, err := dev.EnumFrameSize(0, v4l2.PixelFormatYUYV)
	if err != nil {
		return nil, fail(ErrNoFrameSize, err)
	}
	if size.Type != v4l2.FrmsizeTypeDiscrete || size.Width == 0 || size.Height == 0 {
		return nil, fail(ErrNoFrameSize, fmt.Errorf("frame size type %d", size.Type))
	}

	p.format, err = dev.SetFormat(size.Width, size.Height, v4l2.PixelFormatYUYV)
	if err != nil {
		return nil, fail(ErrFormatRejected, err)
	}
	if p.format.PixelFormat != v4l2.PixelFormatYUYV {
		return nil, fail(ErrFormatRejected, fmt.Errorf("driver selected %s", v4l2.FourCCString(p.format.PixelFormat)))
	}
	p.width, p.height = int(p.format.Width), int(p.format.Height)
	if p.width == 0 || p.height == 0 {
		p.width, p.height = int(size.Width), int(size.Height)
	}

	if err = p.mapBuffers(fail); err != nil {
		return nil, err
	}

	p.log.Info("capture device ready",
		"driver", p.caps.Driver,
		"card", p.caps.Card,
		"width", p.width,
		"height", p.height,
		"buffers", len(p.buffers))
	return p, nil
}

func (p *Pool) mapBuffers(fail func(reason, cause error) error) error {
	granted, err := p.dev.RequestBuffers(p.opts.BufferCount)
	if err != nil {
		if errors.Is(err, unix.EINVAL) {
			return fail(ErrMmapUnsupported, err)
		}
		return fail(ErrBufferRequest, err)
	}
	p.requested = true
	if granted < 2 {
		return fail(ErrInsufficientBuffers, fmt.Errorf("driver granted %d buffers", granted))
	}

	p.buffers = make([]buffer, 0, granted)
	for i := 0; i < granted; i++ {
		info, err := p.dev.QueryBuffer(i)
		if err != nil {
			return fail(ErrMapFailed, err)
		}
		mem, err := p.dev.Map(info.Offset, info.Length)
		if err != nil {
			return fail(ErrMapFailed, err)
		}
		p.buffers = append(p.buffers, buffer{mem: mem, state: FreeInPool})
	}
	return nil
}

// Start queues every buffer to the driver, turns streaming on and drops
// the configured number of warm-up frames.
func (p *Pool) Start() error {
	if p.closed {
		return ErrClosed
	}
	if p.streaming {
		return nil
	}

	for i := range p.buffers {
		if err := p.dev.Queue(i); err != nil {
			p.abortStart()
			return fmt.Errorf("capture: queue buffer %d: %w", i, err)
		}
		p.buffers[i].state = QueuedToKernel
	}
	if err := p.dev.StreamOn(); err != nil {
		p.abortStart()
		return fmt.Errorf("capture: stream on: %w", err)
	}
	p.streaming = true

	for i := 0; i < p.opts.DiscardFrames; i++ {
		if _, err := p.ReadFrame(nil); err != nil {
			return fmt.Errorf("capture: discard frame %d: %w", i, err)
		}
	}
	p.log.Debug("streaming started", "discarded", p.opts.DiscardFrames)
	return nil
}

// abortStart pulls back buffers queued before a failed start.
func (p *Pool) abortStart() {
	if err := p.dev.StreamOff(); err != nil {
		p.log.Debug("stream off after failed start", "error", err)
	}
	for i := range p.buffers {
		p.buffers[i].state = FreeInPool
	}
}

// ReadFrame waits up to the read timeout for a filled buffer, copies its
// payload into dst and hands the buffer back to the driver. A nil dst
// discards the frame. Interrupted waits and spurious wakeups are retried
// within the same deadline.
func (p *Pool) ReadFrame(dst []byte) (int, error) {
	if p.closed {
		return 0, ErrClosed
	}
	if !p.streaming {
		return 0, ErrNotStreaming
	}

	deadline := time.Now().Add(p.opts.ReadTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, ErrTimedOut
		}
		ready, err := p.dev.WaitReadable(remaining)
		if err != nil {
			return 0, fmt.Errorf("capture: wait: %w", err)
		}
		if !ready {
			return 0, ErrTimedOut
		}

		index, used, err := p.dev.Dequeue()
		if errors.Is(err, unix.EAGAIN) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("capture: dequeue: %w", err)
		}
		if index < 0 || index >= len(p.buffers) {
			return 0, fmt.Errorf("%w: %d of %d", ErrBadIndex, index, len(p.buffers))
		}
		return p.consume(index, used, dst)
	}
}

// consume copies out a dequeued buffer and re-queues it on every path.
func (p *Pool) consume(index, used int, dst []byte) (n int, err error) {
	b := &p.buffers[index]
	b.state = FilledByKernel
	defer func() {
		if qerr := p.dev.Queue(index); qerr != nil {
			b.state = FreeInPool
			if err == nil {
				err = fmt.Errorf("capture: requeue buffer %d: %w", index, qerr)
			}
			return
		}
		b.state = QueuedToKernel
	}()

	if dst == nil {
		return 0, nil
	}
	if used > len(b.mem) {
		used = len(b.mem)
	}
	if used > len(dst) {
		return 0, &CapacityError{Used: used, Capacity: len(dst)}
	}
	return copy(dst, b.mem[:used]), nil
}

// Stop turns streaming off. The driver gives every buffer back; mappings
// stay in place so Start can be called again.
func (p *Pool) Stop() error {
	if !p.streaming {
		return nil
	}
	p.streaming = false
	outstanding := p.Outstanding()
	for i := range p.buffers {
		p.buffers[i].state = FreeInPool
	}
	if err := p.dev.StreamOff(); err != nil {
		return fmt.Errorf("capture: stream off: %w", err)
	}
	p.log.Debug("streaming stopped", "outstanding", outstanding)
	return nil
}

// Close stops streaming, unmaps every buffer and closes the device.
// It is safe to call more than once.
func (p *Pool) Close() error {
	if p.closed {
		return nil
	}
	err := p.Stop()
	return errors.Join(err, p.release())
}

func (p *Pool) release() error {
	p.closed = true
	var errs []error
	for i := range p.buffers {
		if p.buffers[i].mem == nil {
			continue
		}
		if err := p.dev.Unmap(p.buffers[i].mem); err != nil {
			errs = append(errs, err)
		}
		p.buffers[i].mem = nil
	}
	if p.requested {
		if _, err := p.dev.RequestBuffers(0); err != nil {
			p.log.Debug("release driver buffers", "error", err)
		}
		p.requested = false
	}
	if p.dev != nil {
		if err := p.dev.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Pool) Width() int  { return p.width }
func (p *Pool) Height() int { return p.height }

// FrameSize is the byte length of one YUYV frame at the negotiated size.
func (p *Pool) FrameSize() int { return p.width * p.height * 2 }

func (p *Pool) BufferCount() int { return len(p.buffers) }

func (p *Pool) Capability() v4l2.Capability { return p.caps }

// State reports where buffer i currently lives.
func (p *Pool) State(i int) State { return p.buffers[i].state }

// Outstanding counts buffers dequeued from the driver and not yet
// returned.
func (p *Pool) Outstanding() int {
	n := 0
	for i := range p.buffers {
		if p.buffers[i].state == FilledByKernel {
			n++
		}
	}
	return n
}
