package capture

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/faith0x7dc/wl-camera-shm/internal/v4l2"
	"golang.org/x/sys/unix"
)

// charDevice is any character device; the fake never touches it.
const charDevice = "/dev/null"

type fakeDevice struct {
	caps       v4l2.Capability
	size       v4l2.FrameSize
	sizeErr    error
	setFormat  func(w, h, pf uint32) v4l2.PixFormat
	granted    int
	reqErr     error
	mapFailAt  int
	frameLen   int
	available  int // frames the "sensor" will still deliver; <0 unlimited
	eagainOnce bool
	badIndex   bool

	pool         *Pool
	mem          [][]byte
	queue        []int
	streaming    bool
	mapped       int
	unmapped     int
	released     bool
	closed       bool
	dequeued     int
	maxHeldAtQBF int
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		caps: v4l2.Capability{
			Driver:       "fake",
			Card:         "Fake Camera",
			Capabilities: v4l2.CapVideoCapture | v4l2.CapStreaming,
		},
		size:      v4l2.FrameSize{Type: v4l2.FrmsizeTypeDiscrete, Width: 8, Height: 4},
		granted:   4,
		mapFailAt: -1,
		frameLen:  8 * 4 * 2,
		available: -1,
	}
}

func (f *fakeDevice) opener(path string) (Device, error) { return f, nil }

func (f *fakeDevice) QueryCapability() (v4l2.Capability, error) { return f.caps, nil }
func (f *fakeDevice) ResetCrop() error                          { return fmt.Errorf("v4l2: VIDIOC_CROPCAP: %w", unix.EINVAL) }
func (f *fakeDevice) EnumFormat(index int) (v4l2.FormatDesc, error) {
	if index > 0 {
		return v4l2.FormatDesc{}, unix.EINVAL
	}
	return v4l2.FormatDesc{PixelFormat: v4l2.PixelFormatYUYV, Description: "YUYV 4:2:2"}, nil
}

func (f *fakeDevice) EnumFrameSize(index int, pf uint32) (v4l2.FrameSize, error) {
	if f.sizeErr != nil {
		return v4l2.FrameSize{}, f.sizeErr
	}
	if index > 0 {
		return v4l2.FrameSize{}, unix.EINVAL
	}
	return f.size, nil
}

func (f *fakeDevice) SetFormat(w, h, pf uint32) (v4l2.PixFormat, error) {
	if f.setFormat != nil {
		return f.setFormat(w, h, pf), nil
	}
	return v4l2.PixFormat{Width: w, Height: h, PixelFormat: pf, BytesPerLine: w * 2}, nil
}

func (f *fakeDevice) RequestBuffers(count int) (int, error) {
	if count == 0 {
		f.released = true
		return 0, nil
	}
	if f.reqErr != nil {
		return 0, f.reqErr
	}
	return f.granted, nil
}

func (f *fakeDevice) QueryBuffer(index int) (v4l2.BufferInfo, error) {
	return v4l2.BufferInfo{Index: index, Offset: uint32(index * 4096), Length: f.frameLen}, nil
}

func (f *fakeDevice) Map(offset uint32, length int) ([]byte, error) {
	if int(offset/4096) == f.mapFailAt {
		return nil, fmt.Errorf("v4l2: mmap offset %d: %w", offset, unix.ENOMEM)
	}
	f.mapped++
	mem := make([]byte, length)
	f.mem = append(f.mem, mem)
	return mem, nil
}

func (f *fakeDevice) Unmap(mem []byte) error {
	f.unmapped++
	return nil
}

func (f *fakeDevice) Queue(index int) error {
	if f.pool != nil {
		if held := f.pool.Outstanding(); held > f.maxHeldAtQBF {
			f.maxHeldAtQBF = held
		}
	}
	f.queue = append(f.queue, index)
	return nil
}

func (f *fakeDevice) Dequeue() (int, int, error) {
	if f.eagainOnce {
		f.eagainOnce = false
		return 0, 0, fmt.Errorf("v4l2: VIDIOC_DQBUF: %w", unix.EAGAIN)
	}
	if len(f.queue) == 0 || f.available == 0 {
		return 0, 0, unix.EAGAIN
	}
	index := f.queue[0]
	f.queue = f.queue[1:]
	if f.available > 0 {
		f.available--
	}
	f.dequeued++
	for i := range f.mem[index] {
		f.mem[index][i] = byte(f.dequeued)
	}
	if f.badIndex {
		return 99, f.frameLen, nil
	}
	return index, f.frameLen, nil
}

func (f *fakeDevice) StreamOn() error {
	f.streaming = true
	return nil
}

func (f *fakeDevice) StreamOff() error {
	f.streaming = false
	f.queue = nil
	return nil
}

func (f *fakeDevice) WaitReadable(timeout time.Duration) (bool, error) {
	return f.streaming && len(f.queue) > 0 && f.available != 0, nil
}

func (f *fakeDevice) Close() error {
	f.closed = true
	return nil
}

func openFake(t *testing.T, f *fakeDevice) *Pool {
	t.Helper()
	p, err := Open(charDevice, Options{Open: f.opener, ReadTimeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	f.pool = p
	return p
}

func TestOpenNonexistentDevice(t *testing.T) {
	opened := false
	_, err := Open("/nonexistent", Options{Open: func(string) (Device, error) {
		opened = true
		return nil, errors.New("unexpected")
	}})
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
	var ie *InitError
	if !errors.As(err, &ie) {
		t.Fatalf("expected *InitError, got %T", err)
	}
	if opened {
		t.Fatal("device should not be opened when stat fails")
	}
}

func TestOpenRegularFileIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "video0")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Open(path, Options{Open: newFakeDevice().opener}); !errors.Is(err, ErrNotCharDevice) {
		t.Fatalf("expected ErrNotCharDevice, got %v", err)
	}
}

func TestOpenWithoutStreamingCapability(t *testing.T) {
	f := newFakeDevice()
	f.caps.Capabilities = v4l2.CapVideoCapture
	_, err := Open(charDevice, Options{Open: f.opener})
	if !errors.Is(err, ErrNoStreaming) {
		t.Fatalf("expected ErrNoStreaming, got %v", err)
	}
	if !f.closed {
		t.Fatal("device handle should be closed after init failure")
	}
	if f.mapped != 0 {
		t.Fatalf("no buffers should be mapped, got %d", f.mapped)
	}
}

func TestOpenWithoutCaptureCapability(t *testing.T) {
	f := newFakeDevice()
	f.caps.Capabilities = v4l2.CapStreaming
	if _, err := Open(charDevice, Options{Open: f.opener}); !errors.Is(err, ErrNoCapture) {
		t.Fatalf("expected ErrNoCapture, got %v", err)
	}
}

func TestOpenRejectsStepwiseFrameSize(t *testing.T) {
	f := newFakeDevice()
	f.size = v4l2.FrameSize{Type: v4l2.FrmsizeTypeStepwise, MinWidth: 16, MaxWidth: 640}
	if _, err := Open(charDevice, Options{Open: f.opener}); !errors.Is(err, ErrNoFrameSize) {
		t.Fatalf("expected ErrNoFrameSize, got %v", err)
	}
	if !f.closed {
		t.Fatal("device handle should be closed")
	}
}

func TestOpenRejectsSubstitutedFormat(t *testing.T) {
	f := newFakeDevice()
	f.setFormat = func(w, h, pf uint32) v4l2.PixFormat {
		return v4l2.PixFormat{Width: w, Height: h, PixelFormat: v4l2.FourCC('M', 'J', 'P', 'G')}
	}
	if _, err := Open(charDevice, Options{Open: f.opener}); !errors.Is(err, ErrFormatRejected) {
		t.Fatalf("expected ErrFormatRejected, got %v", err)
	}
}

func TestOpenAdoptsDriverAdjustedSize(t *testing.T) {
	f := newFakeDevice()
	f.setFormat = func(w, h, pf uint32) v4l2.PixFormat {
		return v4l2.PixFormat{Width: 4, Height: 2, PixelFormat: pf}
	}
	p := openFake(t, f)
	defer p.Close()
	if p.Width() != 4 || p.Height() != 2 {
		t.Fatalf("size = %dx%d, want 4x2", p.Width(), p.Height())
	}
	if p.FrameSize() != 16 {
		t.Fatalf("FrameSize = %d, want 16", p.FrameSize())
	}
}

func TestOpenInsufficientBuffers(t *testing.T) {
	f := newFakeDevice()
	f.granted = 1
	_, err := Open(charDevice, Options{Open: f.opener})
	if !errors.Is(err, ErrInsufficientBuffers) {
		t.Fatalf("expected ErrInsufficientBuffers, got %v", err)
	}
	if !f.released {
		t.Fatal("driver buffers should be released")
	}
	if !f.closed {
		t.Fatal("device handle should be closed")
	}
}

func TestOpenMmapUnsupported(t *testing.T) {
	f := newFakeDevice()
	f.reqErr = fmt.Errorf("v4l2: VIDIOC_REQBUFS: %w", unix.EINVAL)
	if _, err := Open(charDevice, Options{Open: f.opener}); !errors.Is(err, ErrMmapUnsupported) {
		t.Fatalf("expected ErrMmapUnsupported, got %v", err)
	}
}

func TestOpenMapFailureUnmapsEarlierBuffers(t *testing.T) {
	f := newFakeDevice()
	f.mapFailAt = 2
	_, err := Open(charDevice, Options{Open: f.opener})
	if !errors.Is(err, ErrMapFailed) {
		t.Fatalf("expected ErrMapFailed, got %v", err)
	}
	if f.mapped != 2 || f.unmapped != 2 {
		t.Fatalf("mapped %d unmapped %d, want 2 and 2", f.mapped, f.unmapped)
	}
	if !f.closed {
		t.Fatal("device handle should be closed")
	}
}

func TestReadTenFramesThenTerminate(t *testing.T) {
	f := newFakeDevice()
	p := openFake(t, f)

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if f.dequeued != 5 {
		t.Fatalf("expected 5 discarded frames, got %d", f.dequeued)
	}

	dst := make([]byte, p.FrameSize())
	for i := 0; i < 10; i++ {
		n, err := p.ReadFrame(dst)
		if err != nil {
			t.Fatalf("ReadFrame %d: %v", i, err)
		}
		if n != p.FrameSize() {
			t.Fatalf("ReadFrame %d: n = %d, want %d", i, n, p.FrameSize())
		}
		if dst[0] != byte(6+i) {
			t.Fatalf("ReadFrame %d: payload %d, want %d", i, dst[0], 6+i)
		}
		if held := p.Outstanding(); held != 0 {
			t.Fatalf("ReadFrame %d: %d buffers outstanding after return", i, held)
		}
	}
	if f.maxHeldAtQBF > 1 {
		t.Fatalf("at most one buffer may be outside the driver, saw %d", f.maxHeldAtQBF)
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if f.unmapped != f.mapped || f.mapped != 4 {
		t.Fatalf("mapped %d unmapped %d, want 4 and 4", f.mapped, f.unmapped)
	}
	if !f.closed {
		t.Fatal("device handle should be closed")
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if f.unmapped != 4 {
		t.Fatalf("second Close unmapped again: %d", f.unmapped)
	}
}

func TestReadFrameTimesOut(t *testing.T) {
	f := newFakeDevice()
	f.available = 5
	p := openFake(t, f)
	defer p.Close()

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_, err := p.ReadFrame(make([]byte, p.FrameSize()))
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("expected ErrTimedOut, got %v", err)
	}
	if p.Outstanding() != 0 {
		t.Fatalf("timeout must not leave buffers outstanding")
	}
}

func TestReadFrameCapacityErrorRequeues(t *testing.T) {
	f := newFakeDevice()
	p := openFake(t, f)
	defer p.Close()
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	queuedBefore := len(f.queue)
	_, err := p.ReadFrame(make([]byte, p.FrameSize()-1))
	var ce *CapacityError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CapacityError, got %v", err)
	}
	if ce.Used != p.FrameSize() {
		t.Fatalf("CapacityError.Used = %d, want %d", ce.Used, p.FrameSize())
	}
	if len(f.queue) != queuedBefore {
		t.Fatalf("buffer not re-queued: queue %d, want %d", len(f.queue), queuedBefore)
	}
	if p.Outstanding() != 0 {
		t.Fatal("capacity failure must not leave buffers outstanding")
	}
}

func TestReadFrameRetriesEAGAIN(t *testing.T) {
	f := newFakeDevice()
	p := openFake(t, f)
	defer p.Close()
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.eagainOnce = true
	if _, err := p.ReadFrame(make([]byte, p.FrameSize())); err != nil {
		t.Fatalf("EAGAIN should be retried, got %v", err)
	}
}

func TestReadFrameBadIndex(t *testing.T) {
	f := newFakeDevice()
	f.available = -1
	p := openFake(t, f)
	defer p.Close()
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.badIndex = true
	if _, err := p.ReadFrame(make([]byte, p.FrameSize())); !errors.Is(err, ErrBadIndex) {
		t.Fatalf("expected ErrBadIndex, got %v", err)
	}
}

func TestReadFrameRequiresStreaming(t *testing.T) {
	f := newFakeDevice()
	p := openFake(t, f)
	defer p.Close()
	if _, err := p.ReadFrame(nil); !errors.Is(err, ErrNotStreaming) {
		t.Fatalf("expected ErrNotStreaming, got %v", err)
	}
}

func TestStopReturnsBuffersAndRestarts(t *testing.T) {
	f := newFakeDevice()
	p := openFake(t, f)
	defer p.Close()

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	for i := 0; i < p.BufferCount(); i++ {
		if p.State(i) != FreeInPool {
			t.Fatalf("buffer %d state %s after stop, want free", i, p.State(i))
		}
	}
	if err := p.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if _, err := p.ReadFrame(make([]byte, p.FrameSize())); err != nil {
		t.Fatalf("ReadFrame after restart: %v", err)
	}
}

func refuseListing(string) ([]FormatInfo, error) {
	return nil, errors.New("not a video capture device")
}

func TestProbeListsFormats(t *testing.T) {
	f := newFakeDevice()
	info, err := Probe(charDevice, Options{Open: f.opener, ListFormats: refuseListing})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if len(info.Formats) != 1 || len(info.Formats[0].Sizes) != 1 {
		t.Fatalf("unexpected probe result: %+v", info)
	}
	if info.Formats[0].Sizes[0].String() != "8x4" {
		t.Fatalf("size = %s, want 8x4", info.Formats[0].Sizes[0])
	}
	if !f.closed {
		t.Fatal("probe should close the device")
	}
}

func TestProbePrefersFormatLister(t *testing.T) {
	f := newFakeDevice()
	listed := []FormatInfo{{
		FormatDesc: v4l2.FormatDesc{PixelFormat: v4l2.PixelFormatYUYV, Description: "YUYV 4:2:2"},
		Sizes: []v4l2.FrameSize{
			{Type: v4l2.FrmsizeTypeDiscrete, Width: 640, Height: 480},
			{Index: 1, Type: v4l2.FrmsizeTypeDiscrete, Width: 1280, Height: 720},
		},
	}}
	var listedPath string
	opts := Options{
		Open: f.opener,
		ListFormats: func(path string) ([]FormatInfo, error) {
			listedPath = path
			return listed, nil
		},
	}
	info, err := Probe(charDevice, opts)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if listedPath != charDevice {
		t.Fatalf("lister called with %q, want %q", listedPath, charDevice)
	}
	if len(info.Formats) != 1 || len(info.Formats[0].Sizes) != 2 {
		t.Fatalf("unexpected probe result: %+v", info)
	}
	if got := info.Formats[0].Sizes[1].String(); got != "1280x720" {
		t.Fatalf("second size = %s, want 1280x720", got)
	}
	if info.Capability.Driver != "fake" {
		t.Fatalf("capability driver = %q, want fake", info.Capability.Driver)
	}
}
