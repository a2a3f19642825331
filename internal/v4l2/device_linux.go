//go:build linux && (386 || arm || amd64 || arm64 || riscv64 || loong64 || s390x)

package v4l2

import (
	"errors"
	"fmt"
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Device is an open V4L2 video node.
type Device struct {
	fd   int
	path string
}

// Open opens path read/write and non-blocking.
func Open(path string) (*Device, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}
	return &Device{fd: fd, path: path}, nil
}



func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
		switch errno {
		case 0:
			return nil
		case unix.EINTR:
			continue
		default:
			return errno
		}
	}
}

func (d *Device) QueryCapability() (Capability, error) {
	var c v4l2Capability
	if err := ioctl(d.fd, vidiocQuerycap, unsafe.Pointer(&c)); err != nil {
		return Capability{}, fmt.Errorf("v4l2: VIDIOC_QUERYCAP: %w", err)
	}
	return Capability{
		Driver:       cString(c.driver[:]),
		Card:         cString(c.card[:]),
		BusInfo:      cString(c.busInfo[:]),
		Version:      c.version,
		Capabilities: c.capabilities,
		DeviceCaps:   c.deviceCaps,
	}, nil
}

// ResetCrop restores the default crop rectangle. Drivers without cropping
// report EINVAL; callers treat any error as advisory.
func (d *Device) ResetCrop() error {
	cc := v4l2Cropcap{typ: BufTypeVideoCapture}
	if err := ioctl(d.fd, vidiocCropcap, unsafe.Pointer(&cc)); err != nil {
		return fmt.Errorf("v4l2: VIDIOC_CROPCAP: %w", err)
	}
	crop := v4l2Crop{typ: BufTypeVideoCapture, c: cc.defrect}
	if err := ioctl(d.fd, vidiocSCrop, unsafe.Pointer(&crop)); err != nil {
		return fmt.Errorf("v4l2: VIDIOC_S_CROP: %w", err)
	}
	return nil
}

func (d *Device) EnumFormat(index int) (FormatDesc, error) {
	fd := v4l2Fmtdesc{index: uint32(index), typ: BufTypeVideoCapture}
	if err := ioctl(d.fd, vidiocEnumFmt, unsafe.Pointer(&fd)); err != nil {
		return FormatDesc{}, fmt.Errorf("v4l2: VIDIOC_ENUM_FMT %d: %w", index, err)
	}
	return FormatDesc{
		Index:       int(fd.index),
		PixelFormat: fd.pixelformat,
		Flags:       fd.flags,
		Description: cString(fd.description[:]),
	}, nil
}

func (d *Device) EnumFrameSize(index int, pixelFormat uint32) (FrameSize, error) {
	fs := v4l2Frmsizeenum{index: uint32(index), pixelFormat: pixelFormat}
	if err := ioctl(d.fd, vidiocEnumFramesizes, unsafe.Pointer(&fs)); err != nil {
		return FrameSize{}, fmt.Errorf("v4l2: VIDIOC_ENUM_FRAMESIZES %d: %w", index, err)
	}
	out := FrameSize{Index: int(fs.index), PixelFormat: fs.pixelFormat, Type: fs.typ}
	if fs.typ == FrmsizeTypeDiscrete {
		out.Width, out.Height = fs.union[0], fs.union[1]
	} else {
		out.MinWidth, out.MaxWidth, out.StepWidth = fs.union[0], fs.union[1], fs.union[2]
		out.MinHeight, out.MaxHeight, out.StepHeight = fs.union[3], fs.union[4], fs.union[5]
	}
	return out, nil
}

// SetFormat requests a capture format and returns what the driver chose.
func (d *Device) SetFormat(width, height, pixelFormat uint32) (PixFormat, error) {
	f := v4l2Format{typ: BufTypeVideoCapture}
	f.pix.width = width
	f.pix.height = height
	f.pix.pixelformat = pixelFormat
	f.pix.field = FieldAny
	if err := ioctl(d.fd, vidiocSFmt, unsafe.Pointer(&f)); err != nil {
		return PixFormat{}, fmt.Errorf("v4l2: VIDIOC_S_FMT: %w", err)
	}
	return PixFormat{
		Width:        f.pix.width,
		Height:       f.pix.height,
		PixelFormat:  f.pix.pixelformat,
		Field:        f.pix.field,
		BytesPerLine: f.pix.bytesperline,
		SizeImage:    f.pix.sizeimage,
		Colorspace:   f.pix.colorspace,
	}, nil
}

// RequestBuffers asks for count MMAP buffers and returns the granted count.
// A count of zero releases the driver's buffers.
func (d *Device) RequestBuffers(count int) (int, error) {
	req := v4l2Requestbuffers{
		count:  uint32(count),
		typ:    BufTypeVideoCapture,
		memory: MemoryMMAP,
	}
	if err := ioctl(d.fd, vidiocReqbufs, unsafe.Pointer(&req)); err != nil {
		return 0, fmt.Errorf("v4l2: VIDIOC_REQBUFS: %w", err)
	}
	return int(req.count), nil
}

func (d *Device) QueryBuffer(index int) (BufferInfo, error) {
	b := v4l2Buffer{index: uint32(index), typ: BufTypeVideoCapture, memory: MemoryMMAP}
	if err := ioctl(d.fd, vidiocQuerybuf, unsafe.Pointer(&b)); err != nil {
		return BufferInfo{}, fmt.Errorf("v4l2: VIDIOC_QUERYBUF %d: %w", index, err)
	}
	return BufferInfo{Index: int(b.index), Offset: b.offset, Length: int(b.length)}, nil
}

func (d *Device) Map(offset uint32, length int) ([]byte, error) {
	mem, err := unix.Mmap(d.fd, int64(offset), length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("v4l2: mmap offset %d: %w", offset, err)
	}
	return mem, nil
}

func (d *Device) Unmap(mem []byte) error {
	if err := unix.Munmap(mem); err != nil {
		return fmt.Errorf("v4l2: munmap: %w", err)
	}
	return nil
}

func (d *Device) Queue(index int) error {
	b := v4l2Buffer{index: uint32(index), typ: BufTypeVideoCapture, memory: MemoryMMAP}
	if err := ioctl(d.fd, vidiocQbuf, unsafe.Pointer(&b)); err != nil {
		return fmt.Errorf("v4l2: VIDIOC_QBUF %d: %w", index, err)
	}
	return nil
}

// Dequeue takes one filled buffer from the driver. It returns an error
// wrapping unix.EAGAIN when no buffer is ready.
func (d *Device) Dequeue() (index, bytesUsed int, err error) {
	b := v4l2Buffer{typ: BufTypeVideoCapture, memory: MemoryMMAP}
	if err := ioctl(d.fd, vidiocDqbuf, unsafe.Pointer(&b)); err != nil {
		return 0, 0, fmt.Errorf("v4l2: VIDIOC_DQBUF: %w", err)
	}
	return int(b.index), int(b.bytesused), nil
}

func (d *Device) StreamOn() error {
	typ := int32(BufTypeVideoCapture)
	if err := ioctl(d.fd, vidiocStreamon, unsafe.Pointer(&typ)); err != nil {
		return fmt.Errorf("v4l2: VIDIOC_STREAMON: %w", err)
	}
	return nil
}

func (d *Device) StreamOff() error {
	typ := int32(BufTypeVideoCapture)
	if err := ioctl(d.fd, vidiocStreamoff, unsafe.Pointer(&typ)); err != nil {
		return fmt.Errorf("v4l2: VIDIOC_STREAMOFF: %w", err)
	}
	return nil
}

// WaitReadable blocks until a filled buffer can be dequeued or timeout
// elapses. Interrupted polls resume with the remaining time.
func (d *Device) WaitReadable(timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		fds := []unix.PollFd{{Fd: int32(d.fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, int((remaining+time.Millisecond-1)/time.Millisecond))
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("v4l2: poll: %w", err)
		}
		if n == 0 {
			return false, nil
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
			return false, fmt.Errorf("v4l2: poll: device error (revents %#x)", fds[0].Revents)
		}
		return true, nil
	}
}

func (d *Device) Close() error {
	if d.fd < 0 {
		return nil
	}
	err := unix.Close(d.fd)
	d.fd = -1
	if err != nil {
		return fmt.Errorf("v4l2: close %s: %w", d.path, err)
	}
	return nil
}
