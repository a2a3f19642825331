// Package v4l2 is a minimal pure-Go binding of the Video4Linux2 streaming
// capture interface: capability query, format negotiation and memory-mapped
// buffer exchange.
package v4l2

import (
	"errors"
	"fmt"
	"strings"
)

// Capability flags (struct v4l2_capability).
const (
	CapVideoCapture uint32 = 0x00000001
	CapStreaming    uint32 = 0x04000000
	CapDeviceCaps   uint32 = 0x80000000
)

const (
	BufTypeVideoCapture uint32 = 1
	MemoryMMAP          uint32 = 1
	FieldAny            uint32 = 0
)

// Frame size enumeration types.
const (
	FrmsizeTypeDiscrete   uint32 = 1
	FrmsizeTypeContinuous uint32 = 2
	FrmsizeTypeStepwise   uint32 = 3
)

// PixelFormatYUYV is packed YUV 4:2:2, two bytes per pixel.
var PixelFormatYUYV = FourCC('Y', 'U', 'Y', 'V')

// ErrUnsupported is returned on platforms without V4L2 or with an ioctl
// encoding this package does not carry (mips, ppc64).
var ErrUnsupported = errors.New("v4l2: not supported on this platform")

// FourCC packs four characters into a V4L2 pixel format code.
func FourCC(a, b, c, d byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}

// FourCCString renders a pixel format code as its four characters.
func FourCCString(code uint32) string {
	b := []byte{byte(code), byte(code >> 8), byte(code >> 16), byte(code >> 24)}
	return strings.TrimRight(string(b), "\x00 ")
}

// Capability is the decoded result of VIDIOC_QUERYCAP.
type Capability struct {
	Driver       string
	Card         string
	BusInfo      string
	Version      uint32
	Capabilities uint32
	DeviceCaps   uint32
}

// Effective returns the capabilities of the opened node, preferring the
// per-node device caps when the driver reports them.
func (c Capability) Effective() uint32 {
	if c.Capabilities&CapDeviceCaps != 0 && c.DeviceCaps != 0 {
		return c.DeviceCaps
	}
	return c.Capabilities
}

// Has reports whether every bit in flags is set in the effective caps.
func (c Capability) Has(flags uint32) bool {
	return c.Effective()&flags == flags
}

// VersionString formats the kernel version encoded in Version.
func (c Capability) VersionString() string {
	return fmt.Sprintf("%d.%d.%d", c.Version>>16, (c.Version>>8)&0xff, c.Version&0xff)
}

// FormatDesc is one entry of VIDIOC_ENUM_FMT.
type FormatDesc struct {
	Index       int
	PixelFormat uint32
	Flags       uint32
	Description string
}

// FrameSize is one entry of VIDIOC_ENUM_FRAMESIZES. Width and Height are
// set for discrete sizes; the Min/Max/Step fields for stepwise ranges.
type FrameSize struct {
	Index       int
	PixelFormat uint32
	Type        uint32
	Width       uint32
	Height      uint32
	MinWidth    uint32
	MaxWidth    uint32
	StepWidth   uint32
	MinHeight   uint32
	MaxHeight   uint32
	StepHeight  uint32
}

func (f FrameSize) String() string {
	switch f.Type {
	case FrmsizeTypeDiscrete:
		return fmt.Sprintf("%dx%d", f.Width, f.Height)
	case FrmsizeTypeContinuous, FrmsizeTypeStepwise:
		return fmt.Sprintf("%dx%d-%dx%d step %d/%d", f.MinWidth, f.MinHeight, f.MaxWidth, f.MaxHeight, f.StepWidth, f.StepHeight)
	default:
		return fmt.Sprintf("type %d", f.Type)
	}
}

// PixFormat is the negotiated single-planar capture format.
type PixFormat struct {
	Width        uint32
	Height       uint32
	PixelFormat  uint32
	Field        uint32
	BytesPerLine uint32
	SizeImage    uint32
	Colorspace   uint32
}

// BufferInfo describes one driver buffer for mmap.
type BufferInfo struct {
	Index  int
	Offset uint32
	Length int
}

func cString(b []byte) string {
	if i := strings.IndexByte(string(b), 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
