//go:build linux && (amd64 || arm64 || riscv64 || loong64 || s390x)

package v4l2

import "unsafe"

// Compile-time struct size assertions against the 64-bit kernel ABI.
var (
	_ [0]struct{} = [unsafe.Sizeof(v4l2Capability{}) - 104]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(v4l2Fmtdesc{}) - 64]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(v4l2Frmsizeenum{}) - 44]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(v4l2Cropcap{}) - 44]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(v4l2Crop{}) - 20]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(v4l2Format{}) - 208]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(v4l2Requestbuffers{}) - 20]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(v4l2Buffer{}) - 88]struct{}{}

	_ [0]struct{} = [unsafe.Offsetof(v4l2Format{}.pix) - 8]struct{}{}
	_ [0]struct{} = [unsafe.Offsetof(v4l2Buffer{}.memory) - 60]struct{}{}
	_ [0]struct{} = [unsafe.Offsetof(v4l2Buffer{}.offset) - 64]struct{}{}
)

// IOCTL constants for 64-bit architectures.
const (
	vidiocQuerycap       = 0x80685600
	vidiocEnumFmt        = 0xc0405602
	vidiocSFmt           = 0xc0d05605
	vidiocReqbufs        = 0xc0145608
	vidiocQuerybuf       = 0xc0585609
	vidiocQbuf           = 0xc058560f
	vidiocDqbuf          = 0xc0585611
	vidiocStreamon       = 0x40045612
	vidiocStreamoff      = 0x40045613
	vidiocCropcap        = 0xc02c563a
	vidiocSCrop          = 0x4014563c
	vidiocEnumFramesizes = 0xc02c564a
)

// v4l2Format has size 208 bytes. The fmt union holds pointers on 64-bit
// kernels, so it starts at offset 8.
type v4l2Format struct {
	typ uint32
	_   uint32
	pix v4l2PixFormat // offset 8
	_   [200 - 48]byte
}

// v4l2Buffer has size 88 bytes.
type v4l2Buffer struct {
	index     uint32       // offset 0
	typ       uint32       // offset 4
	bytesused uint32       // offset 8
	flags     uint32       // offset 12
	field     uint32       // offset 16
	_         uint32       // padding before timeval
	timestamp [16]byte     // offset 24
	timecode  v4l2Timecode // offset 40
	sequence  uint32       // offset 56
	memory    uint32       // offset 60
	offset    uint32       // offset 64, union m
	_         uint32
	length    uint32 // offset 72
	reserved2 uint32
	requestFD uint32 // offset 80
	_         uint32
}
