//go:build linux && (386 || arm)

package v4l2

import "unsafe"

// Compile-time struct size assertions against the 32-bit kernel ABI.
var (
	_ [0]struct{} = [unsafe.Sizeof(v4l2Capability{}) - 104]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(v4l2Fmtdesc{}) - 64]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(v4l2Frmsizeenum{}) - 44]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(v4l2Cropcap{}) - 44]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(v4l2Crop{}) - 20]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(v4l2Format{}) - 204]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(v4l2Requestbuffers{}) - 20]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(v4l2Buffer{}) - 68]struct{}{}
)

// IOCTL constants for 32-bit architectures.
const (
	vidiocQuerycap       = 0x80685600
	vidiocEnumFmt        = 0xc0405602
	vidiocSFmt           = 0xc0cc5605
	vidiocReqbufs        = 0xc0145608
	vidiocQuerybuf       = 0xc0445609
	vidiocQbuf           = 0xc044560f
	vidiocDqbuf          = 0xc0445611
	vidiocStreamon       = 0x40045612
	vidiocStreamoff      = 0x40045613
	vidiocCropcap        = 0xc02c563a
	vidiocSCrop          = 0x4014563c
	vidiocEnumFramesizes = 0xc02c564a
)

// v4l2Format has size 204 bytes.
type v4l2Format struct {
	typ uint32
	pix v4l2PixFormat // offset 4
	_   [200 - 48]byte
}

// v4l2Buffer has size 68 bytes.
type v4l2Buffer struct {
	index     uint32       // offset 0
	typ       uint32       // offset 4
	bytesused uint32       // offset 8
	flags     uint32       // offset 12
	field     uint32       // offset 16
	timestamp [8]byte      // offset 20
	timecode  v4l2Timecode // offset 28
	sequence  uint32       // offset 44
	memory    uint32       // offset 48
	offset    uint32       // offset 52, union m
	length    uint32       // offset 56
	reserved2 uint32
	requestFD uint32 // offset 64
}
