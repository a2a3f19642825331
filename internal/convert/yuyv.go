// Package convert turns packed YUYV 4:2:2 camera frames into the 32-bit
// XRGB8888 layout Wayland shm buffers expect.
package convert

import "errors"

var (
	// ErrNilBuffer is returned when either the source or destination is empty.
	ErrNilBuffer = errors.New("convert: nil buffer")
	// ErrZeroSize is returned for a zero width or height.
	ErrZeroSize = errors.New("convert: zero frame size")
	// ErrShortBuffer is returned when a buffer is smaller than the frame.
	ErrShortBuffer = errors.New("convert: buffer too small for frame")
)

// FrameSize is the byte length of a packed YUYV frame.
func FrameSize(width, height int) int {
	return width * height * 2
}

// OutputSize is the byte length of the converted XRGB8888 frame.
func OutputSize(width, height int) int {
	return width * height * 4
}

// YUYVToXRGB converts width*height pixels of packed YUYV (Y0 U Y1 V per
// pixel pair) in src into little-endian XRGB8888 in dst: bytes B, G, R, 0xFF.
//
// Uses BT.601 coefficients in 8-bit fixed point. The two pixels of a pair
// share the chroma sample. Each channel is clamped to [0,255].
func YUYVToXRGB(dst, src []byte, width, height int) error {
	if len(src) == 0 || len(dst) == 0 {
		return ErrNilBuffer
	}
	if width <= 0 || height <= 0 {
		return ErrZeroSize
	}
	pixels := width * height
	if len(src) < FrameSize(width, height) || len(dst) < OutputSize(width, height) {
		return ErrShortBuffer
	}

	// An odd pixel count leaves a trailing half pair; it reuses the last
	// chroma sample.
	pairs := pixels / 2
	d := dst[:pixels*4]
	s := src[:pixels*2]
	for p := 0; p < pairs; p++ {
		si := p * 4
		di := p * 8
		y0 := int(s[si])
		u := int(s[si+1]) - 128
		y1 := int(s[si+2])
		v := int(s[si+3]) - 128

		dr := (359 * v) >> 8
		dg := (88*u + 183*v) >> 8
		db := (454 * u) >> 8

		d[di] = clamp(y0 + db)
		d[di+1] = clamp(y0 - dg)
		d[di+2] = clamp(y0 + dr)
		d[di+3] = 0xff
		d[di+4] = clamp(y1 + db)
		d[di+5] = clamp(y1 - dg)
		d[di+6] = clamp(y1 + dr)
		d[di+7] = 0xff
	}
	if pixels%2 == 1 {
		si := pairs * 4
		di := pairs * 8
		y := int(s[si])
		u, v := 0, 0
		if pairs > 0 {
			u = int(s[si-3]) - 128
			v = int(s[si-1]) - 128
		}
		d[di] = clamp(y + (454*u)>>8)
		d[di+1] = clamp(y - (88*u+183*v)>>8)
		d[di+2] = clamp(y + (359*v)>>8)
		d[di+3] = 0xff
	}
	return nil
}

func clamp(x int) byte {
	if x < 0 {
		return 0
	}
	if x > 255 {
		return 255
	}
	return byte(x)
}
