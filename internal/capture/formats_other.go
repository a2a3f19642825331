//go:build !linux

package capture

import "github.com/faith0x7dc/wl-camera-shm/internal/v4l2"

func listFormats(string) ([]FormatInfo, error) {
	return nil, v4l2.ErrUnsupported
}
