//go:build linux

package capture

import (
	"fmt"
	"sort"

	"github.com/blackjack/webcam"

	"github.com/faith0x7dc/wl-camera-shm/internal/v4l2"
)

// listFormats enumerates capture formats and frame sizes through
// blackjack/webcam. It refuses nodes without streaming capture.
func listFormats(path string) ([]FormatInfo, error) {
	cam, err := webcam.Open(path)
	if err != nil {
		return nil, fmt.Errorf("capture: list formats %s: %w", path, err)
	}
	defer cam.Close()
	return webcamFormats(cam.GetSupportedFormats(), cam.GetSupportedFrameSizes), nil
}

// webcamFormats converts the webcam format map into index-ordered
// FormatInfo values. The map carries no driver index, so formats are
// numbered by ascending fourcc.
func webcamFormats(formats map[webcam.PixelFormat]string, sizes func(webcam.PixelFormat) []webcam.FrameSize) []FormatInfo {
	codes := make([]webcam.PixelFormat, 0, len(formats))
	for pf := range formats {
		codes = append(codes, pf)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })

	out := make([]FormatInfo, 0, len(codes))
	for i, pf := range codes {
		fi := FormatInfo{FormatDesc: v4l2.FormatDesc{
			Index:       i,
			PixelFormat: uint32(pf),
			Description: formats[pf],
		}}
		for j, s := range sizes(pf) {
			fi.Sizes = append(fi.Sizes, frameSizeFromWebcam(j, uint32(pf), s))
		}
		out = append(out, fi)
	}
	return out
}

func frameSizeFromWebcam(index int, pf uint32, s webcam.FrameSize) v4l2.FrameSize {
	fs := v4l2.FrameSize{Index: index, PixelFormat: pf}
	if s.MinWidth == s.MaxWidth && s.MinHeight == s.MaxHeight && s.StepWidth == 0 && s.StepHeight == 0 {
		fs.Type = v4l2.FrmsizeTypeDiscrete
		fs.Width, fs.Height = s.MaxWidth, s.MaxHeight
		return fs
	}
	fs.Type = v4l2.FrmsizeTypeStepwise
	if s.StepWidth == 1 && s.StepHeight == 1 {
		fs.Type = v4l2.FrmsizeTypeContinuous
	}
	fs.MinWidth, fs.MaxWidth, fs.StepWidth = s.MinWidth, s.MaxWidth, s.StepWidth
	fs.MinHeight, fs.MaxHeight, fs.StepHeight = s.MinHeight, s.MaxHeight, s.StepHeight
	return fs
}
