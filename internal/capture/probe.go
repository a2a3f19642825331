package capture

import (
	"fmt"
	"io"

	"github.com/faith0x7dc/wl-camera-shm/internal/logging"
	"github.com/faith0x7dc/wl-camera-shm/internal/v4l2"
)

// FormatInfo is one pixel format together with its frame sizes.
type FormatInfo struct {
	v4l2.FormatDesc
	Sizes []v4l2.FrameSize
}

// DeviceInfo describes what a capture node offers.
type DeviceInfo struct {
	Path       string
	Capability v4l2.Capability
	Formats    []FormatInfo
}

// maxEnum bounds enumeration loops against drivers that never return EINVAL.
const maxEnum = 256

// Probe opens path, reads its capabilities and enumerates every capture
// format and frame size without changing the device configuration.
// Formats come from opts.ListFormats; when it refuses the node they are
// enumerated through the device's own ioctls.
func Probe(path string, opts Options) (*DeviceInfo, error) {
	opts = opts.withDefaults()
	dev, err := opts.Open(path)
	if err != nil {
		return nil, fmt.Errorf("capture: probe %s: %w", path, err)
	}
	defer dev.Close()

	caps, err := dev.QueryCapability()
	if err != nil {
		return nil, &InitError{Device: path, Reason: ErrNotV4L2, Err: err}
	}

	info := &DeviceInfo{Path: path, Capability: caps}
	if info.Formats, err = opts.ListFormats(path); err == nil {
		return info, nil
	}
	log.Debug("format listing failed, enumerating directly", logging.KeyDevice, path, logging.KeyError, err)
	info.Formats = enumerateFormats(dev)
	return info, nil
}

func enumerateFormats(dev Device) []FormatInfo {
	var formats []FormatInfo
	for i := 0; i < maxEnum; i++ {
		desc, err := dev.EnumFormat(i)
		if err != nil {
			break
		}
		fi := FormatInfo{FormatDesc: desc}
		for j := 0; j < maxEnum; j++ {
			size, err := dev.EnumFrameSize(j, desc.PixelFormat)
			if err != nil {
				break
			}
			fi.Sizes = append(fi.Sizes, size)
			if size.Type != v4l2.FrmsizeTypeDiscrete {
				break
			}
		}
		formats = append(formats, fi)
	}
	return formats
}

// Write renders the probe result in a human readable form.
func (d *DeviceInfo) Write(w io.Writer) error {
	c := d.Capability
	if _, err := fmt.Fprintf(w, "device:  %s\ndriver:  %s %s\ncard:    %s\nbus:     %s\ncaps:    %#08x\n",
		d.Path, c.Driver, c.VersionString(), c.Card, c.BusInfo, c.Effective()); err != nil {
		return err
	}
	fmt.Fprintf(w, "capture: %t\nstream:  %t\n", c.Has(v4l2.CapVideoCapture), c.Has(v4l2.CapStreaming))
	for _, f := range d.Formats {
		fmt.Fprintf(w, "format %d: %s (%s)\n", f.Index, v4l2.FourCCString(f.PixelFormat), f.Description)
		for _, s := range f.Sizes {
			fmt.Fprintf(w, "  %s\n", s)
		}
	}
	return nil
}
