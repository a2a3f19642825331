package v4l2

import "testing"

func TestFourCCYUYV(t *testing.T) {
	if PixelFormatYUYV != 0x56595559 {
		t.Fatalf("YUYV fourcc = %#x, want 0x56595559", PixelFormatYUYV)
	}
	if got := FourCCString(PixelFormatYUYV); got != "YUYV" {
		t.Fatalf("FourCCString = %q, want YUYV", got)
	}
}

func TestCapabilityEffectivePrefersDeviceCaps(t *testing.T) {
	c := Capability{
		Capabilities: CapVideoCapture | CapStreaming | CapDeviceCaps,
		DeviceCaps:   CapVideoCapture,
	}
	if c.Has(CapStreaming) {
		t.Fatal("node without streaming in device caps should not report streaming")
	}
	if !c.Has(CapVideoCapture) {
		t.Fatal("expected capture capability")
	}

	legacy := Capability{Capabilities: CapVideoCapture | CapStreaming}
	if !legacy.Has(CapVideoCapture | CapStreaming) {
		t.Fatal("legacy caps should be used when device caps are absent")
	}
}

func TestCapabilityVersionString(t *testing.T) {
	c := Capability{Version: 6<<16 | 8<<8 | 12}
	if got := c.VersionString(); got != "6.8.12" {
		t.Fatalf("VersionString = %q, want 6.8.12", got)
	}
}

func TestFrameSizeString(t *testing.T) {
	d := FrameSize{Type: FrmsizeTypeDiscrete, Width: 640, Height: 480}
	if got := d.String(); got != "640x480" {
		t.Fatalf("discrete String = %q", got)
	}
	s := FrameSize{Type: FrmsizeTypeStepwise, MinWidth: 16, MinHeight: 16, MaxWidth: 1920, MaxHeight: 1080, StepWidth: 2, StepHeight: 2}
	if got := s.String(); got != "16x16-1920x1080 step 2/2" {
		t.Fatalf("stepwise String = %q", got)
	}
}

func TestCString(t *testing.T) {
	if got := cString([]byte{'u', 'v', 'c', 0, 'x'}); got != "uvc" {
		t.Fatalf("cString = %q, want uvc", got)
	}
}
