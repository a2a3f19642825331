package capture

import (
	"errors"
	"fmt"
)

// Initialization failure reasons. An *InitError matches its reason with
// errors.Is.
var (
	ErrDeviceNotFound      = errors.New("device not found")
	ErrNotCharDevice       = errors.New("not a character device")
	ErrPermission          = errors.New("permission denied")
	ErrOpenFailed          = errors.New("cannot open device")
	ErrNotV4L2             = errors.New("not a V4L2 device")
	ErrNoCapture           = errors.New("video capture not supported")
	ErrNoStreaming         = errors.New("streaming I/O not supported")
	ErrNoFrameSize         = errors.New("no discrete YUYV frame size")
	ErrFormatRejected      = errors.New("YUYV format rejected")
	ErrMmapUnsupported     = errors.New("memory mapping not supported")
	ErrBufferRequest       = errors.New("buffer request failed")
	ErrInsufficientBuffers = errors.New("insufficient buffer memory")
	ErrMapFailed           = errors.New("buffer mapping failed")
)

// Runtime failures.
var (
	ErrTimedOut     = errors.New("capture: timed out waiting for frame")
	ErrBadIndex     = errors.New("capture: driver returned unknown buffer index")
	ErrNotStreaming = errors.New("capture: not streaming")
	ErrClosed       = errors.New("capture: pool closed")
)

// InitError is returned by Open. Everything acquired before the failure
// has already been released.
type InitError struct {
	Device string
	Reason error
	Err    error
}

func (e *InitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("capture: initialize %s: %v: %v", e.Device, e.Reason, e.Err)
	}
	return fmt.Sprintf("capture: initialize %s: %v", e.Device, e.Reason)
}

func (e *InitError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Err}
}

// CapacityError reports a filled buffer larger than the destination.
type CapacityError struct {
	Used     int
	Capacity int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("capture: frame of %d bytes exceeds destination capacity %d", e.Used, e.Capacity)
}
