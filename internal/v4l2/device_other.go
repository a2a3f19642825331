//go:build !linux || !(386 || arm || amd64 || arm64 || riscv64 || loong64 || s390x)

package v4l2

import (
	"os"
	"time"
)

type Device struct{}

func Open(path string) (*Device, error) {
	return nil, &os.PathError{Op: "open", Path: path, Err: ErrUnsupported}
}

func (d *Device) QueryCapability() (Capability, error)          { return Capability{}, ErrUnsupported }
func (d *Device) ResetCrop() error                              { return ErrUnsupported }
func (d *Device) EnumFormat(int) (FormatDesc, error)            { return FormatDesc{}, ErrUnsupported }
func (d *Device) EnumFrameSize(int, uint32) (FrameSize, error)  { return FrameSize{}, ErrUnsupported }
func (d *Device) SetFormat(_, _, _ uint32) (PixFormat, error)   { return PixFormat{}, ErrUnsupported }
func (d *Device) RequestBuffers(int) (int, error)               { return 0, ErrUnsupported }
func (d *Device) QueryBuffer(int) (BufferInfo, error)           { return BufferInfo{}, ErrUnsupported }
func (d *Device) Map(uint32, int) ([]byte, error)               { return nil, ErrUnsupported }
func (d *Device) Unmap([]byte) error                            { return ErrUnsupported }
func (d *Device) Queue(int) error                               { return ErrUnsupported }
func (d *Device) Dequeue() (int, int, error)                    { return 0, 0, ErrUnsupported }
func (d *Device) StreamOn() error                               { return ErrUnsupported }
func (d *Device) StreamOff() error                              { return ErrUnsupported }
func (d *Device) WaitReadable(time.Duration) (bool, error)      { return false, ErrUnsupported }
func (d *Device) Close() error                                  { return nil }
