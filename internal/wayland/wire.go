// Package wayland is a small Wayland client: wire-format marshalling,
// object id bookkeeping and event dispatch over the compositor socket.
// Interface-specific requests are built by callers with NewRequest.
package wayland

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

const headerSize = 8

var order = binary.NativeEndian

// ErrShortEvent is returned when an event carries fewer bytes than its
// signature needs.
var ErrShortEvent = errors.New("wayland: event truncated")

// ProtocolError is the fatal wl_display.error event.
type ProtocolError struct {
	ObjectID uint32
	Code     uint32
	Message  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("wayland: protocol error on object %d (code %d): %s", e.ObjectID, e.Code, e.Message)
}

// Message is one outgoing request.
type Message struct {
	sender uint32
	opcode uint16
	args   []byte
	fds    []int
	err    error
}

// NewRequest starts a request from object sender.
func NewRequest(sender uint32, opcode uint16) *Message {
	return &Message{sender: sender, opcode: opcode}
}

func (m *Message) Uint(v uint32) *Message {
	m.args = order.AppendUint32(m.args, v)
	return m
}

func (m *Message) Int(v int32) *Message {
	return m.Uint(uint32(v))
}

// Object appends an object reference; 0 is the null object.
func (m *Message) Object(id uint32) *Message {
	return m.Uint(id)
}

func (m *Message) NewID(id uint32) *Message {
	return m.Uint(id)
}

// String appends a NUL-terminated, 32-bit padded string.
func (m *Message) String(s string) *Message {
	m.Uint(uint32(len(s) + 1))
	m.args = append(m.args, s...)
	m.args = append(m.args, 0)
	m.pad()
	return m
}

func (m *Message) Array(b []byte) *Message {
	m.Uint(uint32(len(b)))
	m.args = append(m.args, b...)
	m.pad()
	return m
}

// FD attaches a duplicate of fd; the caller keeps ownership of fd itself.
func (m *Message) FD(fd int) *Message {
	dup, err := unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		m.err = fmt.Errorf("wayland: dup fd %d: %w", fd, err)
		return m
	}
	m.fds = append(m.fds, dup)
	return m
}

func (m *Message) pad() {
	for len(m.args)%4 != 0 {
		m.args = append(m.args, 0)
	}
}

// Bytes returns the wire encoding: header followed by arguments.
func (m *Message) Bytes() []byte {
	size := headerSize + len(m.args)
	b := make([]byte, 0, size)
	b = order.AppendUint32(b, m.sender)
	b = order.AppendUint32(b, uint32(size)<<16|uint32(m.opcode))
	return append(b, m.args...)
}

func (m *Message) closeFDs() {
	for _, fd := range m.fds {
		unix.Close(fd)
	}
	m.fds = nil
}

// Event is one incoming event. Readers consume arguments in signature
// order; the first short read sticks and is reported by Err.
type Event struct {
	Sender uint32
	Opcode uint16
	data   []byte
	off    int
	err    error
}

func (e *Event) Uint() uint32 {
	if e.err != nil {
		return 0
	}
	if e.off+4 > len(e.data) {
		e.err = ErrShortEvent
		return 0
	}
	v := order.Uint32(e.data[e.off:])
	e.off += 4
	return v
}

func (e *Event) Int() int32 {
	return int32(e.Uint())
}

func (e *Event) Object() uint32 {
	return e.Uint()
}

// Text reads a string argument.
func (e *Event) Text() string {
	n := int(e.Uint())
	if e.err != nil || n == 0 {
		return ""
	}
	padded := (n + 3) &^ 3
	if e.off+padded > len(e.data) {
		e.err = ErrShortEvent
		return ""
	}
	s := string(e.data[e.off : e.off+n-1])
	e.off += padded
	return s
}

// Array reads an array argument into a fresh slice.
func (e *Event) Array() []byte {
	n := int(e.Uint())
	if e.err != nil {
		return nil
	}
	padded := (n + 3) &^ 3
	if e.off+padded > len(e.data) {
		e.err = ErrShortEvent
		return nil
	}
	out := make([]byte, n)
	copy(out, e.data[e.off:e.off+n])
	e.off += padded
	return out
}

func (e *Event) Err() error {
	if e.err != nil {
		return fmt.Errorf("wayland: object %d event %d: %w", e.Sender, e.Opcode, e.err)
	}
	return nil
}

// parseHeader decodes the 8-byte message header.
func parseHeader(b []byte) (sender uint32, opcode uint16, size int) {
	sender = order.Uint32(b)
	word := order.Uint32(b[4:])
	return sender, uint16(word & 0xffff), int(word >> 16)
}
