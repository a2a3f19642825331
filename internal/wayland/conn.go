package wayland

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"github.com/faith0x7dc/wl-camera-shm/internal/logging"
)

var log = logging.L("wayland")

// DisplayID is the wl_display singleton every connection starts with.
const DisplayID uint32 = 1

// wl_display opcodes.
const (
	displaySync        = 0
	displayGetRegistry = 1

	displayEventError    = 0
	displayEventDeleteID = 1
)

const (
	readBufferSize = 4096
	// maxFDs is the most descriptors a single sendmsg may carry.
	maxFDs = 28
)

var (
	ErrNoRuntimeDir = errors.New("wayland: XDG_RUNTIME_DIR is not set")
	ErrClosed       = errors.New("wayland: connection closed")
)

// aLongTimeAgo unblocks a pending read when the context is cancelled.
var aLongTimeAgo = time.Unix(1, 0)

// Handler consumes events addressed to one object.
type Handler func(ev *Event) error

// Conn is a client connection to a compositor. It is not safe for
// concurrent use; the owning goroutine sends, flushes and dispatches.
type Conn struct {
	uc *net.UnixConn

	out    []byte
	outFDs []int

	in   []byte
	rbuf []byte
	oob  []byte

	handlers map[uint32]Handler
	nextID   uint32
	free     []uint32
	closed   bool
}

// SocketPath resolves the compositor socket from WAYLAND_DISPLAY and
// XDG_RUNTIME_DIR.
func SocketPath() (string, error) {
	name := os.Getenv("WAYLAND_DISPLAY")
	if name == "" {
		name = "wayland-0"
	}
	if filepath.IsAbs(name) {
		return name, nil
	}
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		return "", ErrNoRuntimeDir
	}
	return filepath.Join(dir, name), nil
}

// Dial connects to the compositor, preferring an inherited WAYLAND_SOCKET
// descriptor over the named socket.
func Dial() (*Conn, error) {
	if v := os.Getenv("WAYLAND_SOCKET"); v != "" {
		os.Unsetenv("WAYLAND_SOCKET")
		fd, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("wayland: bad WAYLAND_SOCKET %q: %w", v, err)
		}
		return FromFD(fd)
	}

	path, err := SocketPath()
	if err != nil {
		return nil, err
	}
	uc, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("wayland: connect %s: %w", path, err)
	}
	log.Debug("connected", "socket", path)
	return NewConn(uc), nil
}

// FromFD adopts an already connected socket descriptor.
func FromFD(fd int) (*Conn, error) {
	f := os.NewFile(uintptr(fd), "wayland-socket")
	if f == nil {
		return nil, fmt.Errorf("wayland: invalid socket fd %d", fd)
	}
	defer f.Close()
	c, err := net.FileConn(f)
	if err != nil {
		return nil, fmt.Errorf("wayland: adopt fd %d: %w", fd, err)
	}
	uc, ok := c.(*net.UnixConn)
	if !ok {
		c.Close()
		return nil, fmt.Errorf("wayland: fd %d is not a unix socket", fd)
	}
	return NewConn(uc), nil
}

// NewConn wraps a connected unix socket.
func NewConn(uc *net.UnixConn) *Conn {
	c := &Conn{
		uc:       uc,
		rbuf:     make([]byte, readBufferSize),
		oob:      make([]byte, unix.CmsgSpace(maxFDs*4)),
		handlers: make(map[uint32]Handler),
		nextID:   DisplayID,
	}
	c.handlers[DisplayID] = c.handleDisplay
	return c
}

// NewID allocates a client object id, reusing ids the compositor has
// confirmed deleted.
func (c *Conn) NewID() uint32 {
	if n := len(c.free); n > 0 {
		id := c.free[n-1]
		c.free = c.free[:n-1]
		return id
	}
	c.nextID++
	return c.nextID
}

// SetHandler routes events for id to h.
func (c *Conn) SetHandler(id uint32, h Handler) {
	c.handlers[id] = h
}

// Forget stops routing events to id. The id itself is recycled only once
// the compositor sends delete_id for it.
func (c *Conn) Forget(id uint32) {
	delete(c.handlers, id)
}

// GetRegistry sends wl_display.get_registry and returns the new id.
func (c *Conn) GetRegistry(h Handler) (uint32, error) {
	id := c.NewID()
	c.SetHandler(id, h)
	return id, c.Send(NewRequest(DisplayID, displayGetRegistry).NewID(id))
}

// Send queues m. Its descriptors are owned by the connection from here on.
func (c *Conn) Send(m *Message) error {
	if m.err != nil {
		m.closeFDs()
		return m.err
	}
	if c.closed {
		m.closeFDs()
		return ErrClosed
	}
	if len(c.outFDs)+len(m.fds) > maxFDs {
		if err := c.Flush(); err != nil {
			m.closeFDs()
			return err
		}
	}
	c.out = append(c.out, m.Bytes()...)
	c.outFDs = append(c.outFDs, m.fds...)
	m.fds = nil
	return nil
}

// Flush writes every queued request.
func (c *Conn) Flush() error {
	if c.closed {
		return ErrClosed
	}
	if len(c.out) == 0 {
		return nil
	}
	defer c.dropOutFDs()

	var oob []byte
	if len(c.outFDs) > 0 {
		oob = unix.UnixRights(c.outFDs...)
	}
	n, _, err := c.uc.WriteMsgUnix(c.out, oob, nil)
	if err != nil {
		c.out = c.out[:0]
		return fmt.Errorf("wayland: write: %w", err)
	}
	if n < len(c.out) {
		if _, err := c.uc.Write(c.out[n:]); err != nil {
			c.out = c.out[:0]
			return fmt.Errorf("wayland: write: %w", err)
		}
	}
	c.out = c.out[:0]
	return nil
}

func (c *Conn) dropOutFDs() {
	for _, fd := range c.outFDs {
		unix.Close(fd)
	}
	c.outFDs = c.outFDs[:0]
}

// Dispatch flushes, blocks until at least one event is available, then
// handles every complete event buffered. It returns ctx.Err() when
// cancelled while waiting and stops at the first handler error.
func (c *Conn) Dispatch(ctx context.Context) error {
	if err := c.Flush(); err != nil {
		return err
	}
	if !c.pending() {
		if err := c.read(ctx); err != nil {
			return err
		}
	}
	return c.dispatchPending()
}

// Roundtrip blocks until the compositor has processed every request sent
// so far and the resulting events were dispatched.
func (c *Conn) Roundtrip(ctx context.Context) error {
	done := false
	id := c.NewID()
	c.SetHandler(id, func(*Event) error {
		done = true
		return nil
	})
	if err := c.Send(NewRequest(DisplayID, displaySync).NewID(id)); err != nil {
		return err
	}
	for !done {
		if err := c.Dispatch(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (c *Conn) read(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.uc.SetReadDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() {
		c.uc.SetReadDeadline(aLongTimeAgo)
	})
	defer stop()

	for !c.pending() {
		n, oobn, _, _, err := c.uc.ReadMsgUnix(c.rbuf, c.oob)
		if oobn > 0 {
			closeReceived(c.oob[:oobn])
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("wayland: read: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("wayland: read: %w", io.EOF)
		}
		c.in = append(c.in, c.rbuf[:n]...)
	}
	return nil
}

// closeReceived closes descriptors the compositor attached; none of the
// events this client handles carry one.
func closeReceived(oob []byte) {
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return
	}
	for i := range msgs {
		fds, err := unix.ParseUnixRights(&msgs[i])
		if err != nil {
			continue
		}
		for _, fd := range fds {
			unix.Close(fd)
		}
	}
}

func (c *Conn) pending() bool {
	if len(c.in) < headerSize {
		return false
	}
	_, _, size := parseHeader(c.in)
	return len(c.in) >= size
}

func (c *Conn) dispatchPending() error {
	off := 0
	defer func() {
		c.in = append(c.in[:0], c.in[off:]...)
	}()

	for len(c.in)-off >= headerSize {
		sender, opcode, size := parseHeader(c.in[off:])
		if size < headerSize || size%4 != 0 {
			return fmt.Errorf("wayland: malformed message from object %d: size %d", sender, size)
		}
		if len(c.in)-off < size {
			return nil
		}
		ev := &Event{Sender: sender, Opcode: opcode, data: c.in[off+headerSize : off+size]}
		off += size

		h, ok := c.handlers[sender]
		if !ok {
			// Events racing a destroy request are expected.
			continue
		}
		if err := h(ev); err != nil {
			return err
		}
	}
	return nil
}

func (c *Conn) handleDisplay(ev *Event) error {
	switch ev.Opcode {
	case displayEventError:
		pe := &ProtocolError{ObjectID: ev.Object(), Code: ev.Uint(), Message: ev.Text()}
		if err := ev.Err(); err != nil {
			return err
		}
		return pe
	case displayEventDeleteID:
		id := ev.Uint()
		if err := ev.Err(); err != nil {
			return err
		}
		delete(c.handlers, id)
		c.free = append(c.free, id)
	}
	return nil
}

// Close flushes what it can and disconnects. It is safe to call more
// than once.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	flushErr := c.Flush()
	c.closed = true
	c.dropOutFDs()
	c.out = nil
	if err := c.uc.Close(); err != nil {
		return fmt.Errorf("wayland: close: %w", err)
	}
	if flushErr != nil && !errors.Is(flushErr, net.ErrClosed) {
		log.Debug("flush on close failed", logging.KeyError, flushErr)
	}
	return nil
}
