// Package display owns the compositor connection for one window: global
// discovery, the toplevel surface, shared-memory buffers and event pumping.
package display

import (
	"context"
	"errors"
	"fmt"

	"github.com/faith0x7dc/wl-camera-shm/internal/logging"
	"github.com/faith0x7dc/wl-camera-shm/internal/present"
	"github.com/faith0x7dc/wl-camera-shm/internal/wayland"
)

var log = logging.L("display")

var (
	// ErrMissingGlobal means the compositor lacks an interface the viewer
	// needs.
	ErrMissingGlobal = errors.New("display: required global not advertised")
	// ErrFormatUnsupported means wl_shm does not offer XRGB8888.
	ErrFormatUnsupported = errors.New("display: XRGB8888 shm format not supported")
	// ErrWindowClosed is returned by Dispatch when the user closed the window.
	ErrWindowClosed = errors.New("display: window closed")
)

type Options struct {
	Title string
	AppID string
}

type global struct {
	name    uint32
	version uint32
}

// Session is one window on one compositor connection.
type Session struct {
	conn *wayland.Conn
	opts Options

	globals map[string]global
	formats map[uint32]bool

	registry   uint32
	compositor uint32
	shm        uint32
	wmBase     uint32
	shell      uint32

	surface      uint32
	xdgSurface   uint32
	toplevel     uint32
	shellSurface uint32

	configured bool
	frameCB    uint32

	// handler is only set for the duration of a Dispatch call.
	handler present.EventHandler
	closed  bool
}

// Open connects to the compositor and maps a toplevel window. On error
// everything acquired so far is released.
func Open(ctx context.Context, opts Options) (*Session, error) {
	conn, err := wayland.Dial()
	if err != nil {
		return nil, err
	}
	return open(ctx, conn, opts)
}

func open(ctx context.Context, conn *wayland.Conn, opts Options) (*Session, error) {
	s := &Session{
		conn:    conn,
		opts:    opts,
		globals: make(map[string]global),
		formats: make(map[uint32]bool),
	}
	if err := s.init(ctx); err != nil {
		s.Close()
		return nil, err
	}
	log.Info("window mapped", "shell", s.shellName(), "title", opts.Title)
	return s, nil
}

func (s *Session) init(ctx context.Context) error {
	var err error
	if s.registry, err = s.conn.GetRegistry(s.handleRegistry); err != nil {
		return err
	}
	if err := s.conn.Roundtrip(ctx); err != nil {
		return fmt.Errorf("display: registry: %w", err)
	}
	if err := s.bindGlobals(); err != nil {
		return err
	}
	if err := s.conn.Roundtrip(ctx); err != nil {
		return fmt.Errorf("display: shm formats: %w", err)
	}
	if !s.formats[shmFormatXRGB8888] {
		return ErrFormatUnsupported
	}
	if err := s.createWindow(); err != nil {
		return err
	}
	for !s.configured {
		if err := s.conn.Dispatch(ctx); err != nil {
			return fmt.Errorf("display: waiting for configure: %w", err)
		}
	}
	return s.conn.Flush()
}

func (s *Session) handleRegistry(ev *wayland.Event) error {
	switch ev.Opcode {
	case registryEventGlobal:
		name, iface, version := ev.Uint(), ev.Text(), ev.Uint()
		if err := ev.Err(); err != nil {
			return err
		}
		s.globals[iface] = global{name: name, version: version}
	case registryEventGlobalRemove:
		name := ev.Uint()
		for iface, g := range s.globals {
			if g.name == name {
				delete(s.globals, iface)
			}
		}
	}
	return nil
}

func (s *Session) bind(iface string, maxVersion uint32, h wayland.Handler) (uint32, error) {
	g, ok := s.globals[iface]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingGlobal, iface)
	}
	version := min(g.version, maxVersion)
	id := s.conn.NewID()
	if h != nil {
		s.conn.SetHandler(id, h)
	}
	req := wayland.NewRequest(s.registry, registryBind).Uint(g.name).String(iface).Uint(version).NewID(id)
	return id, s.conn.Send(req)
}

func (s *Session) bindGlobals() error {
	var err error
	if s.compositor, err = s.bind(ifaceCompositor, compositorVersion, nil); err != nil {
		return err
	}
	if s.shm, err = s.bind(ifaceShm, shmVersion, s.handleShm); err != nil {
		return err
	}
	if _, ok := s.globals[ifaceXdgWmBase]; ok {
		s.wmBase, err = s.bind(ifaceXdgWmBase, xdgWmBaseVersion, s.handleWmBase)
		return err
	}
	if _, ok := s.globals[ifaceShell]; ok {
		s.shell, err = s.bind(ifaceShell, shellVersion, nil)
		return err
	}
	return fmt.Errorf("%w: %s or %s", ErrMissingGlobal, ifaceXdgWmBase, ifaceShell)
}

func (s *Session) handleShm(ev *wayland.Event) error {
	if ev.Opcode == shmEventFormat {
		s.formats[ev.Uint()] = true
		return ev.Err()
	}
	return nil
}

func (s *Session) handleWmBase(ev *wayland.Event) error {
	if ev.Opcode != xdgWmBaseEventPing {
		return nil
	}
	serial := ev.Uint()
	if err := ev.Err(); err != nil {
		return err
	}
	return s.conn.Send(wayland.NewRequest(s.wmBase, xdgWmBasePong).Uint(serial))
}

func (s *Session) createWindow() error {
	s.surface = s.conn.NewID()
	if err := s.conn.Send(wayland.NewRequest(s.compositor, compositorCreateSurface).NewID(s.surface)); err != nil {
		return err
	}
	if s.wmBase != 0 {
		return s.createXdgToplevel()
	}
	return s.createShellSurface()
}

func (s *Session) createXdgToplevel() error {
	s.xdgSurface = s.conn.NewID()
	s.conn.SetHandler(s.xdgSurface, s.handleXdgSurface)
	s.toplevel = s.conn.NewID()
	s.conn.SetHandler(s.toplevel, s.handleToplevel)

	reqs := []*wayland.Message{
		wayland.NewRequest(s.wmBase, xdgWmBaseGetXdgSurface).NewID(s.xdgSurface).Object(s.surface),
		wayland.NewRequest(s.xdgSurface, xdgSurfaceGetToplevel).NewID(s.toplevel),
		wayland.NewRequest(s.toplevel, xdgToplevelSetTitle).String(s.opts.Title),
		wayland.NewRequest(s.toplevel, xdgToplevelSetAppID).String(s.opts.AppID),
		// The initial bufferless commit asks for the first configure.
		wayland.NewRequest(s.surface, surfaceCommit),
	}
	for _, m := range reqs {
		if err := s.conn.Send(m); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) createShellSurface() error {
	s.shellSurface = s.conn.NewID()
	s.conn.SetHandler(s.shellSurface, s.handleShellSurface)
	reqs := []*wayland.Message{
		wayland.NewRequest(s.shell, shellGetShellSurface).NewID(s.shellSurface).Object(s.surface),
		wayland.NewRequest(s.shellSurface, shellSurfaceSetToplevel),
		wayland.NewRequest(s.shellSurface, shellSurfaceSetTitle).String(s.opts.Title),
	}
	for _, m := range reqs {
		if err := s.conn.Send(m); err != nil {
			return err
		}
	}
	s.configured = true
	return nil
}

func (s *Session) handleXdgSurface(ev *wayland.Event) error {
	if ev.Opcode != xdgSurfaceEventConfigure {
		return nil
	}
	serial := ev.Uint()
	if err := ev.Err(); err != nil {
		return err
	}
	s.configured = true
	return s.conn.Send(wayland.NewRequest(s.xdgSurface, xdgSurfaceAckConfigure).Uint(serial))
}

func (s *Session) handleToplevel(ev *wayland.Event) error {
	switch ev.Opcode {
	case xdgToplevelEventConfigure:
		w, h := ev.Int(), ev.Int()
		log.Debug("toplevel configure", "width", w, "height", h)
	case xdgToplevelEventClose:
		log.Info("window close requested")
		return ErrWindowClosed
	}
	return nil
}

func (s *Session) handleShellSurface(ev *wayland.Event) error {
	if ev.Opcode != shellSurfaceEventPing {
		return nil
	}
	serial := ev.Uint()
	if err := ev.Err(); err != nil {
		return err
	}
	return s.conn.Send(wayland.NewRequest(s.shellSurface, shellSurfacePong).Uint(serial))
}

func (s *Session) shellName() string {
	if s.wmBase != 0 {
		return ifaceXdgWmBase
	}
	return ifaceShell
}

// Present attaches h to the window, damages all of it, asks for a frame
// callback and commits. The requests go out on the next Dispatch.
func (s *Session) Present(h present.Handle) error {
	b, ok := h.(*shmBuffer)
	if !ok || b.session != s {
		return fmt.Errorf("display: foreign buffer handle %T", h)
	}
	if b.destroyed {
		return fmt.Errorf("display: buffer %d already destroyed", b.index)
	}

	cb := s.conn.NewID()
	s.conn.SetHandler(cb, s.handleFrameDone)
	s.frameCB = cb

	reqs := []*wayland.Message{
		wayland.NewRequest(s.surface, surfaceAttach).Object(b.id).Int(0).Int(0),
		wayland.NewRequest(s.surface, surfaceDamage).Int(0).Int(0).Int(int32(b.width)).Int(int32(b.height)),
		wayland.NewRequest(s.surface, surfaceFrame).NewID(cb),
		wayland.NewRequest(s.surface, surfaceCommit),
	}
	for _, m := range reqs {
		if err := s.conn.Send(m); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) handleFrameDone(ev *wayland.Event) error {
	if ev.Opcode != callbackEventDone || ev.Sender != s.frameCB {
		return nil
	}
	s.frameCB = 0
	if s.handler == nil {
		return nil
	}
	return s.handler.Redraw()
}

// Dispatch runs one event-pump iteration: it flushes pending requests,
// waits for events and routes buffer releases and frame callbacks to h.
// Requests queued by h go out before Dispatch returns. A close request
// from the user ends it with ErrWindowClosed.
func (s *Session) Dispatch(ctx context.Context, h present.EventHandler) error {
	s.handler = h
	defer func() { s.handler = nil }()
	if err := s.conn.Dispatch(ctx); err != nil {
		return err
	}
	return s.conn.Flush()
}

// Close destroys the window objects and disconnects. It is safe to call
// more than once.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var reqs []*wayland.Message
	if s.toplevel != 0 {
		reqs = append(reqs, wayland.NewRequest(s.toplevel, xdgToplevelDestroy))
	}
	if s.xdgSurface != 0 {
		reqs = append(reqs, wayland.NewRequest(s.xdgSurface, xdgSurfaceDestroy))
	}
	if s.surface != 0 {
		reqs = append(reqs, wayland.NewRequest(s.surface, surfaceDestroy))
	}
	if s.wmBase != 0 {
		reqs = append(reqs, wayland.NewRequest(s.wmBase, xdgWmBaseDestroy))
	}
	for _, m := range reqs {
		if err := s.conn.Send(m); err != nil {
			log.Debug("teardown request not sent", logging.KeyError, err)
			break
		}
	}
	return s.conn.Close()
}
