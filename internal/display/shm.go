package display

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/faith0x7dc/wl-camera-shm/internal/logging"
	"github.com/faith0x7dc/wl-camera-shm/internal/present"
	"github.com/faith0x7dc/wl-camera-shm/internal/wayland"
)

// shmBuffer is a wl_buffer backed by its own shared-memory file.
type shmBuffer struct {
	session   *Session
	id        uint32
	index     int
	width     int
	height    int
	data      []byte
	destroyed bool
}

// AllocateBuffer creates a width x height XRGB8888 buffer in a fresh
// shared-memory file and returns its mapping.
func (s *Session) AllocateBuffer(index, width, height, stride int) (present.Handle, []byte, error) {
	if s.closed {
		return nil, nil, wayland.ErrClosed
	}
	size := stride * height
	if width <= 0 || height <= 0 || stride < width*present.BytesPerPixel {
		return nil, nil, fmt.Errorf("display: bad buffer geometry %dx%d stride %d", width, height, stride)
	}

	fd, err := createShmFile(size)
	if err != nil {
		return nil, nil, err
	}
	defer unix.Close(fd)

	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, fmt.Errorf("display: mmap shm: %w", err)
	}

	pool := s.conn.NewID()
	id := s.conn.NewID()
	reqs := []*wayland.Message{
		wayland.NewRequest(s.shm, shmCreatePool).NewID(pool).FD(fd).Int(int32(size)),
		wayland.NewRequest(pool, shmPoolCreateBuffer).NewID(id).
			Int(0).Int(int32(width)).Int(int32(height)).Int(int32(stride)).Uint(shmFormatXRGB8888),
		// The buffer keeps the memory alive; the pool is not needed again.
		wayland.NewRequest(pool, shmPoolDestroy),
	}
	for _, m := range reqs {
		if err := s.conn.Send(m); err != nil {
			unix.Munmap(data)
			return nil, nil, err
		}
	}

	b := &shmBuffer{session: s, id: id, index: index, width: width, height: height, data: data}
	s.conn.SetHandler(id, b.handle)
	log.Debug("shm buffer created", logging.KeyBuffer, index, "id", id, "bytes", size)
	return b, data, nil
}

func (b *shmBuffer) handle(ev *wayland.Event) error {
	if ev.Opcode == bufferEventRelease && b.session.handler != nil {
		b.session.handler.BufferReleased(b.index)
	}
	return nil
}

// Destroy sends wl_buffer.destroy and unmaps the pixels.
func (b *shmBuffer) Destroy() error {
	if b.destroyed {
		return nil
	}
	b.destroyed = true

	var errs []error
	b.session.conn.Forget(b.id)
	err := b.session.conn.Send(wayland.NewRequest(b.id, bufferDestroy))
	if err != nil && !errors.Is(err, wayland.ErrClosed) {
		errs = append(errs, err)
	}
	if err := unix.Munmap(b.data); err != nil {
		errs = append(errs, fmt.Errorf("display: munmap buffer %d: %w", b.index, err))
	}
	b.data = nil
	return errors.Join(errs...)
}
