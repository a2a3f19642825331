//go:build linux

package display

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/faith0x7dc/wl-camera-shm/internal/logging"
)

// createShmFile returns an anonymous sealed memfd of size bytes.
func createShmFile(size int) (int, error) {
	fd, err := unix.MemfdCreate("wl-camera-shm", unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err != nil {
		return -1, fmt.Errorf("display: memfd_create: %w", err)
	}
	for {
		err = unix.Ftruncate(fd, int64(size))
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("display: size shm file: %w", err)
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_ADD_SEALS, unix.F_SEAL_SHRINK|unix.F_SEAL_SEAL); err != nil {
		log.Debug("shm seals not applied", logging.KeyError, err)
	}
	return fd, nil
}
