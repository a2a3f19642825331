//go:build !linux

package display

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// createShmFile returns an unlinked temporary file of size bytes, placed
// in XDG_RUNTIME_DIR when set.
func createShmFile(size int) (int, error) {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, "wl-camera-shm-*")
	if err != nil {
		return -1, fmt.Errorf("display: create shm file: %w", err)
	}
	defer f.Close()
	os.Remove(f.Name())

	if err := f.Truncate(int64(size)); err != nil {
		return -1, fmt.Errorf("display: size shm file: %w", err)
	}
	fd, err := unix.Dup(int(f.Fd()))
	if err != nil {
		return -1, fmt.Errorf("display: dup shm file: %w", err)
	}
	unix.CloseOnExec(fd)
	return fd, nil
}
