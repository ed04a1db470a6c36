//go:build linux

package signaler

import "golang.org/x/sys/unix"

// newPipe creates a non-blocking, close-on-exec pipe in one syscall.
func newPipe() (r, w int, err error) {
	var fd [2]int
	if err := unix.Pipe2(fd[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return 0, 0, err
	}
	return fd[0], fd[1], nil
}
