//go:build darwin

package signaler

import "golang.org/x/sys/unix"

// newPipe creates a pipe and then applies close-on-exec and non-blocking
// flags to each end individually, since Darwin has no pipe2(2).
func newPipe() (r, w int, err error) {
	var fd [2]int
	if err := unix.Pipe(fd[:]); err != nil {
		return 0, 0, err
	}
	for _, f := range fd {
		if _, err := unix.FcntlInt(uintptr(f), unix.F_SETFD, unix.FD_CLOEXEC); err != nil {
			_ = unix.Close(fd[0])
			_ = unix.Close(fd[1])
			return 0, 0, err
		}
		flags, err := unix.FcntlInt(uintptr(f), unix.F_GETFL, 0)
		if err != nil {
			_ = unix.Close(fd[0])
			_ = unix.Close(fd[1])
			return 0, 0, err
		}
		if _, err := unix.FcntlInt(uintptr(f), unix.F_SETFL, flags|unix.O_NONBLOCK); err != nil {
			_ = unix.Close(fd[0])
			_ = unix.Close(fd[1])
			return 0, 0, err
		}
	}
	return fd[0], fd[1], nil
}
