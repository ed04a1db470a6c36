//go:build darwin

package transport

import "golang.org/x/sys/unix"

// acceptNonblock accepts one pending connection on fd and then applies
// close-on-exec and non-blocking flags individually, mirroring
// signaler/pipe_darwin.go's fallback for platforms without an atomic
// accept4(2).
func acceptNonblock(fd int) (int, error) {
	nfd, _, err := unix.Accept(fd)
	if err != nil {
		return 0, err
	}
	if _, err := unix.FcntlInt(uintptr(nfd), unix.F_SETFD, unix.FD_CLOEXEC); err != nil {
		_ = unix.Close(nfd)
		return 0, err
	}
	flags, err := unix.FcntlInt(uintptr(nfd), unix.F_GETFL, 0)
	if err != nil {
		_ = unix.Close(nfd)
		return 0, err
	}
	if _, err := unix.FcntlInt(uintptr(nfd), unix.F_SETFL, flags|unix.O_NONBLOCK); err != nil {
		_ = unix.Close(nfd)
		return 0, err
	}
	return nfd, nil
}
