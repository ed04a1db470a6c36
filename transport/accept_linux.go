//go:build linux

package transport

import "golang.org/x/sys/unix"

// acceptNonblock accepts one pending connection on fd, returning the new
// descriptor already in non-blocking, close-on-exec mode in a single
// syscall — mirrors signaler/pipe_linux.go's use of the *2 family of
// calls to fold flag-setting into socket creation on Linux.
func acceptNonblock(fd int) (int, error) {
	nfd, _, err := unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	return nfd, err
}
