package session

import (
	"testing"

	"golang.org/x/sys/unix"
)

// fdConn adapts a raw, non-blocking file descriptor to the Conn
// interface, for exercising Engine against a real fd (so it can be
// armed with the reactor's actual epoll/kqueue poller) without needing
// a live network listener.
type fdConn struct{ fd int }

func (c *fdConn) Fd() int { return c.fd }

func (c *fdConn) Read(b []byte) (int, error) {
	n, err := unix.Read(c.fd, b)
	if err == unix.EAGAIN {
		return 0, ErrWouldBlock
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (c *fdConn) Write(b []byte) (int, error) {
	n, err := unix.Write(c.fd, b)
	if err == unix.EAGAIN {
		return 0, ErrWouldBlock
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (c *fdConn) Close() error { return unix.Close(c.fd) }

// newSocketpair returns two connected, non-blocking Unix-domain stream
// sockets, as a realistic in-process duplex transport for tests.
func newSocketpair(t *testing.T) (a, b *fdConn) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			t.Fatalf("set nonblock: %v", err)
		}
	}
	return &fdConn{fd: fds[0]}, &fdConn{fd: fds[1]}
}
