package transport

import (
	"net"
	"strconv"

	"github.com/joeycumines/zmqcore/session"
	"golang.org/x/sys/unix"
)

// tcpConn adapts a raw, non-blocking socket descriptor to the
// session.Conn interface an Engine drives directly — the production
// counterpart of the session package's own fdConn test helper
// (session/fdconn_test.go), built on the same non-blocking-fd-plus-
// unix.Read/Write shape rather than net.Conn, so the fd can be armed
// with the reactor's epoll/kqueue poller.
type tcpConn struct{ fd int }

func (c *tcpConn) Fd() int { return c.fd }

func (c *tcpConn) Read(b []byte) (int, error) {
	n, err := unix.Read(c.fd, b)
	if err != nil {
		return 0, translateIOErr(err)
	}
	return n, nil
}

func (c *tcpConn) Write(b []byte) (int, error) {
	n, err := unix.Write(c.fd, b)
	if err != nil {
		return 0, translateIOErr(err)
	}
	return n, nil
}

func (c *tcpConn) Close() error { return unix.Close(c.fd) }

// translateIOErr maps the would-block/interrupted family of unix errno
// values onto session.ErrWouldBlock: an Engine's read/write loop treats
// that sentinel as "stop, wait for the next readiness callback", and
// EINTR should look the same to it as a spurious wakeup, not a retry
// loop of its own (the reactor's next tick supplies that).
func translateIOErr(err error) error {
	switch err {
	case unix.EAGAIN, unix.EINTR:
		return session.ErrWouldBlock
	default:
		return err
	}
}

var _ session.Conn = (*tcpConn)(nil)

// resolveSockaddr parses a "host:port" endpoint into a unix.Sockaddr
// plus the address family to pass to unix.Socket. IPv4 and IPv6 are
// both supported; an unqualified host resolves through the stdlib
// resolver exactly as net.Dial would (this is the one place net is used
// — for name resolution only, never for the socket itself).
func resolveSockaddr(endpoint string) (unix.Sockaddr, int, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return nil, 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, 0, err
	}

	if host == "" {
		host = "0.0.0.0"
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil {
			return nil, 0, err
		}
		ip = ips[0]
	}

	if v4 := ip.To4(); v4 != nil {
		var addr [4]byte
		copy(addr[:], v4)
		return &unix.SockaddrInet4{Port: port, Addr: addr}, unix.AF_INET, nil
	}
	var addr [16]byte
	copy(addr[:], ip.To16())
	return &unix.SockaddrInet6{Port: port, Addr: addr}, unix.AF_INET6, nil
}

// localAddrString renders the socket name fd is bound to as "host:port",
// used to report a listener's actual address after binding to port 0.
func localAddrString(fd int) (string, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return "", err
	}
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port)), nil
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port)), nil
	default:
		return "", errUnsupportedFamily
	}
}

var errUnsupportedFamily = unix.EAFNOSUPPORT
