package transport

import (
	"github.com/joeycumines/zmqcore/reactor"
	"github.com/joeycumines/zmqcore/session"
	"golang.org/x/sys/unix"
)

// listenBacklog is the pending-connection backlog passed to listen(2).
const listenBacklog = 128

// AcceptFunc is invoked, on the owning Reactor's own goroutine, once per
// freshly accepted connection. It is expected to construct a
// session.Session/session.Engine pair (typically via a socket's own
// connection-handling logic) and Plug the engine in.
type AcceptFunc func(conn session.Conn, remoteFd int)

// Listener accepts inbound TCP connections for one bound endpoint and
// hands each to an AcceptFunc, run on the reactor thread — the
// production counterpart of a socket's bind(endpoint). Registration
// with the reactor only ever happens from the reactor's own goroutine,
// so Listen itself must be invoked there (typically from a socket's
// Bind, dispatched via a Command as any other cross-thread request into
// a reactor is).
type Listener struct {
	fd     int
	r      *reactor.Reactor
	addr   string
	onConn AcceptFunc
	closed bool
}

// Listen creates a non-blocking TCP listening socket bound to endpoint
// ("host:port"; an empty host binds all interfaces, port 0 picks an
// ephemeral port), registers it for read-readiness with r, and arranges
// for onConn to be called once per accepted connection. Must be called
// from r's own goroutine.
func Listen(r *reactor.Reactor, endpoint string, onConn AcceptFunc) (*Listener, error) {
	sa, family, err := resolveSockaddr(endpoint)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)

	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	actual, err := localAddrString(fd)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	l := &Listener{fd: fd, r: r, addr: actual, onConn: onConn}
	if err := r.RegisterFD(fd, reactor.EventRead, l.onReadable); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	return l, nil
}

// Addr reports the endpoint actually bound, with an ephemeral port
// resolved to its assigned value.
func (l *Listener) Addr() string { return l.addr }

func (l *Listener) onReadable(reactor.IOEvents) {
	for {
		nfd, err := acceptNonblock(l.fd)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			if err == unix.EINTR {
				continue
			}
			// A transient accept failure (e.g. ECONNABORTED from a peer
			// that reset before the handshake completed) does not tear
			// the listener down; keep serving subsequent connections.
			return
		}
		l.onConn(&tcpConn{fd: nfd}, nfd)
	}
}

// Close unregisters and closes the listening socket. Must be called
// from the reactor's own goroutine, mirroring RegisterFD's affinity
// requirement.
func (l *Listener) Close() error {
	if l.closed {
		return ErrClosed
	}
	l.closed = true
	_ = l.r.UnregisterFD(l.fd)
	return unix.Close(l.fd)
}
