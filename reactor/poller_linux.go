//go:build linux

package reactor

import "golang.org/x/sys/unix"

// readyBatch is the number of kernel events fetched per wait call.
const readyBatch = 128

// fdHandler is one registered descriptor: the callback to run and the
// event set it is currently armed for.
type fdHandler struct {
	fn    IOCallback
	armed IOEvents
}

// epollPoller is the Linux readiness multiplexer. It is deliberately
// not thread-safe: every method runs on the reactor's own goroutine
// (Reactor enforces the affinity), so the handler table is a plain map
// with no locking, and a wait's result set can never race a
// registration — the table only ever changes between polls, or from a
// callback the poll itself is dispatching. A callback that closes a
// descriptor and registers a new one reusing the same number mid-batch
// can at worst cause one spurious wakeup for the new registration,
// which every handler in this module tolerates (level-triggered model:
// re-check, find nothing ready, return).
type epollPoller struct {
	epfd     int
	open     bool
	handlers map[int]*fdHandler
	ready    [readyBatch]unix.EpollEvent
}

func newPoller() poller { return &epollPoller{} }

func (p *epollPoller) init() error {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	p.epfd = fd
	p.handlers = make(map[int]*fdHandler)
	p.open = true
	return nil
}

func (p *epollPoller) close() error {
	if !p.open {
		return nil
	}
	p.open = false
	p.handlers = nil
	return unix.Close(p.epfd)
}

// ctl is the single kernel-facing path shared by register, modify, and
// unregister: it translates the portable event set and issues the
// corresponding epoll_ctl op.
func (p *epollPoller) ctl(op, fd int, events IOEvents) error {
	if op == unix.EPOLL_CTL_DEL {
		return unix.EpollCtl(p.epfd, op, fd, nil)
	}
	ev := unix.EpollEvent{Fd: int32(fd)}
	if events&EventRead != 0 {
		ev.Events |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		ev.Events |= unix.EPOLLOUT
	}
	return unix.EpollCtl(p.epfd, op, fd, &ev)
}

func (p *epollPoller) registerFD(fd int, events IOEvents, cb IOCallback) error {
	if !p.open {
		return ErrPollerClosed
	}
	if _, dup := p.handlers[fd]; dup {
		return ErrFDAlreadyRegistered
	}
	if err := p.ctl(unix.EPOLL_CTL_ADD, fd, events); err != nil {
		return err
	}
	p.handlers[fd] = &fdHandler{fn: cb, armed: events}
	return nil
}

func (p *epollPoller) modifyFD(fd int, events IOEvents) error {
	if !p.open {
		return ErrPollerClosed
	}
	h := p.handlers[fd]
	if h == nil {
		return ErrFDNotRegistered
	}
	if h.armed == events {
		return nil
	}
	if err := p.ctl(unix.EPOLL_CTL_MOD, fd, events); err != nil {
		return err
	}
	h.armed = events
	return nil
}

func (p *epollPoller) unregisterFD(fd int) error {
	if !p.open {
		return ErrPollerClosed
	}
	if _, ok := p.handlers[fd]; !ok {
		return ErrFDNotRegistered
	}
	delete(p.handlers, fd)
	return p.ctl(unix.EPOLL_CTL_DEL, fd, 0)
}

func (p *epollPoller) pollIO(timeoutMs int) (int, error) {
	if !p.open {
		return 0, ErrPollerClosed
	}
	n, err := unix.EpollWait(p.epfd, p.ready[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	for i := 0; i < n; i++ {
		h := p.handlers[int(p.ready[i].Fd)]
		if h == nil {
			// Unregistered by an earlier callback in this same batch.
			continue
		}
		var got IOEvents
		if p.ready[i].Events&unix.EPOLLIN != 0 {
			got |= EventRead
		}
		if p.ready[i].Events&unix.EPOLLOUT != 0 {
			got |= EventWrite
		}
		if p.ready[i].Events&unix.EPOLLERR != 0 {
			got |= EventError
		}
		if p.ready[i].Events&unix.EPOLLHUP != 0 {
			got |= EventHangup
		}
		h.fn(got)
	}
	return n, nil
}
