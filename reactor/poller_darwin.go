//go:build darwin

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

// kqFilters maps the portable event bits onto kqueue's split
// per-filter registration model: unlike epoll's single event mask, a
// kqueue descriptor carries one kernel filter per direction.
var kqFilters = [...]struct {
	bit    IOEvents
	filter int16
}{
	{EventRead, unix.EVFILT_READ},
	{EventWrite, unix.EVFILT_WRITE},
}

// kqueuePoller is the Darwin readiness multiplexer. Like its Linux
// counterpart it is single-threaded by design — every method runs on
// the reactor's own goroutine, so the handler table is an unlocked
// map. Registration state changes are all expressed as one operation:
// a reconciliation from the descriptor's armed event set to the wanted
// one (register reconciles from nothing, unregister to nothing), which
// computes the per-filter kevent changelist in a single code path.
type kqueuePoller struct {
	kq       int
	open     bool
	handlers map[int]*fdHandler
	ready    [readyBatch]unix.Kevent_t
	staged   []unix.Kevent_t // scratch changelist, reused across calls
}

func newPoller() poller { return &kqueuePoller{} }

func (p *kqueuePoller) init() error {
	kq, err := unix.Kqueue()
	if err != nil {
		return err
	}
	p.kq = kq
	p.handlers = make(map[int]*fdHandler)
	p.open = true
	return nil
}

func (p *kqueuePoller) close() error {
	if !p.open {
		return nil
	}
	p.open = false
	p.handlers = nil
	return unix.Close(p.kq)
}

// reconcile stages and submits the kevent changes that move fd from
// the have event set to want. A no-op delta submits nothing.
func (p *kqueuePoller) reconcile(fd int, have, want IOEvents) error {
	p.staged = p.staged[:0]
	for _, f := range kqFilters {
		switch {
		case want&f.bit != 0 && have&f.bit == 0:
			p.staged = append(p.staged, unix.Kevent_t{
				Ident:  uint64(fd),
				Filter: f.filter,
				Flags:  unix.EV_ADD | unix.EV_ENABLE,
			})
		case want&f.bit == 0 && have&f.bit != 0:
			p.staged = append(p.staged, unix.Kevent_t{
				Ident:  uint64(fd),
				Filter: f.filter,
				Flags:  unix.EV_DELETE,
			})
		}
	}
	if len(p.staged) == 0 {
		return nil
	}
	_, err := unix.Kevent(p.kq, p.staged, nil, nil)
	return err
}

func (p *kqueuePoller) registerFD(fd int, events IOEvents, cb IOCallback) error {
	if !p.open {
		return ErrPollerClosed
	}
	if _, dup := p.handlers[fd]; dup {
		return ErrFDAlreadyRegistered
	}
	if err := p.reconcile(fd, 0, events); err != nil {
		return err
	}
	p.handlers[fd] = &fdHandler{fn: cb, armed: events}
	return nil
}

func (p *kqueuePoller) modifyFD(fd int, events IOEvents) error {
	if !p.open {
		return ErrPollerClosed
	}
	h := p.handlers[fd]
	if h == nil {
		return ErrFDNotRegistered
	}
	if err := p.reconcile(fd, h.armed, events); err != nil {
		return err
	}
	h.armed = events
	return nil
}

func (p *kqueuePoller) unregisterFD(fd int) error {
	if !p.open {
		return ErrPollerClosed
	}
	h := p.handlers[fd]
	if h == nil {
		return ErrFDNotRegistered
	}
	delete(p.handlers, fd)
	return p.reconcile(fd, h.armed, 0)
}

func (p *kqueuePoller) pollIO(timeoutMs int) (int, error) {
	if !p.open {
		return 0, ErrPollerClosed
	}
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMs) * int64(1_000_000))
		ts = &t
	}
	n, err := unix.Kevent(p.kq, nil, p.ready[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	for i := 0; i < n; i++ {
		h := p.handlers[int(p.ready[i].Ident)]
		if h == nil {
			// Unregistered by an earlier callback in this same batch.
			continue
		}
		var got IOEvents
		switch p.ready[i].Filter {
		case unix.EVFILT_READ:
			got = EventRead
		case unix.EVFILT_WRITE:
			got = EventWrite
		}
		if p.ready[i].Flags&unix.EV_EOF != 0 {
			got |= EventHangup
		}
		if p.ready[i].Flags&unix.EV_ERROR != 0 {
			got |= EventError
		}
		h.fn(got)
	}
	return n, nil
}
