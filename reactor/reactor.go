package reactor

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/zmqcore/mailbox"
)

// CommandHandler is implemented by objects registered with a Reactor
// (sessions, engines, sockets) so the reactor can route a mailbox.Command
// addressed to them without knowing their concrete type.
type CommandHandler interface {
	HandleCommand(cmd mailbox.Command)
}

// Reactor is the single-threaded I/O event loop: one platform poller
// (epoll or kqueue), one Mailbox, one timer heap, and a registry of the
// pollable objects it owns. Submit, Register/Unregister/Resolve, and
// Run/Stop may be called from any goroutine; every other method,
// AddTimer and CancelTimer included, is only safe to call from the
// reactor's own goroutine; see RegisterFD.
type Reactor struct {
	opts *options

	state  *fastState
	mb     *mailbox.Mailbox
	poller poller
	timers *timers
	reg    *registry

	loopGoroutineID atomic.Uint64
	stopOnce        sync.Once
	done            chan struct{}
	runErr          error
}

// New constructs a Reactor with its own Mailbox and platform poller. The
// poller is not yet initialized; that happens on Run.
func New(opts ...Option) (*Reactor, error) {
	mb, err := mailbox.New()
	if err != nil {
		return nil, err
	}

	r := &Reactor{
		opts:   resolveOptions(opts),
		state:  newFastState(),
		mb:     mb,
		poller: newPoller(),
		timers: newTimers(),
		reg:    newRegistry(),
		done:   make(chan struct{}),
	}
	return r, nil
}

// Mailbox returns the Reactor's command queue, so other threads can
// Submit Commands (equivalently, call Submit directly).
func (r *Reactor) Mailbox() *mailbox.Mailbox { return r.mb }

// Submit enqueues cmd for dispatch on the reactor's own goroutine. Safe
// to call from any goroutine.
func (r *Reactor) Submit(cmd mailbox.Command) { r.mb.Send(cmd) }

// Register adds obj (expected to implement CommandHandler for anything
// addressed to it) to the reactor's registry and returns a Handle. The
// returned Handle can be encoded as a mailbox.Dest via HandleToDest so
// cross-thread Commands can address obj without holding a pointer to it.
func (r *Reactor) Register(obj any) Handle {
	return r.reg.register(obj)
}

// Unregister removes obj's registration. Subsequent resolution of h
// (directly or via a Command's Dest) fails.
func (r *Reactor) Unregister(h Handle) bool {
	return r.reg.unregister(h)
}

// Resolve looks up the object registered under h.
func (r *Reactor) Resolve(h Handle) (any, bool) {
	return r.reg.resolve(h)
}

// HandleToDest packs h into an opaque mailbox.Dest for Command addressing.
func HandleToDest(h Handle) mailbox.Dest {
	return mailbox.Dest(uint64(h.index)<<32 | uint64(h.generation))
}

func destToHandle(d mailbox.Dest) Handle {
	v := uint64(d)
	return Handle{index: uint32(v >> 32), generation: uint32(v)}
}

// isReactorThread reports whether the calling goroutine is the one
// running this Reactor's Run loop.
func (r *Reactor) isReactorThread() bool {
	id := r.loopGoroutineID.Load()
	return id != 0 && id == getGoroutineID()
}

// RegisterFD arms fd with the poller for the given readiness events.
// Must only be called from the reactor's own goroutine: a
// Session/Engine plugged into this Reactor calls this from inside its
// own Command/callback handling, which always runs on-thread.
func (r *Reactor) RegisterFD(fd int, events IOEvents, cb IOCallback) error {
	if !r.isReactorThread() {
		return ErrWrongThread
	}
	return r.poller.registerFD(fd, events, cb)
}

// UnregisterFD disarms fd. Reactor-thread only.
func (r *Reactor) UnregisterFD(fd int) error {
	if !r.isReactorThread() {
		return ErrWrongThread
	}
	return r.poller.unregisterFD(fd)
}

// ModifyFD changes the armed readiness events for fd. Reactor-thread only.
func (r *Reactor) ModifyFD(fd int, events IOEvents) error {
	if !r.isReactorThread() {
		return ErrWrongThread
	}
	return r.poller.modifyFD(fd, events)
}

// AddTimer schedules fn to run after delay, on the reactor's own
// goroutine. Reactor-thread only.
func (r *Reactor) AddTimer(delay time.Duration, fn func()) (TimerID, error) {
	if !r.isReactorThread() {
		return 0, ErrWrongThread
	}
	return r.timers.add(time.Now().Add(delay), fn), nil
}

// CancelTimer cancels a pending timer. Reactor-thread only.
func (r *Reactor) CancelTimer(id TimerID) error {
	if !r.isReactorThread() {
		return ErrWrongThread
	}
	r.timers.cancel(id)
	return nil
}

// Run initializes the poller and blocks, dispatching mailbox commands,
// firing timers, and polling I/O, until Stop is called or ctx is
// cancelled. It must not be called from the reactor's own goroutine
// (there is no such thing until Run starts) nor re-entered.
func (r *Reactor) Run(ctx context.Context) error {
	if r.isReactorThread() {
		return ErrReentrantRun
	}
	if !r.state.TryTransition(StateCreated, StateRunning) {
		switch r.state.Load() {
		case StateTerminated:
			return ErrTerminated
		default:
			return ErrAlreadyRunning
		}
	}

	if err := r.poller.init(); err != nil {
		r.state.Store(StateTerminated)
		close(r.done)
		return err
	}
	if err := r.poller.registerFD(r.mb.Signaler().FD(), EventRead, func(IOEvents) {
		// Edge already reflects "mailbox became non-empty"; the run
		// loop drains unconditionally every tick, so there is nothing
		// further to do here beyond having woken pollIO.
	}); err != nil {
		_ = r.poller.close()
		r.state.Store(StateTerminated)
		close(r.done)
		return err
	}

	r.loopGoroutineID.Store(getGoroutineID())
	defer r.loopGoroutineID.Store(0)

	ctxDone := make(chan struct{})
	defer close(ctxDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = r.mb.Signaler().Send()
		case <-ctxDone:
		}
	}()

	r.runLoop(ctx)

	r.state.Store(StateTerminated)
	_ = r.poller.unregisterFD(r.mb.Signaler().FD())
	_ = r.poller.close()
	// A Submit racing shutdown still enqueues; only its wakeup edge is
	// lost, which Mailbox.Send already treats as best-effort.
	_ = r.mb.Close()
	close(r.done)
	return r.runErr
}

func (r *Reactor) runLoop(ctx context.Context) {
	for {
		r.mb.DrainAll(r.dispatchCommand)

		if r.state.Load() == StateTerminating {
			return
		}
		if ctx.Err() != nil {
			// Cancellation is a clean shutdown request, same as Stop —
			// not a failure to report.
			return
		}

		timeoutMs := r.opts.maxPollMs
		if when, ok := r.timers.nextDeadline(); ok {
			d := int(time.Until(when).Milliseconds())
			if d < 0 {
				d = 0
			}
			if d < timeoutMs {
				timeoutMs = d
			}
		}

		r.state.TryTransition(StateRunning, StateSleeping)
		_, err := r.poller.pollIO(timeoutMs)
		r.state.TryTransition(StateSleeping, StateRunning)
		if err != nil {
			r.opts.logger.Error().Err(err).Msg("reactor: poll error")
			r.runErr = err
			return
		}

		r.timers.runExpired(time.Now(), r.safeExecute)
	}
}

// dispatchCommand routes a drained Command to its addressed object, or
// handles it directly if it is reactor-scoped (Stop).
func (r *Reactor) dispatchCommand(cmd mailbox.Command) {
	if cmd.Type == mailbox.Stop {
		r.state.TryTransition(StateRunning, StateTerminating)
		r.state.TryTransition(StateSleeping, StateTerminating)
		return
	}

	h := destToHandle(cmd.Dest)
	obj, ok := r.reg.resolve(h)
	if !ok {
		r.opts.logger.Warn().Stringer("type", cmd.Type).Msg("reactor: command addressed to unknown or stale handle")
		return
	}
	handler, ok := obj.(CommandHandler)
	if !ok {
		return
	}
	r.safeExecute(func() { handler.HandleCommand(cmd) })
}

// safeExecute runs fn with panic recovery, logging and discarding the
// panic rather than taking the whole reactor down.
func (r *Reactor) safeExecute(fn func()) {
	if fn == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.opts.logger.Error().Interface("panic", rec).Msg("reactor: task panicked")
		}
	}()
	fn()
}

// Stop requests an orderly shutdown: the run loop finishes dispatching
// whatever is already queued, then returns. Blocks until Run returns or
// ctx is cancelled.
func (r *Reactor) Stop(ctx context.Context) error {
	var err error
	r.stopOnce.Do(func() {
		for {
			cur := r.state.Load()
			if cur == StateTerminated || cur == StateTerminating {
				break
			}
			if cur == StateCreated {
				// CAS rather than Store: a concurrent Run may have just
				// moved Created->Running, in which case Run owns the
				// Terminated transition and the close(r.done) on its own
				// exit path — clobbering that here would double-close.
				if r.state.TryTransition(StateCreated, StateTerminated) {
					_ = r.mb.Close()
					close(r.done)
					return
				}
				continue
			}
			if r.state.TryTransition(cur, StateTerminating) {
				break
			}
		}
		r.mb.Send(mailbox.Command{Type: mailbox.Stop})
	})

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		err = ctx.Err()
	}
	return err
}

// getGoroutineID extracts the calling goroutine's numeric id by parsing
// its own stack trace header. Used only for the reactor-thread-affinity
// check; never for anything correctness-sensitive beyond that guard.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}
