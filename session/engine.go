package session

import (
	"errors"
	"io"
	"time"

	"github.com/joeycumines/zmqcore/mailbox"
	"github.com/joeycumines/zmqcore/reactor"
	"github.com/joeycumines/zmqcore/wire"
)

// ErrWouldBlock is returned by a Conn's Read or Write when the call
// could not complete without blocking the reactor goroutine. Any other
// non-nil error is treated as fatal to the connection.
var ErrWouldBlock = errors.New("session: operation would block")

// Conn is the non-blocking byte-stream handle an Engine drives. The
// transport package supplies concrete implementations over raw,
// non-blocking sockets; tests use an in-memory fake.
type Conn interface {
	Fd() int
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)
	Close() error
}

// maxIOItersPerTick bounds the greedy read/write drain loops so one
// very chatty connection can't starve the rest of the reactor's
// registered handles within a single readiness callback.
const maxIOItersPerTick = 64

// Engine drives the ZMTP greeting handshake and then the
// Decoder/Encoder state machines over a non-blocking Conn, translating
// socket readiness into Session-level message delivery and flow
// control. One Engine is plugged into exactly one Session and
// registered with exactly one reactor.Reactor for its lifetime.
type Engine struct {
	conn Conn
	r    *reactor.Reactor
	sess *Session

	handle     reactor.Handle
	socketType wire.SocketType
	dec        *wire.Decoder
	enc        *wire.Encoder

	greetOut    [wire.GreetingLen]byte
	greetOutPos int
	greetIn     [wire.GreetingLen]byte
	greetInPos  int

	readStalled  bool
	writeStalled bool
	terminated   bool

	// terminateOnDrain and onDrained implement the write half of a
	// graceful Session.Terminate: once set, writeReady finishes tearing
	// the engine down (via PipeTermAck, below) the moment the encoder
	// has nothing left to write, instead of serving read/write events
	// indefinitely.
	terminateOnDrain bool
	onDrained        func()

	// pendingIn holds decoded messages the session refused (its incoming
	// pipe was at the high-water mark); readReady delivers them before
	// reading anything new.
	pendingIn []*wire.Message
}

// NewEngine constructs an Engine for conn, declaring socketType in its
// outgoing greeting. maxMsgSize bounds incoming frame sizes (0 = unbounded).
func NewEngine(conn Conn, socketType wire.SocketType, maxMsgSize uint64) *Engine {
	e := &Engine{
		conn:       conn,
		socketType: socketType,
		dec:        wire.NewDecoder(maxMsgSize),
	}
	wire.EncodeGreeting(e.greetOut[:], socketType)
	return e
}

// Plug attaches the Engine to sess, wires the pipe readiness callbacks
// that drive restart_input/restart_output, and registers the
// connection's file descriptor with r. Must be called from r's own
// goroutine (the transport's accept/connect callback always runs
// there).
func (e *Engine) Plug(sess *Session, r *reactor.Reactor) error {
	e.sess = sess
	e.r = r
	e.enc = wire.NewEncoder(sess.pullOutgoing)
	e.handle = r.Register(e)

	sess.AttachEngine(e)
	// A Pipe's readiness callback can fire on any goroutine that calls
	// Push/Pop/PopBatch (the socket side, cross-thread); restart_input
	// and restart_output must run on the reactor's own goroutine, so the
	// callback only ever posts an ActivateRead/ActivateWrite Command
	// addressed to this Engine rather than calling it directly.
	sess.toSocket.SetCallbacks(nil, func() {
		r.Submit(mailbox.Command{Type: mailbox.ActivateRead, Dest: reactor.HandleToDest(e.handle)})
	})
	sess.fromSocket.SetCallbacks(func() {
		r.Submit(mailbox.Command{Type: mailbox.ActivateWrite, Dest: reactor.HandleToDest(e.handle)})
	}, nil)

	return r.RegisterFD(e.conn.Fd(), reactor.EventRead|reactor.EventWrite, e.onEvents)
}

// Handle returns the registry Handle this Engine was registered under,
// so a Dest can be constructed for cross-thread addressing.
func (e *Engine) Handle() reactor.Handle { return e.handle }

func (e *Engine) onEvents(events reactor.IOEvents) {
	if e.terminated {
		return
	}
	if events&reactor.EventWrite != 0 {
		e.writeReady()
	}
	if e.terminated {
		return
	}
	if events&reactor.EventRead != 0 {
		e.readReady()
	}
}

func (e *Engine) greetOutDone() bool { return e.greetOutPos >= len(e.greetOut) }
func (e *Engine) greetInDone() bool  { return e.greetInPos >= len(e.greetIn) }

func (e *Engine) readReady() {
	for len(e.pendingIn) > 0 {
		if !e.sess.pushIncoming(e.pendingIn[0]) {
			e.disableRead()
			return
		}
		e.pendingIn = e.pendingIn[1:]
	}
	for i := 0; i < maxIOItersPerTick; i++ {
		if !e.greetInDone() {
			if !e.readGreeting() {
				return
			}
			continue
		}

		buf := e.dec.GetBuffer()
		n, err := e.conn.Read(buf)
		if err != nil {
			if errors.Is(err, ErrWouldBlock) {
				return
			}
			e.fail(err)
			return
		}
		if n == 0 {
			e.fail(io.EOF)
			return
		}

		msgs, ferr := e.dec.Feed(n)
		for j, msg := range msgs {
			if !e.sess.pushIncoming(msg) {
				e.pendingIn = msgs[j:]
				e.disableRead()
				return
			}
		}
		if ferr != nil {
			e.fail(ferr)
			return
		}
	}
}

func (e *Engine) readGreeting() bool {
	n, err := e.conn.Read(e.greetIn[e.greetInPos:])
	if err != nil {
		if errors.Is(err, ErrWouldBlock) {
			return false
		}
		e.fail(err)
		return false
	}
	if n == 0 {
		e.fail(io.EOF)
		return false
	}
	e.greetInPos += n
	if e.greetInDone() {
		peerType, gerr := wire.DecodeGreeting(e.greetIn[:])
		if gerr != nil {
			// A malformed greeting is fatal only to this connection;
			// other sessions on the same reactor are unaffected.
			e.fail(gerr)
			return false
		}
		e.sess.onHandshakeComplete(peerType)
	}
	return true
}

func (e *Engine) writeReady() {
	for i := 0; i < maxIOItersPerTick; i++ {
		if !e.greetOutDone() {
			if !e.writeGreeting() {
				return
			}
			continue
		}

		buf, stalled := e.enc.GetBuffer()
		if stalled {
			if e.terminateOnDrain {
				e.terminateOnDrain = false
				// Deferred via the mailbox rather than called inline:
				// fn tears this Engine down, and doing that from deep
				// inside writeReady's own call stack would be a
				// same-object reentrancy hazard.
				e.r.Submit(mailbox.Command{Type: mailbox.PipeTermAck, Dest: reactor.HandleToDest(e.handle)})
				return
			}
			if !e.writeStalled {
				e.writeStalled = true
				_ = e.r.ModifyFD(e.conn.Fd(), e.currentEvents())
			}
			return
		}
		n, err := e.conn.Write(buf)
		if err != nil {
			if errors.Is(err, ErrWouldBlock) {
				return
			}
			e.fail(err)
			return
		}
		e.enc.Advance(n)
	}
}

func (e *Engine) writeGreeting() bool {
	n, err := e.conn.Write(e.greetOut[e.greetOutPos:])
	if err != nil {
		if errors.Is(err, ErrWouldBlock) {
			return false
		}
		e.fail(err)
		return false
	}
	e.greetOutPos += n
	return true
}

func (e *Engine) currentEvents() reactor.IOEvents {
	var ev reactor.IOEvents
	if !e.readStalled {
		ev |= reactor.EventRead
	}
	if !e.writeStalled {
		ev |= reactor.EventWrite
	}
	return ev
}

func (e *Engine) disableRead() {
	if e.readStalled || e.terminated {
		return
	}
	e.readStalled = true
	_ = e.r.ModifyFD(e.conn.Fd(), e.currentEvents())
}

// RestartInput re-arms read readiness after the session's incoming
// pipe has drained back below its low-water mark. Safe to call
// whether or not input was actually stalled.
func (e *Engine) RestartInput() {
	if e.terminated || !e.readStalled {
		return
	}
	e.readStalled = false
	_ = e.r.ModifyFD(e.conn.Fd(), e.currentEvents())
	e.readReady()
}

// RestartOutput re-arms write readiness and tries to pull + send
// immediately, after the session's outgoing pipe has received a
// message the encoder previously found nothing to pull.
func (e *Engine) RestartOutput() {
	if e.terminated {
		return
	}
	if e.writeStalled {
		e.writeStalled = false
		_ = e.r.ModifyFD(e.conn.Fd(), e.currentEvents())
	}
	e.writeReady()
}

func (e *Engine) fail(err error) {
	if e.terminated {
		return
	}
	e.terminated = true
	_ = e.r.UnregisterFD(e.conn.Fd())
	_ = e.conn.Close()
	e.r.Unregister(e.handle)
	// A failure mid-drain completes the drain: there is no wire left to
	// flush onto, and the drain's caller is still waiting on its callback.
	e.handlePipeTermAck()
	e.sess.onEngineError(err)
}

// BeginDrain arranges for fn to run once the encoder has nothing left
// to write — i.e. the Session's fromSocket pipe has been fully flushed
// onto the wire — instead of tearing the connection down immediately.
// This is the drain half of Session.Terminate's graceful shutdown: it
// lets messages already queued when term() was called actually reach
// the wire before the connection closes. fn always runs via a
// PIPE_TERM_ACK command posted once writeReady finds the encoder empty,
// even when nothing was queued; it runs synchronously only if the engine
// has already terminated. Reactor-thread only, same as the rest of Engine.
func (e *Engine) BeginDrain(fn func()) {
	if e.terminated {
		fn()
		return
	}
	e.onDrained = fn
	e.terminateOnDrain = true
	// RestartOutput rather than writeReady directly: the write side may
	// have stalled earlier (encoder had nothing to pull), in which case
	// EventWrite is disarmed and a WOULDBLOCK mid-drain would otherwise
	// never be followed by another writability callback.
	e.RestartOutput()
}

// DrainWithin runs fn exactly once, either when the encoder has flushed
// everything queued onto the wire or when linger has elapsed, whichever
// comes first. linger <= 0 means no deadline (drain indefinitely).
// Reactor-thread only.
func (e *Engine) DrainWithin(linger time.Duration, fn func()) {
	if e.terminated {
		fn()
		return
	}
	done := false
	var timerID reactor.TimerID
	hasTimer := false
	finish := func() {
		if done {
			return
		}
		done = true
		if hasTimer {
			_ = e.r.CancelTimer(timerID)
			hasTimer = false
		}
		fn()
	}
	if linger > 0 {
		if id, err := e.r.AddTimer(linger, finish); err == nil {
			timerID, hasTimer = id, true
		}
	}
	e.BeginDrain(finish)
}

// handlePipeTermAck implements the engine-local half of the
// PIPE_TERM_ACK handshake; see mailbox.PipeTermAck.
func (e *Engine) handlePipeTermAck() {
	fn := e.onDrained
	e.onDrained = nil
	if fn != nil {
		fn()
	}
}

// Terminate shuts the engine's connection down from the session side —
// an orderly close, not a transport failure.
func (e *Engine) Terminate() {
	if e.terminated {
		return
	}
	e.terminated = true
	_ = e.r.UnregisterFD(e.conn.Fd())
	_ = e.conn.Close()
	e.r.Unregister(e.handle)
}

// HandleCommand implements reactor.CommandHandler: ActivateRead/
// ActivateWrite restart a stalled direction (posted by a Pipe's
// readiness callback, always routed through here so the actual restart
// runs on the reactor's own goroutine); Term tears the connection down;
// PipeTermAck completes a BeginDrain that finished draining.
func (e *Engine) HandleCommand(cmd mailbox.Command) {
	switch cmd.Type {
	case mailbox.Term:
		e.Terminate()
	case mailbox.ActivateRead:
		e.RestartInput()
	case mailbox.ActivateWrite:
		e.RestartOutput()
	case mailbox.PipeTermAck:
		e.handlePipeTermAck()
	}
}
