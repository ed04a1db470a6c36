package session

import (
	"sync"
	"time"

	"github.com/joeycumines/zmqcore/mailbox"
	"github.com/joeycumines/zmqcore/wire"
)

// State is a Session's position in its lifecycle.
type State int

const (
	StateActive State = iota
	StateDelayingReconnect
	StateTerminating
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateDelayingReconnect:
		return "DELAYING_RECONNECT"
	case StateTerminating:
		return "TERMINATING"
	case StateTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// outBatchSize bounds how many messages pullOutgoing drains from
// fromSocket at once, amortizing the pipe's lock acquisition across a
// run of messages instead of paying it per frame.
const outBatchSize = 64

// DefaultLinger bounds how long a graceful Terminate waits for
// fromSocket to drain through the Engine's encoder before giving up
// and dropping whatever remains — the Session-level analogue of
// ZMQ_LINGER. Open question resolved: the reference implementation
// defaults linger to "block forever"; this implementation bounds it
// instead, since an indefinite default would let one wedged peer hang
// a socket's Close forever with no recourse.
const DefaultLinger = 30 * time.Second

// Session owns at most one Engine and the pair of Pipes connecting it
// to a socket: toSocket carries messages the Engine decoded off the
// wire toward the socket side, fromSocket carries messages the socket
// wants sent, toward the Engine's Encoder. A Session never touches a
// transport directly — only its attached Engine does.
type Session struct {
	mu sync.Mutex

	state  State
	engine *Engine

	toSocket   *Pipe
	fromSocket *Pipe
	pendingOut []*wire.Message

	peerType     wire.SocketType
	onTerminated func()

	linger time.Duration
}

// NewSession constructs a Session over an already-created Pipe pair.
// toSocket carries engine->socket traffic, fromSocket carries
// socket->engine traffic.
func NewSession(toSocket, fromSocket *Pipe) *Session {
	return &Session{
		toSocket:   toSocket,
		fromSocket: fromSocket,
		state:      StateActive,
	}
}

// AttachEngine records e as this Session's active Engine. Called by
// Engine.Plug.
func (s *Session) AttachEngine(e *Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine = e
	if s.state == StateDelayingReconnect {
		s.state = StateActive
	}
}

// State reports the Session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PeerType reports the socket type the peer declared in its greeting,
// valid only once the handshake has completed.
func (s *Session) PeerType() wire.SocketType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerType
}

// SetOnTerminated composes fn with any already-installed callback —
// both the socket layer's reconnect/peer-removal bookkeeping and a
// term()-caller's own completion signal may need to observe the same
// Session — so every registered fn fires, in registration order,
// exactly once, when the Session reaches StateTerminated. If it already
// has, fn runs immediately.
func (s *Session) SetOnTerminated(fn func()) {
	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		if fn != nil {
			fn()
		}
		return
	}
	s.onTerminated = chainCallbacks(s.onTerminated, fn)
	s.mu.Unlock()
}

// SetLinger overrides DefaultLinger for this Session's Terminate. A
// negative value skips draining entirely: Terminate drops whatever is
// still queued and closes immediately.
func (s *Session) SetLinger(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.linger = d
}

// pushIncoming delivers a Message the Engine just decoded to the
// socket-facing pipe. A false return means the pipe is at its
// high-water mark and the Engine must stall its read side until
// RestartInput.
func (s *Session) pushIncoming(msg *wire.Message) bool {
	return s.toSocket.Push(msg)
}

// pullOutgoing is the Encoder's pull callback: it hands back the next
// outgoing Message, batch-draining fromSocket via PopBatch instead of
// locking it once per frame.
func (s *Session) pullOutgoing() (*wire.Message, bool) {
	if len(s.pendingOut) == 0 {
		s.pendingOut = s.fromSocket.PopBatch(outBatchSize)
		if len(s.pendingOut) == 0 {
			return nil, false
		}
	}
	msg := s.pendingOut[0]
	s.pendingOut = s.pendingOut[1:]
	return msg, true
}

func (s *Session) onHandshakeComplete(peerType wire.SocketType) {
	s.mu.Lock()
	s.peerType = peerType
	s.mu.Unlock()
}

// onEngineError is invoked by the Engine when its connection fails or
// the peer sends a malformed greeting. This tears down only this
// Session — other sessions sharing the reactor are unaffected.
func (s *Session) onEngineError(error) {
	s.Terminate()
}

// HandleCommand implements reactor.CommandHandler: PipeTerm begins the
// two-phase pipe-termination handshake, TermReq/Term drive the session
// itself down.
func (s *Session) HandleCommand(cmd mailbox.Command) {
	switch cmd.Type {
	case mailbox.PipeTerm, mailbox.TermReq, mailbox.Term:
		s.Terminate()
	}
}

// Terminate drives the Session to StateTerminated. With an Engine
// attached and a non-negative linger, termination is graceful: the
// outgoing pipe stops accepting new messages (BeginTerm) and whatever
// it already holds drains through the encoder onto the wire before the
// connection closes, bounded by the linger deadline. With no Engine, a
// negative linger, or an Engine that already failed, teardown is
// immediate and anything still queued is released unsent. Idempotent;
// StateTerminated (and the OnTerminated callbacks) is reached
// asynchronously when draining.
func (s *Session) Terminate() {
	s.mu.Lock()
	if s.state == StateTerminating || s.state == StateTerminated {
		s.mu.Unlock()
		return
	}
	s.state = StateTerminating
	eng := s.engine
	linger := s.linger
	s.mu.Unlock()
	if linger == 0 {
		linger = DefaultLinger
	}

	s.fromSocket.BeginTerm()
	if eng == nil || linger < 0 {
		if eng != nil {
			eng.Terminate()
		}
		s.finishTerminate()
		return
	}
	eng.DrainWithin(linger, func() {
		eng.Terminate()
		s.finishTerminate()
	})
}

func (s *Session) finishTerminate() {
	// Outbound: nothing more will reach the wire; release what's left.
	s.fromSocket.Close()
	// Inbound: frames the engine already decoded stay consumable by the
	// socket side — only new pushes are refused. The socket closes the
	// pipe once it has drained it, or when it itself closes.
	s.toSocket.BeginTerm()

	s.mu.Lock()
	s.state = StateTerminated
	cb := s.onTerminated
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
}
