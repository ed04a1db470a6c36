// Package socket implements the nine ZeroMQ socket patterns (PAIR, PUB,
// SUB, REQ, REP, DEALER, ROUTER, PUSH, PULL) as collaborators sitting on
// top of session.Session/session.Engine and transport.Listener/
// transport.Connector/transport.InprocRegistry. These pattern internals
// are not the hardest part of the core — the reactor/session/wire
// packages are — but every pattern shares the same handling of engine
// attach and detach, read/write activation, pipe termination and term,
// which is what base centralizes. There is no hiccup handling.
package socket

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"sync"

	"github.com/joeycumines/zmqcore/mailbox"
	"github.com/joeycumines/zmqcore/reactor"
	"github.com/joeycumines/zmqcore/session"
	"github.com/joeycumines/zmqcore/transport"
	"github.com/joeycumines/zmqcore/wire"
)

// DefaultHWM mirrors session.DefaultHWM for sockets that don't
// otherwise configure one.
const DefaultHWM = session.DefaultHWM

// Socket is the public, user-facing operation set: bind/connect plus
// the application-level send/recv a pattern exposes.
// Engine attach/detach, read/write activation, pipe termination and term
// are internal to base and not part of this interface — a caller never invokes them directly, they arrive as
// Commands or Pipe callbacks.
type Socket interface {
	// Type reports the ZMTP socket-type byte this socket declares in
	// its connection greeting.
	Type() wire.SocketType
	// Bind accepts connections at endpoint ("tcp://host:port" or
	// "inproc://name").
	Bind(endpoint string) error
	// Connect actively opens a connection to endpoint.
	Connect(endpoint string) error
	// Send transmits one frame. Blocks (respecting ctx) per the
	// pattern's flow-control and state-machine rules.
	Send(ctx context.Context, msg *wire.Message) error
	// Recv receives one frame, blocking (respecting ctx) until one is
	// available.
	Recv(ctx context.Context) (*wire.Message, error)
	// SetHWM sets the high-water mark applied to Pipes created for
	// subsequently attached peers.
	SetHWM(hwm int)
	// Addr reports the address of this socket's first tcp:// listener,
	// with an ephemeral port resolved to the one actually bound. Empty
	// if Bind has not been called with a tcp:// endpoint.
	Addr() string
	// Close begins term(): tears down every attached peer and stops
	// accepting/dialing new ones. Blocks until complete.
	Close() error
}

// peer is one attached connection from this socket's point of view:
// toSocket carries inbound traffic (popped by this socket), fromSocket
// carries outbound traffic (pushed by this socket). identity is
// populated for every peer (not just ROUTER's) so Router.Send can look
// one up regardless of which pattern originally attached it.
type peer struct {
	toSocket   *session.Pipe
	fromSocket *session.Pipe
	identity   []byte
	// terminate begins the peer's Session teardown and arranges for done
	// to run once it completes — possibly much later than terminate
	// returns, since a graceful Session.Terminate drains queued messages
	// onto the wire first. Nil for inproc peers, which have no Session.
	terminate func(done func())
	// dead marks a peer whose Session has terminated. It can no longer
	// send or receive on the wire, but frames already decoded into
	// toSocket stay consumable, so the peer is only reaped (see
	// reapLocked) once that queue is empty. Guarded by base.mu.
	dead bool
}

// base centralizes everything the collaborator layer needs that isn't
// pattern-specific: peer bookkeeping, Bind/Connect endpoint dispatch
// across tcp/inproc, and the blocking-with-context Send/Recv wait
// mechanism every pattern's own Send/Recv builds on.
type base struct {
	mu   sync.Mutex
	cond *sync.Cond

	r      *reactor.Reactor
	handle reactor.Handle
	typ    wire.SocketType
	inproc *transport.InprocRegistry

	hwm        int
	maxMsgSize uint64

	peers      []*peer
	cursor     int
	listeners  []*transport.Listener
	connectors []*transport.Connector

	closed bool
}

func newBase(r *reactor.Reactor, typ wire.SocketType, inproc *transport.InprocRegistry) *base {
	b := &base{r: r, typ: typ, inproc: inproc, hwm: DefaultHWM}
	b.cond = sync.NewCond(&b.mu)
	b.handle = r.Register(b)
	return b
}

// Type implements Socket.
func (b *base) Type() wire.SocketType { return b.typ }

// SetHWM implements Socket.
func (b *base) SetHWM(hwm int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if hwm > 0 {
		b.hwm = hwm
	}
}

// Addr implements Socket.
func (b *base) Addr() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.listeners) == 0 {
		return ""
	}
	return b.listeners[0].Addr()
}

// runOnReactor dispatches fn to run on b.r's own goroutine and blocks
// until it completes, via the general-purpose mailbox.Invoke command —
// the production form of the onReactor helper every package's tests use
// ad hoc.
func (b *base) runOnReactor(fn func()) {
	done := make(chan struct{})
	b.r.Submit(mailbox.Command{
		Type:    mailbox.Invoke,
		Dest:    reactor.HandleToDest(b.handle),
		Payload: func() { fn(); close(done) },
	})
	<-done
}

// HandleCommand implements reactor.CommandHandler.
func (b *base) HandleCommand(cmd mailbox.Command) {
	switch cmd.Type {
	case mailbox.Invoke:
		if fn, ok := cmd.Payload.(func()); ok {
			fn()
		}
	case mailbox.Term:
		b.termLocked(nil)
	}
}

func newIdentity() []byte {
	id := make([]byte, 5)
	id[0] = 0 // 0x00 prefix marks a library-generated identity, per convention
	_, _ = rand.Read(id[1:])
	return id
}

// Bind implements Socket.Bind for the tcp/inproc schemes common to
// every pattern. Type-specific peer limits (PAIR's single peer) are
// enforced through allowNewPeer, which Bind consults for each incoming
// connection.
func (b *base) Bind(endpoint string, allowNewPeer func() error) error {
	scheme, rest, ok := strings.Cut(endpoint, "://")
	if !ok {
		return fmt.Errorf("socket: malformed endpoint %q", endpoint)
	}

	switch scheme {
	case "tcp":
		var bindErr error
		b.runOnReactor(func() {
			ln, err := transport.Listen(b.r, rest, func(conn session.Conn, _ int) {
				if allowNewPeer != nil {
					if err := allowNewPeer(); err != nil {
						_ = conn.Close()
						return
					}
				}
				b.attachEngine(conn, nil)
			})
			if err != nil {
				bindErr = err
				return
			}
			b.listeners = append(b.listeners, ln)
		})
		return bindErr

	case "inproc":
		return b.inproc.Bind(rest, func(in, out *session.Pipe) error {
			if allowNewPeer != nil {
				if err := allowNewPeer(); err != nil {
					return err
				}
			}
			b.runOnReactor(func() { b.addPeer(in, out, nil) })
			return nil
		})

	default:
		return ErrUnsupportedScheme
	}
}

// Connect implements Socket.Connect for tcp/inproc.
func (b *base) Connect(endpoint string, allowNewPeer func() error) error {
	scheme, rest, ok := strings.Cut(endpoint, "://")
	if !ok {
		return fmt.Errorf("socket: malformed endpoint %q", endpoint)
	}
	if allowNewPeer != nil {
		if err := allowNewPeer(); err != nil {
			return err
		}
	}

	switch scheme {
	case "tcp":
		b.runOnReactor(func() {
			var connector *transport.Connector
			connector = transport.Connect(b.r, rest, func(conn session.Conn, _ int) {
				b.attachEngine(conn, connector)
			}, transport.DefaultBackoffConfig())
			b.connectors = append(b.connectors, connector)
		})
		return nil

	case "inproc":
		in, out, err := b.inproc.Connect(rest, b.currentHWM())
		if err != nil {
			return err
		}
		b.runOnReactor(func() { b.addPeer(in, out, nil) })
		return nil

	default:
		return ErrUnsupportedScheme
	}
}

func (b *base) currentHWM() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hwm
}

// attachEngine runs on the reactor goroutine (called directly from a
// Listener/Connector accept callback, which always runs there): it
// builds the Pipe pair, Session, and Engine for a freshly accepted or
// dialed TCP connection and plugs them in. connector is non-nil only
// for the connecting side, so a dropped connection redials.
func (b *base) attachEngine(conn session.Conn, connector *transport.Connector) {
	toSock, fromSock := session.NewPair(b.currentHWM())
	sess := session.NewSession(toSock, fromSock)
	eng := session.NewEngine(conn, b.typ, b.maxMsgSize)
	if err := eng.Plug(sess, b.r); err != nil {
		_ = conn.Close()
		return
	}

	p := b.addPeer(toSock, fromSock, func(done func()) {
		sess.SetOnTerminated(done)
		sess.Terminate()
	})
	sess.SetOnTerminated(func() {
		b.peerDetached(p)
		if connector != nil {
			connector.Reconnect()
		}
	})
}

// addPeer registers a new peer's Pipes, wiring a wakeup into the
// socket's own cond var (composed with whatever the Engine already
// wired, per session.Pipe.SetCallbacks's chaining behaviour) so a
// blocked Send/Recv notices new data or freed space. Must run on the
// reactor goroutine.
func (b *base) addPeer(toSocket, fromSocket *session.Pipe, terminate func(done func())) *peer {
	p := &peer{toSocket: toSocket, fromSocket: fromSocket, identity: newIdentity(), terminate: terminate}
	toSocket.SetCallbacks(func() { b.broadcast() }, nil)
	fromSocket.SetCallbacks(nil, func() { b.broadcast() })
	toSocket.Attach()
	fromSocket.Attach()

	b.mu.Lock()
	b.peers = append(b.peers, p)
	b.mu.Unlock()
	b.broadcast()
	return p
}

// peerDetached handles a peer's Session reaching StateTerminated: the
// peer is marked dead and reaped immediately if its inbound queue is
// already empty, otherwise left for reapLocked so the socket can still
// drain what arrived before the disconnect.
func (b *base) peerDetached(p *peer) {
	b.mu.Lock()
	p.dead = true
	if p.toSocket.Len() == 0 {
		b.removePeerLocked(p)
	}
	b.mu.Unlock()
	b.broadcast()
}

// reapLocked removes every dead peer whose inbound queue has drained.
// Callers must hold b.mu.
func (b *base) reapLocked() {
	kept := b.peers[:0]
	for _, p := range b.peers {
		if p.dead && p.toSocket.Len() == 0 {
			p.toSocket.Close()
			continue
		}
		kept = append(kept, p)
	}
	b.peers = kept
}

func (b *base) removePeerLocked(p *peer) {
	for i, x := range b.peers {
		if x == p {
			b.peers = append(b.peers[:i], b.peers[i+1:]...)
			break
		}
	}
	p.toSocket.Close()
}

func (b *base) broadcast() {
	b.mu.Lock()
	b.cond.Broadcast()
	b.mu.Unlock()
}

// waitLocked blocks on the cond var until woken, returning an error if
// ctx is done or the socket has been closed meanwhile. Callers must
// hold b.mu.
func (b *base) waitLocked(ctx context.Context) error {
	if b.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, b.broadcast)
	defer stop()
	b.cond.Wait()
	if b.closed {
		return ErrClosed
	}
	return ctx.Err()
}

// pickAndPushLocked round-robins msg to the first peer (starting from
// the cursor) with room in its outbound Pipe, used by Push/Dealer.
func (b *base) pickAndPushLocked(msg *wire.Message) bool {
	n := len(b.peers)
	for i := 0; i < n; i++ {
		idx := (b.cursor + i) % n
		p := b.peers[idx]
		if p.fromSocket.Push(msg) {
			b.cursor = (idx + 1) % n
			return true
		}
	}
	return false
}

// pickAndPopLocked fair-queues across peers (starting from the cursor),
// used by Pull/Dealer/Sub.
func (b *base) pickAndPopLocked() (*wire.Message, bool) {
	n := len(b.peers)
	for i := 0; i < n; i++ {
		idx := (b.cursor + i) % n
		p := b.peers[idx]
		if msg, ok := p.toSocket.Pop(); ok {
			b.cursor = (idx + 1) % n
			return msg, true
		}
	}
	return nil, false
}

// pickAndPopWithPeerLocked is pickAndPopLocked's Router-flavoured
// sibling: it also reports which peer the frame came from, so Router
// can prepend the right identity.
func (b *base) pickAndPopWithPeerLocked() (*wire.Message, *peer, bool) {
	n := len(b.peers)
	for i := 0; i < n; i++ {
		idx := (b.cursor + i) % n
		p := b.peers[idx]
		if msg, ok := p.toSocket.Pop(); ok {
			b.cursor = (idx + 1) % n
			return msg, p, true
		}
	}
	return nil, nil, false
}

func (b *base) findPeerByIdentity(id []byte) *peer {
	for _, p := range b.peers {
		if string(p.identity) == string(id) {
			return p
		}
	}
	return nil
}

// Close implements Socket.Close. It blocks until every attached peer's
// Session has finished terminating — i.e. until queued outgoing
// messages have drained onto the wire or the Session's linger expired —
// which is what lets a Context.Term honor in-flight traffic.
func (b *base) Close() error {
	var wg sync.WaitGroup
	b.runOnReactor(func() { b.termLocked(&wg) })
	wg.Wait()
	return nil
}

// termLocked implements term(): stop accepting/dialing new peers and
// terminate every attached one, counting each Session's eventual
// completion against wg (nil means nobody is waiting). Runs on the
// reactor goroutine (either via HandleCommand's Term case or from
// Close's runOnReactor dispatch).
func (b *base) termLocked(wg *sync.WaitGroup) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	peersSnapshot := append([]*peer(nil), b.peers...)
	b.peers = nil
	b.mu.Unlock()
	b.cond.Broadcast()

	for _, ln := range b.listeners {
		_ = ln.Close()
	}
	for _, c := range b.connectors {
		c.Stop()
	}
	for _, p := range peersSnapshot {
		// The socket is closing: whatever this peer sent us that we
		// never read is dropped. Outbound draining is the Session's job,
		// started by terminate below.
		p.toSocket.Close()
		if p.terminate != nil {
			done := func() {}
			if wg != nil {
				wg.Add(1)
				done = wg.Done
			}
			p.terminate(done)
		} else {
			// Inproc peer: no Session to drain. Stop feeding the peer;
			// its reads keep working until it drains what's queued.
			p.fromSocket.BeginTerm()
		}
	}
	b.r.Unregister(b.handle)
}
