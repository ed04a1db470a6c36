package session

import (
	"context"
	"testing"
	"time"

	"github.com/joeycumines/zmqcore/mailbox"
	"github.com/joeycumines/zmqcore/reactor"
	"github.com/joeycumines/zmqcore/wire"
	"github.com/stretchr/testify/require"
)

// onReactor dispatches fn to run on r's own goroutine and blocks until
// it has, by registering a one-shot CommandHandler and submitting a
// Command addressed to it — the same mechanism any cross-thread caller
// (a socket, a listener) uses to reach reactor-owned state.
func onReactor(t *testing.T, r *reactor.Reactor, fn func()) {
	t.Helper()
	done := make(chan struct{})
	h := r.Register(onReactorFunc(func() {
		fn()
		close(done)
	}))
	r.Submit(mailbox.Command{Type: mailbox.Attach, Dest: reactor.HandleToDest(h)})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("onReactor: dispatch timed out")
	}
	r.Unregister(h)
}

type onReactorFunc func()

func (f onReactorFunc) HandleCommand(mailbox.Command) { f() }

func runReactor(t *testing.T, r *reactor.Reactor) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)
	return func() {
		cancel()
		require.NoError(t, <-errCh)
	}
}

// TestSession_EndToEndLoopback plugs two Engines onto either end of a
// connected socketpair, each owned by its own Reactor, and pushes
// messages across both directions — exercising the full greeting
// handshake, Decoder/Encoder framing, and Pipe flow-control path
// together.
func TestSession_EndToEndLoopback(t *testing.T) {
	connA, connB := newSocketpair(t)

	rA, err := reactor.New()
	require.NoError(t, err)
	rB, err := reactor.New()
	require.NoError(t, err)
	defer runReactor(t, rA)()
	defer runReactor(t, rB)()

	toA, fromA := NewPair(100)
	sessA := NewSession(toA, fromA)
	engA := NewEngine(connA, wire.SocketPush, 0)

	toB, fromB := NewPair(100)
	sessB := NewSession(toB, fromB)
	engB := NewEngine(connB, wire.SocketPull, 0)

	onReactor(t, rA, func() { require.NoError(t, engA.Plug(sessA, rA)) })
	onReactor(t, rB, func() { require.NoError(t, engB.Plug(sessB, rB)) })

	require.Eventually(t, func() bool {
		return sessA.PeerType() == wire.SocketPull && sessB.PeerType() == wire.SocketPush
	}, time.Second, time.Millisecond, "greeting handshake must complete in both directions")

	require.True(t, fromA.Push(wire.New([]byte("hello"), 0)))

	var got *wire.Message
	require.Eventually(t, func() bool {
		got, _ = toB.Pop()
		return got != nil
	}, time.Second, time.Millisecond, "message pushed on A's outbound pipe must arrive on B's inbound pipe")
	require.Equal(t, "hello", string(got.Data()))

	require.True(t, fromB.Push(wire.New([]byte("world"), 0)))
	require.Eventually(t, func() bool {
		got, _ = toA.Pop()
		return got != nil
	}, time.Second, time.Millisecond)
	require.Equal(t, "world", string(got.Data()))
}

// TestSession_HighWaterMarkStallsAndRecovers pushes more messages than
// the receiving pipe's high-water mark allows in one burst, verifying
// none are lost: the sender keeps retrying (simulating a socket that
// retries a refused send) and they all eventually arrive once the
// consumer drains the pipe below its low-water mark and the engine's
// restart_input fires.
func TestSession_HighWaterMarkStallsAndRecovers(t *testing.T) {
	connA, connB := newSocketpair(t)

	rA, err := reactor.New()
	require.NoError(t, err)
	rB, err := reactor.New()
	require.NoError(t, err)
	defer runReactor(t, rA)()
	defer runReactor(t, rB)()

	toA, fromA := NewPair(100)
	sessA := NewSession(toA, fromA)
	engA := NewEngine(connA, wire.SocketPush, 0)

	toB, fromB := NewPair(4) // small HWM on the receiving side's inbound pipe
	sessB := NewSession(toB, fromB)
	engB := NewEngine(connB, wire.SocketPull, 0)

	onReactor(t, rA, func() { require.NoError(t, engA.Plug(sessA, rA)) })
	onReactor(t, rB, func() { require.NoError(t, engB.Plug(sessB, rB)) })

	require.Eventually(t, func() bool {
		return sessA.PeerType() == wire.SocketPull
	}, time.Second, time.Millisecond)

	const total = 50
	for i := 0; i < total; i++ {
		require.True(t, fromA.Push(wire.New([]byte{byte(i)}, 0)))
	}

	var received []byte
	require.Eventually(t, func() bool {
		for {
			msg, ok := toB.Pop()
			if !ok {
				break
			}
			received = append(received, msg.Data()[0])
		}
		return len(received) == total
	}, 2*time.Second, time.Millisecond, "all %d messages must eventually arrive despite the small HWM stalling the engine along the way", total)

	for i := 0; i < total; i++ {
		require.Equal(t, byte(i), received[i])
	}
}

// TestSession_TerminateDrainsQueuedOutgoing verifies the graceful half
// of Terminate: messages queued on the outgoing pipe when Terminate is
// called still reach the peer before the connection closes.
func TestSession_TerminateDrainsQueuedOutgoing(t *testing.T) {
	connA, connB := newSocketpair(t)

	rA, err := reactor.New()
	require.NoError(t, err)
	rB, err := reactor.New()
	require.NoError(t, err)
	defer runReactor(t, rA)()
	defer runReactor(t, rB)()

	toA, fromA := NewPair(100)
	sessA := NewSession(toA, fromA)
	engA := NewEngine(connA, wire.SocketPush, 0)

	toB, fromB := NewPair(100)
	sessB := NewSession(toB, fromB)
	engB := NewEngine(connB, wire.SocketPull, 0)

	onReactor(t, rA, func() { require.NoError(t, engA.Plug(sessA, rA)) })
	onReactor(t, rB, func() { require.NoError(t, engB.Plug(sessB, rB)) })

	require.Eventually(t, func() bool {
		return sessA.PeerType() == wire.SocketPull
	}, time.Second, time.Millisecond)

	const total = 20
	for i := 0; i < total; i++ {
		require.True(t, fromA.Push(wire.New([]byte{byte(i)}, 0)))
	}

	terminated := make(chan struct{})
	sessA.SetOnTerminated(func() { close(terminated) })
	onReactor(t, rA, sessA.Terminate)

	select {
	case <-terminated:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish terminating")
	}
	require.Equal(t, StateTerminated, sessA.State())

	var received []byte
	require.Eventually(t, func() bool {
		for {
			msg, ok := toB.Pop()
			if !ok {
				break
			}
			received = append(received, msg.Data()[0])
		}
		return len(received) == total
	}, 2*time.Second, time.Millisecond, "all queued messages must drain onto the wire before the connection closes")
	for i := 0; i < total; i++ {
		require.Equal(t, byte(i), received[i])
	}
}

// TestSession_NegativeLingerDropsQueuedOutgoing verifies the other
// half: SetLinger(-1) skips the drain and whatever was queued is
// released unsent.
func TestSession_NegativeLingerDropsQueuedOutgoing(t *testing.T) {
	connA, connB := newSocketpair(t)
	t.Cleanup(func() { _ = connB.Close() })

	rA, err := reactor.New()
	require.NoError(t, err)
	defer runReactor(t, rA)()

	toA, fromA := NewPair(100)
	sessA := NewSession(toA, fromA)
	sessA.SetLinger(-1)
	engA := NewEngine(connA, wire.SocketPush, 0)

	onReactor(t, rA, func() { require.NoError(t, engA.Plug(sessA, rA)) })

	for i := 0; i < 10; i++ {
		fromA.Push(wire.New([]byte{byte(i)}, 0))
	}

	onReactor(t, rA, sessA.Terminate)
	require.Equal(t, StateTerminated, sessA.State())
	require.Equal(t, 0, fromA.Len())
}

// TestSession_DisconnectKeepsDecodedInbound verifies that frames the
// engine already handed to the socket-facing pipe stay consumable
// after the peer drops the connection.
func TestSession_DisconnectKeepsDecodedInbound(t *testing.T) {
	connA, connB := newSocketpair(t)

	rA, err := reactor.New()
	require.NoError(t, err)
	rB, err := reactor.New()
	require.NoError(t, err)
	defer runReactor(t, rA)()
	defer runReactor(t, rB)()

	toA, fromA := NewPair(100)
	sessA := NewSession(toA, fromA)
	engA := NewEngine(connA, wire.SocketPush, 0)

	toB, fromB := NewPair(100)
	sessB := NewSession(toB, fromB)
	engB := NewEngine(connB, wire.SocketPull, 0)

	onReactor(t, rA, func() { require.NoError(t, engA.Plug(sessA, rA)) })
	onReactor(t, rB, func() { require.NoError(t, engB.Plug(sessB, rB)) })

	require.True(t, fromA.Push(wire.New([]byte("survivor"), 0)))
	require.Eventually(t, func() bool {
		return toB.Len() == 1
	}, time.Second, time.Millisecond)

	terminated := make(chan struct{})
	sessB.SetOnTerminated(func() { close(terminated) })
	onReactor(t, rA, sessA.Terminate)

	select {
	case <-terminated:
	case <-time.After(2 * time.Second):
		t.Fatal("B's session did not observe the disconnect")
	}

	msg, ok := toB.Pop()
	require.True(t, ok, "a decoded frame must survive its session's termination")
	require.Equal(t, "survivor", string(msg.Data()))
}

// TestSession_MalformedGreetingTerminatesSession verifies that a peer
// sending a bad signature fails the session it is connected to.
func TestSession_MalformedGreetingTerminatesSession(t *testing.T) {
	connA, connB := newSocketpair(t)
	t.Cleanup(func() { _ = connB.Close() })

	rA, err := reactor.New()
	require.NoError(t, err)
	defer runReactor(t, rA)()

	toA, fromA := NewPair(10)
	sessA := NewSession(toA, fromA)
	engA := NewEngine(connA, wire.SocketPush, 0)

	var terminated bool
	sessA.SetOnTerminated(func() { terminated = true })

	onReactor(t, rA, func() { require.NoError(t, engA.Plug(sessA, rA)) })

	// Send a bogus greeting directly over the raw fd, bypassing the
	// session package's own Engine/greeting logic on the B side.
	garbage := make([]byte, wire.GreetingLen)
	garbage[0] = 0xAB
	_, _ = connB.Write(garbage)

	require.Eventually(t, func() bool {
		return terminated
	}, time.Second, time.Millisecond, "a malformed greeting must terminate the session")
	require.Equal(t, StateTerminated, sessA.State())
}
