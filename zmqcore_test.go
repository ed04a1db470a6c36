package zmqcore

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joeycumines/zmqcore/wire"
)

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestPushPull_TCPLoopback covers scenario S1: bind PULL on an
// ephemeral tcp:// port, connect PUSH, and check every message arrives
// in order.
func TestPushPull_TCPLoopback(t *testing.T) {
	c, err := NewContext()
	require.NoError(t, err)
	defer func() { require.NoError(t, c.Term()) }()

	pull, err := c.NewSocket(wire.SocketPull)
	require.NoError(t, err)
	require.NoError(t, pull.Bind("tcp://127.0.0.1:0"))
	require.NotEmpty(t, pull.Addr())

	push, err := c.NewSocket(wire.SocketPush)
	require.NoError(t, err)
	require.NoError(t, push.Connect("tcp://"+pull.Addr()))

	const n = 200
	ctx := testCtx(t)
	go func() {
		for i := uint64(0); i < n; i++ {
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, i)
			if err := push.Send(ctx, wire.New(buf, 0)); err != nil {
				return
			}
		}
	}()

	for i := uint64(0); i < n; i++ {
		msg, err := pull.Recv(ctx)
		require.NoError(t, err)
		require.Equal(t, i, binary.BigEndian.Uint64(msg.Data()))
	}
}

// TestPushPull_LargeFrame covers scenario S2: a multi-megabyte payload
// round-trips byte for byte over the tcp transport's zero-copy path.
func TestPushPull_LargeFrame(t *testing.T) {
	c, err := NewContext()
	require.NoError(t, err)
	defer func() { require.NoError(t, c.Term()) }()

	pull, err := c.NewSocket(wire.SocketPull)
	require.NoError(t, err)
	require.NoError(t, pull.Bind("tcp://127.0.0.1:0"))

	push, err := c.NewSocket(wire.SocketPush)
	require.NoError(t, err)
	require.NoError(t, push.Connect("tcp://"+pull.Addr()))

	payload := make([]byte, 2<<20)
	for i := range payload {
		payload[i] = 0xAB
	}

	ctx := testCtx(t)
	go func() { _ = push.Send(ctx, wire.New(payload, 0)) }()

	msg, err := pull.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, payload, msg.Data())
}

// TestPairMultiPart covers scenario S3: three frames linked by MORE
// arrive with the expected flags, over the inproc transport.
func TestPairMultiPart(t *testing.T) {
	c, err := NewContext()
	require.NoError(t, err)
	defer func() { require.NoError(t, c.Term()) }()

	a, err := c.NewSocket(wire.SocketPair)
	require.NoError(t, err)
	require.NoError(t, a.Bind("inproc://pair-multipart"))

	b, err := c.NewSocket(wire.SocketPair)
	require.NoError(t, err)
	require.NoError(t, b.Connect("inproc://pair-multipart"))

	ctx := testCtx(t)
	frames := [][]byte{[]byte("a"), []byte("bb"), []byte("ccc")}
	for i, f := range frames {
		var flags byte
		if i < len(frames)-1 {
			flags = wire.FlagMore
		}
		require.NoError(t, a.Send(ctx, wire.New(f, flags)))
	}

	wantMore := []bool{true, true, false}
	for i, f := range frames {
		msg, err := b.Recv(ctx)
		require.NoError(t, err)
		require.Equal(t, f, msg.Data())
		require.Equal(t, wantMore[i], msg.More())
	}
}

// TestConnect_BeforeBind_EstablishesAfterRetry covers scenario S4: a
// PUSH connecting to a not-yet-bound endpoint keeps retrying with
// backoff and delivers a message once the PULL side finally binds.
func TestConnect_BeforeBind_EstablishesAfterRetry(t *testing.T) {
	// Reserve an ephemeral port, then release it, so the first dial
	// attempts find nothing listening.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c, err := NewContext(WithReactors(1))
	require.NoError(t, err)
	defer func() { require.NoError(t, c.Term()) }()

	push, err := c.NewSocket(wire.SocketPush)
	require.NoError(t, err)
	require.NoError(t, push.Connect("tcp://"+addr))

	// Give the connector time to fail at least one attempt before the
	// endpoint exists.
	time.Sleep(50 * time.Millisecond)

	pull, err := c.NewSocket(wire.SocketPull)
	require.NoError(t, err)
	require.NoError(t, pull.Bind("tcp://"+addr))

	ctx := testCtx(t)
	go func() { _ = push.Send(ctx, wire.New([]byte("late"), 0)) }()

	msg, err := pull.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, "late", string(msg.Data()))
}

// TestTerm_DeliversInFlightMessages covers scenario S6: every message
// queued on the PUSH side when Term is called still reaches the PULL
// side — Term blocks until the sessions have drained onto the wire.
func TestTerm_DeliversInFlightMessages(t *testing.T) {
	pullSide, err := NewContext(WithReactors(1))
	require.NoError(t, err)
	defer func() { require.NoError(t, pullSide.Term()) }()
	pushSide, err := NewContext(WithReactors(1))
	require.NoError(t, err)

	pull, err := pullSide.NewSocket(wire.SocketPull)
	require.NoError(t, err)
	require.NoError(t, pull.Bind("tcp://127.0.0.1:0"))

	push, err := pushSide.NewSocket(wire.SocketPush)
	require.NoError(t, err)
	require.NoError(t, push.Connect("tcp://"+pull.Addr()))

	const n = 100
	ctx := testCtx(t)
	for i := uint64(0); i < n; i++ {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, i)
		require.NoError(t, push.Send(ctx, wire.New(buf, 0)))
	}

	// Term begins before anything guarantees the messages left the
	// push-side pipe; the linger drain is what makes this safe.
	require.NoError(t, pushSide.Term())

	for i := uint64(0); i < n; i++ {
		msg, err := pull.Recv(ctx)
		require.NoError(t, err)
		require.Equal(t, i, binary.BigEndian.Uint64(msg.Data()))
	}
}

// TestContext_TermStopsEverything checks Context-level termination: Term
// succeeds with a bound socket open, a second Term is a no-op, and the
// Context refuses to construct new sockets afterwards.
func TestContext_TermStopsEverything(t *testing.T) {
	c, err := NewContext(WithReactors(2))
	require.NoError(t, err)

	push, err := c.NewSocket(wire.SocketPush)
	require.NoError(t, err)
	require.NoError(t, push.Bind("inproc://term-test"))

	require.NoError(t, c.Term())
	require.NoError(t, c.Term()) // idempotent

	_, err = c.NewSocket(wire.SocketPull)
	require.ErrorIs(t, err, ErrTerminated)
}
