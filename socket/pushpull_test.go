package socket

import (
	"fmt"
	"testing"

	"github.com/joeycumines/zmqcore/wire"
	"github.com/stretchr/testify/require"
)

func TestPushPull_RoundRobinFanOut(t *testing.T) {
	r, stop := startReactor(t)
	defer stop()
	reg := newInprocRegistry()

	push := New(r, wire.SocketPush, reg).(*Push)
	require.NoError(t, push.Bind("inproc://fanout"))

	const n = 3
	pulls := make([]*Pull, n)
	for i := range pulls {
		pulls[i] = New(r, wire.SocketPull, reg).(*Pull)
		require.NoError(t, pulls[i].Connect("inproc://fanout"))
	}

	ctx := testCtx(t)
	for i := 0; i < n; i++ {
		require.NoError(t, push.Send(ctx, wire.New([]byte(fmt.Sprintf("msg-%d", i)), 0)))
	}

	got := make(map[string]bool)
	for i := 0; i < n; i++ {
		msg, err := pulls[i].Recv(ctx)
		require.NoError(t, err)
		got[string(msg.Data())] = true
	}
	require.Len(t, got, n)
}

func TestPush_SendUnsupportedOnPull(t *testing.T) {
	r, stop := startReactor(t)
	defer stop()
	reg := newInprocRegistry()

	pull := New(r, wire.SocketPull, reg).(*Pull)
	require.ErrorIs(t, pull.Send(testCtx(t), wire.New(nil, 0)), ErrState)

	push := New(r, wire.SocketPush, reg).(*Push)
	_, err := push.Recv(testCtx(t))
	require.ErrorIs(t, err, ErrState)
}
