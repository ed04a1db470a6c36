package socket

import (
	"context"
	"testing"
	"time"

	"github.com/joeycumines/zmqcore/reactor"
	"github.com/joeycumines/zmqcore/transport"
	"github.com/stretchr/testify/require"
)

// startReactor mirrors the onReactor/runReactor helper pattern used
// throughout session/transport's tests: Bind/Connect/Send/Recv all
// dispatch onto the reactor's own goroutine internally (via
// base.runOnReactor or a Pipe callback), so a socket test just needs
// the reactor loop actually running in the background.
func startReactor(t *testing.T) (*reactor.Reactor, func()) {
	t.Helper()
	r, err := reactor.New()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)
	return r, func() {
		cancel()
		require.NoError(t, <-errCh)
	}
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newInprocRegistry() *transport.InprocRegistry { return transport.NewInprocRegistry() }
