// Package zmqcore wires together the reactor/session/wire/transport/
// socket layers into a single public entry point: Context hosts a pool
// of reactor.Reactors and a shared transport.InprocRegistry, and
// NewSocket constructs one of the nine ZeroMQ socket patterns attached
// to one of them.
package zmqcore

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/joeycumines/zmqcore/reactor"
	"github.com/joeycumines/zmqcore/socket"
	"github.com/joeycumines/zmqcore/transport"
	"github.com/joeycumines/zmqcore/wire"
)

// Context owns a fixed pool of reactor.Reactors (one per worker,
// runtime.GOMAXPROCS(0) by default) and the single InprocRegistry they
// share for in-process rendezvous. It is the root object an application
// constructs once and builds every Socket from.
type Context struct {
	mu       sync.Mutex
	reactors []*reactor.Reactor
	stopFns  []func() error
	inproc   *transport.InprocRegistry
	cursor   atomic.Uint64
	sockets  []socket.Socket
	closed   bool
}

// NewContext starts the Context's reactor pool, one goroutine running
// Run per reactor, and returns without waiting for those loops to start.
func NewContext(opts ...Option) (*Context, error) {
	cfg := &options{numReactors: runtime.GOMAXPROCS(0), logger: zerolog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt.apply(cfg)
		}
	}
	if cfg.numReactors <= 0 {
		cfg.numReactors = 1
	}

	c := &Context{inproc: transport.NewInprocRegistry()}
	for i := 0; i < cfg.numReactors; i++ {
		r, err := reactor.New(reactor.WithLogger(cfg.logger))
		if err != nil {
			c.shutdownReactors()
			return nil, err
		}

		runCtx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- r.Run(runCtx) }()

		stop := func() error {
			// Stop, not cancel: the STOP command path drains whatever is
			// already queued in the reactor's mailbox before the loop
			// exits, and Run returns nil rather than context.Canceled.
			err := r.Stop(context.Background())
			cancel()
			if runErr := <-errCh; runErr != nil {
				return runErr
			}
			return err
		}
		c.reactors = append(c.reactors, r)
		c.stopFns = append(c.stopFns, stop)
	}
	return c, nil
}

func (c *Context) shutdownReactors() {
	for _, stop := range c.stopFns {
		_ = stop()
	}
}

// nextReactor round-robins across the Context's reactor pool, spreading
// sockets evenly across workers as they're created.
func (c *Context) nextReactor() *reactor.Reactor {
	n := uint64(len(c.reactors))
	idx := c.cursor.Add(1) - 1
	return c.reactors[idx%n]
}

// NewSocket constructs a Socket of typ, attached to one of the
// Context's reactors and sharing its InprocRegistry.
func (c *Context) NewSocket(typ wire.SocketType) (socket.Socket, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrTerminated
	}
	r := c.nextReactor()
	sock := socket.New(r, typ, c.inproc)
	c.sockets = append(c.sockets, sock)
	c.mu.Unlock()
	return sock, nil
}

// Term closes every Socket the Context has constructed and stops every
// reactor in its pool, blocking until all have finished. Idempotent;
// subsequent calls return nil immediately.
func (c *Context) Term() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sockets := append([]socket.Socket(nil), c.sockets...)
	c.sockets = nil
	c.mu.Unlock()

	for _, s := range sockets {
		_ = s.Close()
	}

	var firstErr error
	for _, stop := range c.stopFns {
		if err := stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
