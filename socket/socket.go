package socket

import (
	"context"

	"github.com/joeycumines/zmqcore/reactor"
	"github.com/joeycumines/zmqcore/transport"
	"github.com/joeycumines/zmqcore/wire"
)

// New constructs a Socket of typ, attached to r for its I/O and sharing
// inproc for in-process rendezvous. This is the one constructor every
// concrete pattern type wraps; the root zmqcore package is the only
// expected caller outside this package's own tests.
func New(r *reactor.Reactor, typ wire.SocketType, inproc *transport.InprocRegistry) Socket {
	b := newBase(r, typ, inproc)
	switch typ {
	case wire.SocketPair:
		return &Pair{base: b}
	case wire.SocketPush:
		return &Push{base: b}
	case wire.SocketPull:
		return &Pull{base: b}
	case wire.SocketPub:
		return &Pub{base: b}
	case wire.SocketSub:
		return &Sub{base: b}
	case wire.SocketReq:
		return &Req{base: b}
	case wire.SocketRep:
		return &Rep{base: b}
	case wire.SocketDealer:
		return &Dealer{base: b}
	case wire.SocketRouter:
		return &Router{base: b}
	default:
		return &Pair{base: b}
	}
}

// noopAllow is the allowNewPeer hook for patterns that accept an
// unbounded number of peers.
func noopAllow() error { return nil }

// waitReady is the common Send/Recv blocking idiom every pattern uses:
// hold b.mu, loop while ready() is false, waiting on the cond var
// (which ctx cancellation or any peer/queue change wakes), then run
// action while still holding the lock. Dead peers whose inbound queues
// have drained are reaped on every pass, so a predicate iterating
// b.peers only ever sees peers that are live or still hold undelivered
// frames.
func waitReady[T any](ctx context.Context, b *base, ready func() bool, action func() T) (T, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		b.reapLocked()
		if ready() {
			break
		}
		if err := b.waitLocked(ctx); err != nil {
			var zero T
			return zero, err
		}
	}
	return action(), nil
}
