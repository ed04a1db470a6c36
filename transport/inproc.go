package transport

import (
	"sync"

	"github.com/joeycumines/zmqcore/session"
)

// InprocHandler is invoked on a bound endpoint when a peer connects, and
// receives the two Pipes of the new connection from the bound socket's
// own perspective: in carries messages the connecting peer sent, out
// carries messages to hand back to it. There is no Engine, no Session,
// and no wire framing involved: the connect side attaches a pipe pair
// directly. A non-nil error (e.g. a PAIR
// socket that already has a peer) rejects the connection; Connect
// reports it back to the dialing side and the pipe pair is discarded
// unused.
type InprocHandler func(in, out *session.Pipe) error

// InprocRegistry is the in-memory endpoint-name -> bound-socket table
// for in-process transport. One Registry is normally shared by an
// entire Context; Bind registers a handler under a name, Connect looks
// one up and wires a fresh Pipe pair directly between the two sides.
type InprocRegistry struct {
	mu    sync.Mutex
	binds map[string]InprocHandler
}

// NewInprocRegistry constructs an empty registry.
func NewInprocRegistry() *InprocRegistry {
	return &InprocRegistry{binds: make(map[string]InprocHandler)}
}

// Bind registers handler under name. Returns ErrEndpointInUse if name is
// already bound.
func (r *InprocRegistry) Bind(name string, handler InprocHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.binds[name]; exists {
		return ErrEndpointInUse
	}
	r.binds[name] = handler
	return nil
}

// Unbind removes name's registration, if any.
func (r *InprocRegistry) Unbind(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.binds, name)
}

// Connect looks up name's bound handler and, if found, creates a fresh
// Pipe pair, invokes the handler with the bound side's view of it, and
// returns the connecting side's view: in carries messages from the
// bound peer, out carries messages to it.
func (r *InprocRegistry) Connect(name string, hwm int) (in, out *session.Pipe, err error) {
	r.mu.Lock()
	handler, ok := r.binds[name]
	r.mu.Unlock()
	if !ok {
		return nil, nil, ErrNoSuchEndpoint
	}

	fromConnector, fromBound := session.NewPair(hwm)
	fromConnector.Attach()
	fromBound.Attach()

	if err := handler(fromConnector, fromBound); err != nil {
		return nil, nil, err
	}
	return fromBound, fromConnector, nil
}
