// Package transport implements the collaborator layer that produces
// session.Engines: a TCP listener/connector pair and an in-process
// rendezvous table. Its internals are not the hardest part of the core
// (the reactor/session/wire packages are), but every engine a socket
// ever attaches to a Session arrives through here.
package transport

import "errors"

// Errors returned by the Listener and the inproc registry.
var (
	// ErrClosed is returned by Listener.Close on a Listener that has
	// already been closed.
	ErrClosed = errors.New("transport: closed")
	// ErrNoSuchEndpoint is returned by InprocRegistry.Connect when no
	// socket has bound the named endpoint.
	ErrNoSuchEndpoint = errors.New("transport: no such inproc endpoint")
	// ErrEndpointInUse is returned by InprocRegistry.Bind when the
	// named endpoint is already bound.
	ErrEndpointInUse = errors.New("transport: inproc endpoint already bound")
)
