package socket

import "errors"

// Error kinds exposed to callers, compatible in spirit with the
// reference library's small error-code set: ErrState is the
// EFSM equivalent (an operation invalid in the socket's current
// request/reply state), ErrUnreachable is EHOSTUNREACH (ROUTER send to
// an unknown identity), ErrClosed/ErrTerminated are ETERM-equivalent.
var (
	// ErrState is returned by Send/Recv when the call is invalid for the
	// socket's current state — e.g. a Req.Recv with no outstanding
	// request, or a second Req.Send before a reply arrived.
	ErrState = errors.New("socket: invalid state for this operation (EFSM)")
	// ErrUnreachable is returned by Router.Send when the leading
	// identity frame does not match any currently connected peer.
	ErrUnreachable = errors.New("socket: destination unreachable (EHOSTUNREACH)")
	// ErrClosed is returned by any operation on a Socket after Close.
	ErrClosed = errors.New("socket: closed (ETERM)")
	// ErrUnsupportedScheme is returned by Bind/Connect for an endpoint
	// whose scheme is neither "tcp" nor "inproc".
	ErrUnsupportedScheme = errors.New("socket: unsupported endpoint scheme")
	// ErrAlreadyConnected is returned by Pair.Connect when the connecting
	// PAIR, or the inproc PAIR bound at the endpoint, already has a peer —
	// PAIR allows exactly one. A bound PAIR that already has a peer closes
	// further tcp connections instead.
	ErrAlreadyConnected = errors.New("socket: pair socket already has a peer")
)
