package zmqcore

import "errors"

// ErrTerminated is returned by Context operations once Term has begun
// or completed — the ETERM equivalent at the Context level, as opposed
// to socket.ErrClosed which is per-socket.
var ErrTerminated = errors.New("zmqcore: context terminated")
