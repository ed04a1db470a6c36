// Package signaler provides a one-slot, edge-triggered wakeup primitive
// built on a self-pipe.
//
// It exists to unblock a reactor that is parked in a kernel readiness
// multiplexer (epoll/kqueue) when another goroutine needs to hand it work.
// A Signaler carries no payload: send posts one edge, recv consumes one
// edge, and at most one unconsumed edge may be in flight at a time — a
// second send before the matching recv is a caller error (see Send).
package signaler

import (
	"errors"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// ErrClosed is returned by operations on a Signaler that has been closed.
var ErrClosed = errors.New("signaler: closed")

// Signaler is a one-slot edge-triggered wakeup built from a non-blocking
// pipe(2) pair. Send and Recv are each safe for concurrent use by a single
// producer and a single consumer respectively; mixing multiple concurrent
// producers is fine (writes of a single byte are atomic on a pipe), but the
// "at most one unconsumed edge" invariant is then the caller's
// responsibility across all producers combined.
type Signaler struct {
	r, w   int
	closed atomic.Bool
}

// New creates a Signaler backed by a fresh pipe. The read end is put in
// non-blocking mode so it can be registered with a readiness multiplexer;
// the write end is also non-blocking so a stalled reader never blocks Send.
func New() (*Signaler, error) {
	r, w, err := newPipe()
	if err != nil {
		return nil, err
	}
	return &Signaler{r: r, w: w}, nil
}

// FD returns the readable handle for external registration with a
// multiplexer (epoll/kqueue). It never changes for the lifetime of the
// Signaler.
func (s *Signaler) FD() int {
	return s.r
}

// Send posts one edge. A partial write of zero bytes is retried; an EINTR
// on the write half is retried (resolved in favor of
// retry); any other I/O error is fatal to the owning component and is
// returned as-is.
//
// Sending twice without an intervening Recv is undefined behaviour per the
// component's contract — the pipe buffer simply accumulates an extra byte,
// which Recv will consume as a second, spurious edge.
func (s *Signaler) Send() error {
	if s.closed.Load() {
		return ErrClosed
	}
	buf := [1]byte{1}
	for {
		n, err := unix.Write(s.w, buf[:])
		if n == 1 {
			return nil
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			// Write end would block: the pipe is saturated with unconsumed
			// edges already, which only happens if the caller violated the
			// one-outstanding-edge contract. Treat as a successful signal,
			// since an edge is already pending.
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Recv consumes one edge if one is pending. It never blocks (use Wait
// for that): when no edge is pending (EAGAIN), or the read is
// interrupted (EINTR), it returns nil without consuming anything, so the
// caller can recheck its own queue instead of Recv retrying internally.
func (s *Signaler) Recv() error {
	if s.closed.Load() {
		return ErrClosed
	}
	buf := [1]byte{}
	for {
		n, err := unix.Read(s.r, buf[:])
		if n == 1 {
			return nil
		}
		if err == unix.EINTR {
			return nil
		}
		if err == unix.EAGAIN {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Wait reports whether an edge is present or arrives before timeout
// elapses, without consuming it. A negative timeout blocks until an edge
// arrives; zero polls without blocking; a positive timeout blocks up to
// that many milliseconds.
//
// This is provided for standalone use of a Signaler outside of a reactor's
// own multiplexer (which normally registers FD() directly and never calls
// Wait itself).
func (s *Signaler) Wait(timeoutMs int) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}
	fds := []unix.PollFd{{Fd: int32(s.r), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, timeoutMs)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, err
		}
		return n > 0, nil
	}
}

// Close releases both pipe ends. Safe to call once; a second call returns
// ErrClosed.
func (s *Signaler) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	err1 := unix.Close(s.r)
	err2 := unix.Close(s.w)
	if err1 != nil {
		return err1
	}
	return err2
}
