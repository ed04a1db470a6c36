// Package reactor implements the I/O thread: a single-threaded
// readiness-notification loop that dispatches I/O events on registered
// transport handles, expiring timers, and commands drained from its own
// Mailbox. Every session, engine, decoder, and encoder object is owned
// exclusively by the one Reactor it is registered with; cross-thread work
// only ever arrives as a Command through the Mailbox.
package reactor

import "errors"

// IOEvents is a bitset of readiness conditions reported by the poller.
type IOEvents uint32

const (
	// EventRead indicates the handle is ready for reading.
	EventRead IOEvents = 1 << iota
	// EventWrite indicates the handle is ready for writing.
	EventWrite
	// EventError indicates an error condition on the handle.
	EventError
	// EventHangup indicates the peer closed its end.
	EventHangup
)

// IOCallback is invoked from the reactor's own goroutine when a
// registered fd reports one or more of the events it was armed for.
type IOCallback func(IOEvents)

// Standard poller errors.
var (
	ErrFDAlreadyRegistered = errors.New("reactor: fd already registered")
	ErrFDNotRegistered     = errors.New("reactor: fd not registered")
	ErrPollerClosed        = errors.New("reactor: poller closed")
)

// poller is the platform-native readiness multiplexer (epoll on Linux,
// kqueue on Darwin). Registration methods must only be called from the
// reactor's own goroutine.
type poller interface {
	init() error
	close() error
	registerFD(fd int, events IOEvents, cb IOCallback) error
	unregisterFD(fd int) error
	modifyFD(fd int, events IOEvents) error
	// pollIO blocks for at most timeoutMs milliseconds (negative blocks
	// indefinitely, zero polls) and dispatches ready callbacks inline.
	pollIO(timeoutMs int) (int, error)
}
