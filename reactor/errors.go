package reactor

import "errors"

var (
	// ErrReentrantRun is returned by Run when called from the reactor's
	// own goroutine (e.g. from inside a dispatched Command or callback).
	ErrReentrantRun = errors.New("reactor: reentrant Run")
	// ErrAlreadyRunning is returned by Run on a reactor that is already
	// StateRunning or StateSleeping.
	ErrAlreadyRunning = errors.New("reactor: already running")
	// ErrTerminated is returned by Run on a reactor that has already
	// fully shut down.
	ErrTerminated = errors.New("reactor: terminated")
	// ErrWrongThread is returned by RegisterFD/UnregisterFD/ModifyFD/
	// AddTimer/CancelTimer when called from a goroutine other than the
	// reactor's own.
	ErrWrongThread = errors.New("reactor: must be called from the reactor's own goroutine")
)
