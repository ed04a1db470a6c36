package reactor

import "sync/atomic"

// State is one of a reactor's lifecycle stages.
type State uint64

const (
	// StateCreated is the state before Run has been called.
	StateCreated State = iota
	// StateRunning indicates the reactor is actively dispatching.
	StateRunning
	// StateSleeping indicates the reactor is blocked in pollIO.
	StateSleeping
	// StateTerminating indicates Stop has been requested but the run
	// loop has not yet observed it.
	StateTerminating
	// StateTerminated is the terminal state; the run loop has returned.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateRunning:
		return "Running"
	case StateSleeping:
		return "Sleeping"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// fastState is a lock-free CAS state machine for the reactor's lifecycle.
// Running/Sleeping transitions happen once per tick on the reactor's own
// goroutine and must use TryTransition; Terminated is irreversible and is
// written with Store.
type fastState struct {
	v atomic.Uint64
}

func newFastState() *fastState {
	s := &fastState{}
	s.v.Store(uint64(StateCreated))
	return s
}

func (s *fastState) Load() State {
	return State(s.v.Load())
}

func (s *fastState) Store(state State) {
	s.v.Store(uint64(state))
}

func (s *fastState) TryTransition(from, to State) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

func (s *fastState) IsTerminal() bool {
	return s.Load() == StateTerminated
}
