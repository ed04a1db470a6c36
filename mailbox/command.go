package mailbox

// Type tags the payload variant carried by a Command. The reference
// ZeroMQ object model dispatches commands virtually on an abstract
// command target; here each Type is a plain enum value and dispatch is a
// switch in the addressee's command handler (see design note: tagged
// command variant, not a dynamic type hierarchy).
type Type int

const (
	// Attach binds an engine to the session addressed by Dest. Payload is
	// whatever the addressee's engine type requires (an *session.Engine,
	// opaquely passed through as any).
	Attach Type = iota
	// ActivateRead tells the addressee that pipe read-space has freed up.
	ActivateRead
	// ActivateWrite tells the addressee that pipe data is available to read.
	ActivateWrite
	// Hiccup tells a reader the writer end of its pipe was replaced
	// (reconnect) and in-flight identity state should reset.
	Hiccup
	// PipeTerm begins pipe teardown; the addressee must drain or drop
	// in-flight messages and then post PipeTermAck.
	PipeTerm
	// PipeTermAck acknowledges a PipeTerm, allowing the initiator to
	// finish tearing down.
	PipeTermAck
	// Stop asks a reactor to drain its mailbox, tear down owned objects,
	// and exit its run loop.
	Stop
	// TermReq requests that the addressee begin orderly shutdown.
	TermReq
	// Term is the two-phase-termination request sent down to a specific
	// owned object.
	Term
	// TermAck acknowledges Term, completing the handshake.
	TermAck
	// Bind asks a socket-side object to accept a freshly produced engine
	// (e.g. from a TCP listener) and create a session for it.
	Bind
	// Invoke carries a func() Payload to run on the addressee's reactor
	// goroutine — the general-purpose mechanism a user-thread socket uses
	// to reach reactor-owned state (registering a Listener, plugging a
	// fresh Engine) without the reactor needing a bespoke Command variant
	// for every such request.
	Invoke
)

// String names a Type for logging.
func (t Type) String() string {
	switch t {
	case Attach:
		return "ATTACH"
	case ActivateRead:
		return "ACTIVATE_READ"
	case ActivateWrite:
		return "ACTIVATE_WRITE"
	case Hiccup:
		return "HICCUP"
	case PipeTerm:
		return "PIPE_TERM"
	case PipeTermAck:
		return "PIPE_TERM_ACK"
	case Stop:
		return "STOP"
	case TermReq:
		return "TERM_REQ"
	case Term:
		return "TERM"
	case TermAck:
		return "TERM_ACK"
	case Bind:
		return "BIND"
	case Invoke:
		return "INVOKE"
	default:
		return "UNKNOWN"
	}
}

// Dest identifies the addressee of a Command within the owner reactor's
// object table. It is an opaque handle (index + generation), resolved by
// the reactor's registry — see reactor.Handle. Mailbox itself never
// interprets it.
type Dest uint64

// Command is a tagged record transported by value through a Mailbox.
type Command struct {
	Type    Type
	Dest    Dest
	Payload any
}
