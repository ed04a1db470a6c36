// Package session implements the per-connection state machine: Session
// (message routing and flow control between an Engine and its Pipes) and
// Engine (the byte-stream I/O driver wrapping a wire.Decoder/Encoder).
package session

import (
	"sync"

	"github.com/joeycumines/zmqcore/internal/ring"
	"github.com/joeycumines/zmqcore/wire"
)

// DefaultHWM is the default high-water mark applied to a new Pipe.
const DefaultHWM = 1000

// Pipe is a bounded single-producer/single-consumer queue of Messages
// flowing in one direction between a socket (user thread) and a session
// (reactor thread). A bidirectional connection is modeled as a pair of
// Pipes, one per direction — see NewPair.
//
// Cross-thread notification never blocks: Push/Pop only ever touch the
// queue under a mutex and invoke a caller-supplied callback to signal
// the peer via its Mailbox; the callback itself must not block.
type Pipe struct {
	mu   sync.Mutex
	q    *ring.Ring[*wire.Message]
	hwm  int
	lwm  int
	full bool

	attached    bool
	closed      bool
	terminating bool

	onReadable func() // fired on empty -> non-empty transition
	onWritable func() // fired when occupancy drops back to the low-water mark after having hit the high-water mark
}

// NewPipe constructs a Pipe with the given high-water mark. The
// low-water mark defaults to half the high-water mark, matching the
// reference implementation's own default.
func NewPipe(hwm int) *Pipe {
	if hwm <= 0 {
		hwm = DefaultHWM
	}
	return &Pipe{
		q:   ring.New[*wire.Message](16),
		hwm: hwm,
		lwm: hwm / 2,
	}
}

// NewPair returns two independent one-way Pipes with the same high-water
// mark, one for each direction of a logical connection between a socket
// and a session.
func NewPair(hwm int) (a, b *Pipe) {
	return NewPipe(hwm), NewPipe(hwm)
}

// SetCallbacks installs readiness callbacks, composing with any already
// installed rather than replacing them: both a Session's engine-restart
// hook and a socket's own blocking-recv/send wakeup may need to observe
// the same Pipe, and each only ever adds its half, never knows about the
// other's.
func (p *Pipe) SetCallbacks(onReadable, onWritable func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onReadable = chainCallbacks(p.onReadable, onReadable)
	p.onWritable = chainCallbacks(p.onWritable, onWritable)
}

func chainCallbacks(a, b func()) func() {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func() { a(); b() }
}

// Attach marks the pipe as live; see Attached.
func (p *Pipe) Attach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attached = true
}

// Attached reports whether the pipe has been Attached and not yet Closed.
func (p *Pipe) Attached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attached && !p.closed
}

// Push enqueues msg. Returns false if the pipe is at or above its
// high-water mark (the caller — the session — must refuse/stall its
// input in that case) or if the pipe is closed.
func (p *Pipe) Push(msg *wire.Message) bool {
	p.mu.Lock()
	if p.closed || p.terminating || p.q.Len() >= p.hwm {
		if !p.closed {
			p.full = true
		}
		p.mu.Unlock()
		return false
	}
	wasEmpty := p.q.Len() == 0
	p.q.PushBack(msg)
	cb := p.onReadable
	p.mu.Unlock()

	if wasEmpty && cb != nil {
		cb()
	}
	return true
}

// Pop dequeues and returns the front Message. ok is false if the pipe is
// currently empty.
func (p *Pipe) Pop() (*wire.Message, bool) {
	p.mu.Lock()
	msg, ok := p.q.PopFront()
	var cb func()
	if ok && p.full && p.q.Len() <= p.lwm {
		p.full = false
		cb = p.onWritable
	}
	p.mu.Unlock()

	if cb != nil {
		cb()
	}
	return msg, ok
}

// PopBatch greedily drains up to max Messages without blocking — the
// reactor-thread analogue of a bounded, non-blocking multi-receive: pop
// while there's something queued and the batch isn't yet full, same
// shape as a channel drain loop's "default: stop" branch, just against
// a ring buffer that is always immediately ready instead of a channel
// that might not be.
func (p *Pipe) PopBatch(max int) []*wire.Message {
	if max <= 0 {
		return nil
	}
	p.mu.Lock()
	n := p.q.Len()
	if n > max {
		n = max
	}
	out := make([]*wire.Message, 0, n)
	crossedLWM := false
	for i := 0; i < n; i++ {
		msg, _ := p.q.PopFront()
		out = append(out, msg)
	}
	if p.full && p.q.Len() <= p.lwm {
		p.full = false
		crossedLWM = true
	}
	cb := p.onWritable
	p.mu.Unlock()

	if crossedLWM && cb != nil {
		cb()
	}
	return out
}

// CanAccept reports whether n consecutive Pushes would currently be
// admitted, without performing them. Used by senders that must place a
// multi-frame envelope atomically: checking once up front avoids
// stranding a half-written envelope when the pipe fills mid-sequence.
func (p *Pipe) CanAccept(n int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed && !p.terminating && p.q.Len()+n <= p.hwm
}

// Len reports the number of currently queued Messages.
func (p *Pipe) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.q.Len()
}

// BeginTerm marks the pipe as draining: Push is refused from here on
// (the two-phase termination handshake's PIPE_TERM half — the feeding
// side stops handing over new work) but Pop/PopBatch keep working so
// whatever is already queued can still be drained out through the
// other end. A subsequent Close still drops/releases anything left.
func (p *Pipe) BeginTerm() {
	p.mu.Lock()
	p.terminating = true
	p.mu.Unlock()
}

// Close marks the pipe terminated; further Push calls are refused.
// Queued messages are released.
func (p *Pipe) Close() {
	p.mu.Lock()
	p.closed = true
	for {
		msg, ok := p.q.PopFront()
		if !ok {
			break
		}
		msg.Release()
	}
	p.mu.Unlock()
}
