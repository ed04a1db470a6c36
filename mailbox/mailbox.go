// Package mailbox implements a lock-based producer/consumer command queue
// addressed to one owner object, paired with a signaler.Signaler for
// readiness. It is the only cross-thread communication primitive in the
// core: a reactor never touches another reactor's objects directly, it
// only posts Commands to that reactor's Mailbox.
package mailbox

import (
	"sync"

	"github.com/joeycumines/zmqcore/signaler"
)

// chunkSize is the number of commands per node in the chunked queue.
// Fixed-size arrays amortize allocation and give better cache locality
// than a plain linked list of single commands.
const chunkSize = 128

// chunkPool recycles exhausted chunks to avoid GC churn under sustained
// command traffic (reconnects, pipe activation storms).
var chunkPool = sync.Pool{New: func() any { return &chunk{} }}

type chunk struct {
	cmds    [chunkSize]Command
	next    *chunk
	readPos int
	pos     int
}

func newChunk() *chunk {
	c := chunkPool.Get().(*chunk)
	c.pos, c.readPos, c.next = 0, 0, nil
	return c
}

func returnChunk(c *chunk) {
	for i := 0; i < c.pos; i++ {
		c.cmds[i] = Command{}
	}
	c.pos, c.readPos, c.next = 0, 0, nil
	chunkPool.Put(c)
}

// Mailbox is a FIFO command queue for one owner object. Send never blocks
// the producer on the consumer; Recv optionally blocks the consumer up to
// a timeout waiting for the owner's Signaler to report an edge.
//
// Invariant: the Signaler is in the "signalled" state if and
// only if a producer observed the queue transition from empty to
// non-empty and that transition has not yet been matched by a consumer
// drain back to empty.
type Mailbox struct {
	mu     sync.Mutex
	head   *chunk
	tail   *chunk
	length int
	sig    *signaler.Signaler
}

// New creates a Mailbox with its own dedicated Signaler.
func New() (*Mailbox, error) {
	sig, err := signaler.New()
	if err != nil {
		return nil, err
	}
	return &Mailbox{sig: sig}, nil
}

// Signaler returns the Mailbox's Signaler, so its FD can be registered
// with a reactor's readiness multiplexer.
func (m *Mailbox) Signaler() *signaler.Signaler {
	return m.sig
}

// Send enqueues cmd. If the queue was empty before this enqueue, it posts
// one edge on the Signaler. Never blocks.
func (m *Mailbox) Send(cmd Command) {
	m.mu.Lock()
	wasEmpty := m.length == 0
	m.pushLocked(cmd)
	m.mu.Unlock()

	if wasEmpty {
		// Best-effort: a Signaler send failure means the owning reactor is
		// gone/closed, in which case there is nobody left to wake.
		_ = m.sig.Send()
	}
}

func (m *Mailbox) pushLocked(cmd Command) {
	if m.tail == nil {
		m.tail = newChunk()
		m.head = m.tail
	}
	if m.tail.pos == len(m.tail.cmds) {
		next := newChunk()
		m.tail.next = next
		m.tail = next
	}
	m.tail.cmds[m.tail.pos] = cmd
	m.tail.pos++
	m.length++
}

func (m *Mailbox) popLocked() (Command, bool) {
	if m.head == nil || m.head.readPos >= m.head.pos {
		if m.head != nil && m.head == m.tail {
			m.head.pos, m.head.readPos = 0, 0
		}
		return Command{}, false
	}
	cmd := m.head.cmds[m.head.readPos]
	m.head.cmds[m.head.readPos] = Command{}
	m.head.readPos++
	m.length--

	if m.head.readPos >= m.head.pos {
		if m.head != m.tail {
			old := m.head
			m.head = m.head.next
			returnChunk(old)
		} else {
			m.head.pos, m.head.readPos = 0, 0
		}
	}
	return cmd, true
}

// Len reports the number of commands currently queued.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.length
}

// RecvNoWait drains one command without blocking. ok is false if the
// queue was empty.
func (m *Mailbox) RecvNoWait() (cmd Command, ok bool) {
	m.mu.Lock()
	cmd, ok = m.popLocked()
	becameEmpty := ok && m.length == 0
	m.mu.Unlock()

	if becameEmpty {
		m.clearSignalOnDrain()
	}
	return cmd, ok
}

// clearSignalOnDrain consumes the pending edge exactly once per
// queue-to-empty transition.
func (m *Mailbox) clearSignalOnDrain() {
	_ = m.sig.Recv()
}

// Recv drains one command, waiting on the Signaler up to timeoutMs
// milliseconds if the queue is currently empty (negative blocks
// indefinitely, zero polls). Returns ok=false on timeout.
func (m *Mailbox) Recv(timeoutMs int) (cmd Command, ok bool) {
	if cmd, ok = m.RecvNoWait(); ok {
		return cmd, true
	}
	if ready, err := m.sig.Wait(timeoutMs); err != nil || !ready {
		return Command{}, false
	}
	return m.RecvNoWait()
}

// DrainAll drains every currently queued command into fn, in order. It is
// the batch form a reactor uses once its mailbox Signaler reports
// readiness, avoiding a Signaler Wait/Recv round-trip per command.
func (m *Mailbox) DrainAll(fn func(Command)) {
	for {
		cmd, ok := m.RecvNoWait()
		if !ok {
			return
		}
		fn(cmd)
	}
}

// Close releases the Mailbox's Signaler.
func (m *Mailbox) Close() error {
	return m.sig.Close()
}
