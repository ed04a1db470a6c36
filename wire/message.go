// Package wire implements the ZeroMQ v3 wire protocol: the greeting
// exchange, per-frame flags/length framing, and the Message, Decoder, and
// Encoder types that sit directly on top of a transport byte stream.
package wire

import "sync/atomic"

// Flag bits, LSB first, per the ZMQ v3 frame header.
const (
	// FlagMore indicates another frame follows in the same logical
	// message.
	FlagMore byte = 1 << 0
	// FlagLong indicates the length field is 8 bytes big-endian rather
	// than 1.
	FlagLong byte = 1 << 1
	// FlagCommand marks a frame as a protocol command rather than
	// application data.
	FlagCommand byte = 1 << 2
)

// sharedBuf is a refcounted byte slice. A Message either uniquely owns
// one or shares it with clones produced by Clone; release is guaranteed
// exactly once, on the last drop.
type sharedBuf struct {
	data []byte
	refs atomic.Int32
}

func newSharedBuf(data []byte) *sharedBuf {
	b := &sharedBuf{data: data}
	b.refs.Store(1)
	return b
}

func (b *sharedBuf) retain() {
	b.refs.Add(1)
}

func (b *sharedBuf) release() {
	if b.refs.Add(-1) == 0 {
		b.data = nil
	}
}

// Message is an immutable-after-construction frame: a byte payload plus
// its flag set. The payload is never mutated once observable by a
// reader; sharing across clones uses reference counting with release on
// the last drop.
type Message struct {
	flags byte
	buf   *sharedBuf
}

// New constructs a Message taking ownership of data. data must not be
// modified by the caller afterwards.
func New(data []byte, flags byte) *Message {
	return &Message{flags: flags, buf: newSharedBuf(data)}
}

// Empty constructs a zero-length Message, used for zero-length frames.
func Empty(flags byte) *Message {
	return New(nil, flags)
}

// Flags returns the frame's flag byte.
func (m *Message) Flags() byte { return m.flags }

// More reports whether another frame follows in the same logical
// message.
func (m *Message) More() bool { return m.flags&FlagMore != 0 }

// Command reports whether this frame is a protocol command frame.
func (m *Message) Command() bool { return m.flags&FlagCommand != 0 }

// Data returns the frame's payload. The caller must not mutate it.
func (m *Message) Data() []byte {
	if m.buf == nil {
		return nil
	}
	return m.buf.data
}

// Len returns the payload length in bytes.
func (m *Message) Len() int { return len(m.Data()) }

// Clone returns a new Message sharing the same backing payload, bumping
// its refcount. Both the original and the clone must be Released
// independently.
func (m *Message) Clone() *Message {
	m.buf.retain()
	return &Message{flags: m.flags, buf: m.buf}
}

// Release drops this Message's reference to its payload. The backing
// array is only actually freed once every clone has been released.
func (m *Message) Release() {
	if m.buf != nil {
		m.buf.release()
		m.buf = nil
	}
}
