package wire

import "encoding/binary"

// DefaultScratchSize is the decoder/encoder internal scratch buffer size.
// A payload at or above this size is decoded directly into a freshly
// allocated Message buffer (zero-copy); below it, the payload is staged
// in the scratch buffer and copied out once, on completion.
const DefaultScratchSize = 8192

type decodeStep int

const (
	stepFlags decodeStep = iota
	stepLength1
	stepLength8
	stepPayload
)

// Decoder is a size-prefix framing state machine: it consumes raw bytes
// fed through GetBuffer/Feed and emits whole Messages. The current step
// is a plain tag dispatched through a switch in next, not a virtual
// method — see design note on tagged decoder/encoder steps.
//
// Unlike a pull-style process_buffer(source, n) that copies from a
// caller-owned read buffer into the decoder's own target, GetBuffer
// always returns exactly the destination the next read syscall should
// target (the scratch buffer for header bytes and small payloads, or a
// freshly allocated Message's own backing array for large payloads).
// Every read therefore lands in the right place the first time; there
// is no separate copy-loop pass, because in Go the caller always reads
// directly into what GetBuffer hands back.
type Decoder struct {
	scratch    []byte
	maxMsgSize uint64

	step    decodeStep
	target  []byte
	readPos int

	flags  byte
	length uint64

	pending *sharedBuf // non-nil while in a zero-copy payload step

	dead    bool
	deadErr error
}

// NewDecoder constructs a Decoder that rejects any frame whose declared
// length exceeds maxMsgSize (0 means unbounded).
func NewDecoder(maxMsgSize uint64) *Decoder {
	d := &Decoder{
		scratch:    make([]byte, DefaultScratchSize),
		maxMsgSize: maxMsgSize,
	}
	d.startFlagsStep()
	return d
}

// GetBuffer returns the slice the caller should read the transport's
// next bytes into. It always targets exactly the unfilled remainder of
// the decoder's current step, so a single non-blocking read can never
// overrun into the next step's data.
func (d *Decoder) GetBuffer() []byte {
	if d.dead {
		return nil
	}
	return d.target[d.readPos:]
}

// Feed reports that n bytes were just read into the slice returned by
// the preceding GetBuffer call, and drives the state machine forward.
// It returns the Message completed as a result, if any (GetBuffer never
// spans two steps, so one Feed completes at most one frame), and a
// non-nil error if the decoder dies (a dead decoder rejects
// all further Feed calls with the same error, per the decoder's dead-state
// rule).
func (d *Decoder) Feed(n int) ([]*Message, error) {
	if d.dead {
		return nil, d.deadErr
	}

	var out []*Message
	d.readPos += n

	for d.readPos == len(d.target) {
		msg, err := d.next()
		if err != nil {
			d.dead = true
			d.deadErr = err
			return out, err
		}
		if msg != nil {
			out = append(out, msg)
		}
	}
	return out, nil
}

// Dead reports whether a protocol violation has latched the decoder
// into a permanently failing state.
func (d *Decoder) Dead() bool { return d.dead }

func (d *Decoder) startFlagsStep() {
	d.step = stepFlags
	d.target = d.scratch[:1]
	d.readPos = 0
}

// next executes the action for the step that just completed filling,
// returning a completed Message (payload step only) or advancing to the
// next step. A non-nil error latches the decoder dead.
func (d *Decoder) next() (*Message, error) {
	switch d.step {
	case stepFlags:
		d.flags = d.scratch[0]
		if d.flags&FlagLong != 0 {
			d.step = stepLength8
			d.target = d.scratch[:8]
		} else {
			d.step = stepLength1
			d.target = d.scratch[:1]
		}
		d.readPos = 0
		return nil, nil

	case stepLength1:
		d.length = uint64(d.scratch[0])
		return d.startPayloadStep()

	case stepLength8:
		d.length = binary.BigEndian.Uint64(d.scratch[:8])
		return d.startPayloadStep()

	case stepPayload:
		msg := d.finishPayload()
		d.startFlagsStep()
		return msg, nil

	default:
		return nil, ErrProtocol
	}
}

func (d *Decoder) startPayloadStep() (*Message, error) {
	if d.maxMsgSize != 0 && d.length > d.maxMsgSize {
		return nil, ErrTooLong
	}

	if d.length == 0 {
		d.startFlagsStep()
		return Empty(d.flags &^ FlagLong), nil
	}

	d.step = stepPayload
	d.readPos = 0

	if d.length >= uint64(len(d.scratch)) {
		buf := make([]byte, d.length)
		d.pending = newSharedBuf(buf)
		d.target = buf
	} else {
		d.pending = nil
		d.target = d.scratch[:d.length]
	}
	return nil, nil
}

func (d *Decoder) finishPayload() *Message {
	// FlagLong is a wire-only length-encoding detail (mirroring libzmq,
	// which never surfaces it as a message flag) — strip it so a message
	// that merely happened to cross the 1-byte length threshold on the
	// wire doesn't come back with a flag bit it never had.
	flags := d.flags &^ FlagLong
	if d.pending != nil {
		buf := d.pending
		d.pending = nil
		return &Message{flags: flags, buf: buf}
	}
	data := make([]byte, len(d.target))
	copy(data, d.target)
	return New(data, flags)
}
