package wire

import "encoding/binary"

type encodeStep int

const (
	stepPullMessage encodeStep = iota
	stepHeader
	stepEncodePayload
)

// Encoder is the write-side counterpart of Decoder: a tagged-step state
// machine that emits frame header bytes from an internal scratch buffer
// and, for the payload, hands the transport write loop the Message's own
// backing array directly — there is no copy-threshold on the write side
// (unlike the decoder) because a Message's payload is already immutable
// and already allocated; staging it through scratch first would only add
// a copy with no corresponding benefit.
//
// Between messages the encoder calls pull to fetch the next one; when
// pull reports none available, GetBuffer reports stalled and the caller
// (the engine) must disable write-readiness until told to restart via
// restart_output.
type Encoder struct {
	pull func() (*Message, bool)

	step    encodeStep
	current *Message

	scratch  [9]byte
	target   []byte
	writePos int
}

// NewEncoder constructs an Encoder that pulls outgoing messages from
// pull. pull is called at most once per message boundary.
func NewEncoder(pull func() (*Message, bool)) *Encoder {
	return &Encoder{pull: pull, step: stepPullMessage}
}

// GetBuffer returns the next slice of bytes the caller should write to
// the transport. stalled is true if there is currently no message to
// send; the caller must wait for restart_output before calling again.
func (e *Encoder) GetBuffer() (buf []byte, stalled bool) {
	for {
		switch e.step {
		case stepPullMessage:
			msg, ok := e.pull()
			if !ok {
				return nil, true
			}
			e.current = msg
			e.prepareHeader()
			e.step = stepHeader

		case stepHeader:
			if e.writePos < len(e.target) {
				return e.target[e.writePos:], false
			}
			e.preparePayload()
			e.step = stepEncodePayload

		case stepEncodePayload:
			if e.writePos < len(e.target) {
				return e.target[e.writePos:], false
			}
			e.current.Release()
			e.current = nil
			e.step = stepPullMessage
		}
	}
}

// Advance reports that n bytes of the slice returned by the preceding
// GetBuffer call were successfully written to the transport.
func (e *Encoder) Advance(n int) {
	e.writePos += n
}

func (e *Encoder) prepareHeader() {
	length := uint64(e.current.Len())
	flags := e.current.Flags()

	var headerLen int
	if length > 0xFF {
		flags |= FlagLong
		e.scratch[0] = flags
		binary.BigEndian.PutUint64(e.scratch[1:9], length)
		headerLen = 9
	} else {
		e.scratch[0] = flags
		e.scratch[1] = byte(length)
		headerLen = 2
	}

	e.target = e.scratch[:headerLen]
	e.writePos = 0
}

func (e *Encoder) preparePayload() {
	e.target = e.current.Data()
	e.writePos = 0
}
