package wire

import "errors"

var (
	// ErrProtocol is returned for malformed framing or an unrecognized
	// greeting signature.
	ErrProtocol = errors.New("wire: protocol error")
	// ErrTooLong is returned when a frame's declared length exceeds the
	// configured max_msg_size.
	ErrTooLong = errors.New("wire: frame exceeds max message size")
)
