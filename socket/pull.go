package socket

import (
	"context"

	"github.com/joeycumines/zmqcore/wire"
)

// Pull is the PULL socket type: fair-queues inbound frames from every
// connected peer (typically PUSH sockets) and never sends.
type Pull struct{ *base }

func (s *Pull) Bind(endpoint string) error    { return s.base.Bind(endpoint, noopAllow) }
func (s *Pull) Connect(endpoint string) error { return s.base.Connect(endpoint, noopAllow) }

// Send implements Socket: PULL sockets never send.
func (s *Pull) Send(context.Context, *wire.Message) error {
	return ErrState
}

// Recv implements Socket: blocks until some peer has a frame queued.
func (s *Pull) Recv(ctx context.Context) (*wire.Message, error) {
	return waitReady(ctx, s.base, func() bool {
		for _, p := range s.peers {
			if p.toSocket.Len() > 0 {
				return true
			}
		}
		return false
	}, func() *wire.Message {
		msg, _ := s.pickAndPopLocked()
		return msg
	})
}
