package socket

import (
	"context"

	"github.com/joeycumines/zmqcore/wire"
)

// Dealer is the DEALER socket type: round-robins sends and fair-queues
// receives across every connected peer, with no envelope convention of
// its own — it's the async counterpart of Req, typically paired with a
// Router on the other end (in which case the caller is responsible for
// managing the envelope frames itself).
type Dealer struct{ *base }

func (s *Dealer) Bind(endpoint string) error    { return s.base.Bind(endpoint, noopAllow) }
func (s *Dealer) Connect(endpoint string) error { return s.base.Connect(endpoint, noopAllow) }

// Send implements Socket. The push attempt doubles as the readiness
// check, same as Push.Send.
func (s *Dealer) Send(ctx context.Context, msg *wire.Message) error {
	_, err := waitReady(ctx, s.base, func() bool {
		return s.pickAndPushLocked(msg)
	}, func() struct{} { return struct{}{} })
	return err
}

// Recv implements Socket.
func (s *Dealer) Recv(ctx context.Context) (*wire.Message, error) {
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
