package socket

import (
	"context"

	"github.com/joeycumines/zmqcore/wire"
)

// Pub is the PUB socket type: broadcasts every frame to all connected
// SUB peers, silently dropping it for any peer whose pipe is currently
// full rather than applying back-pressure — a slow subscriber loses
// messages, it never slows the publisher.
type Pub struct{ *base }

func (s *Pub) Bind(endpoint string) error    { return s.base.Bind(endpoint, noopAllow) }
func (s *Pub) Connect(endpoint string) error { return s.base.Connect(endpoint, noopAllow) }

// Send implements Socket: never blocks. msg is cloned once per peer
// beyond the first so every subscriber gets an independent reference.
func (s *Pub) Send(ctx context.Context, msg *wire.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.reapLocked()
	if len(s.peers) == 0 {
		msg.Release()
		return nil
	}
	for i, p := range s.peers {
		m := msg
		if i > 0 {
			m = msg.Clone()
		}
		if !p.fromSocket.Push(m) {
			m.Release()
		}
	}
	return nil
}

// Recv implements Socket: PUB sockets never receive.
func (s *Pub) Recv(context.Context) (*wire.Message, error) {
	return nil, ErrState
}
