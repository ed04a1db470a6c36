package socket

import (
	"context"

	"github.com/joeycumines/zmqcore/wire"
)

// Pair is the PAIR socket type: exactly one peer, full duplex, no
// routing or fan-out at all — the simplest pattern, used mostly for
// intra-process coordination between two exclusively-paired sockets.
type Pair struct{ *base }

func (s *Pair) allowNewPeer() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.peers) > 0 {
		return ErrAlreadyConnected
	}
	return nil
}

// Bind implements Socket.
func (s *Pair) Bind(endpoint string) error { return s.base.Bind(endpoint, s.allowNewPeer) }

// Connect implements Socket.
func (s *Pair) Connect(endpoint string) error { return s.base.Connect(endpoint, s.allowNewPeer) }

// Send implements Socket: blocks until the single peer accepts the
// frame.
func (s *Pair) Send(ctx context.Context, msg *wire.Message) error {
	_, err := waitReady(ctx, s.base, func() bool {
		return len(s.peers) > 0 && s.peers[0].fromSocket.Push(msg)
	}, func() struct{} { return struct{}{} })
	return err
}

// Recv implements Socket: blocks until the peer has sent a frame.
func (s *Pair) Recv(ctx context.Context) (*wire.Message, error) {
	return waitReady(ctx, s.base, func() bool {
		return len(s.peers) > 0 && s.peers[0].toSocket.Len() > 0
	}, func() *wire.Message {
		msg, _ := s.peers[0].toSocket.Pop()
		return msg
	})
}
