package socket

import (
	"context"

	"github.com/joeycumines/zmqcore/wire"
)

type routerSendState int

const (
	routerSendIdle routerSendState = iota
	routerSendBody
)

// Router is the ROUTER socket type: the addressable side of a
// Dealer/Router pair. Recv prepends a leading identity frame (so the
// caller always learns which peer a message came from) split across
// two Recv calls — the identity frame first, then the body — mirroring
// how Send expects its own leading identity frame to pick the
// destination peer before the body frame that follows it.
type Router struct {
	*base

	pendingBody *wire.Message
	pendingPeer *peer

	sendState  routerSendState
	sendTarget *peer
}

func (s *Router) Bind(endpoint string) error    { return s.base.Bind(endpoint, noopAllow) }
func (s *Router) Connect(endpoint string) error { return s.base.Connect(endpoint, noopAllow) }

// Recv implements Socket. The first call after a message arrives
// returns a FlagMore-tagged frame carrying the originating peer's
// identity; the following call returns the actual body.
func (s *Router) Recv(ctx context.Context) (*wire.Message, error) {
	return waitReady(ctx, s.base, func() bool {
		if s.pendingBody != nil {
			return true
		}
		for _, p := range s.peers {
			if p.toSocket.Len() > 0 {
				return true
			}
		}
		return false
	}, func() *wire.Message {
		if s.pendingBody != nil {
			body := s.pendingBody
			s.pendingBody = nil
			s.pendingPeer = nil
			return body
		}
		msg, p, ok := s.pickAndPopWithPeerLocked()
		if !ok {
			return nil
		}
		s.pendingBody = msg
		s.pendingPeer = p
		id := append([]byte(nil), p.identity...)
		return wire.New(id, wire.FlagMore)
	})
}

// Send implements Socket. The first call for a given outgoing message
// must carry the destination identity (as returned by a prior Recv);
// the following call carries the body, forwarded to that peer. Returns
// ErrUnreachable if the identity names no currently attached peer.
func (s *Router) Send(ctx context.Context, msg *wire.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if s.sendState == routerSendIdle {
		p := s.findPeerByIdentity(msg.Data())
		msg.Release()
		if p == nil {
			return ErrUnreachable
		}
		s.sendTarget = p
		s.sendState = routerSendBody
		return nil
	}

	target := s.sendTarget
	s.sendTarget = nil
	s.sendState = routerSendIdle
	body := clearMore(msg)
	for !target.fromSocket.Push(body) {
		if target.dead {
			// Peer disconnected between the identity frame and the body;
			// the frame is unroutable now, same as an unknown identity.
			body.Release()
			return ErrUnreachable
		}
		if err := s.waitLocked(ctx); err != nil {
			return err
		}
	}
	return nil
}
