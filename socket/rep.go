package socket

import (
	"context"

	"github.com/joeycumines/zmqcore/wire"
)

type repState int

const (
	repIdle repState = iota
	repAwaitingSend
)

// Rep is the REP socket type: mirrors Req's state machine from the
// other side — receive strips the envelope and records which peer it
// came from, send (valid only once a request is pending) re-wraps the
// reply and routes it back to that same peer.
type Rep struct {
	*base
	state   repState
	pending *peer
}

func (s *Rep) Bind(endpoint string) error    { return s.base.Bind(endpoint, noopAllow) }
func (s *Rep) Connect(endpoint string) error { return s.base.Connect(endpoint, noopAllow) }

// Recv implements Socket: fair-queues across peers for a complete
// two-frame (delimiter + body) envelope, valid only in the idle state.
func (s *Rep) Recv(ctx context.Context) (*wire.Message, error) {
	s.mu.Lock()
	if s.state != repIdle {
		s.mu.Unlock()
		return nil, ErrState
	}
	s.mu.Unlock()

	return waitReady(ctx, s.base, func() bool {
		if s.state != repIdle {
			return false
		}
		for _, p := range s.peers {
			if p.toSocket.Len() >= 2 {
				return true
			}
		}
		return false
	}, func() *wire.Message {
		n := len(s.peers)
		for i := 0; i < n; i++ {
			idx := (s.cursor + i) % n
			p := s.peers[idx]
			if p.toSocket.Len() < 2 {
				continue
			}
			delim, _ := p.toSocket.Pop()
			delim.Release()
			msg, _ := p.toSocket.Pop()
			s.cursor = (idx + 1) % n
			s.pending = p
			s.state = repAwaitingSend
			return msg
		}
		return nil
	})
}

// Send implements Socket: only valid after a matching Recv, and always
// routes back to the peer that request came from.
func (s *Rep) Send(ctx context.Context, msg *wire.Message) error {
	s.mu.Lock()
	if s.state != repAwaitingSend {
		s.mu.Unlock()
		return ErrState
	}
	s.mu.Unlock()

	_, err := waitReady(ctx, s.base, func() bool {
		// A requester that disconnected while we held its request gets
		// its reply silently dropped (there is nowhere to route it), and
		// the state machine resets so the next request can proceed.
		return s.state == repAwaitingSend && s.pending != nil &&
			(s.pending.dead || s.pending.fromSocket.CanAccept(2))
	}, func() struct{} {
		if !s.pending.dead {
			s.pending.fromSocket.Push(wire.Empty(wire.FlagMore))
			s.pending.fromSocket.Push(clearMore(msg))
		} else {
			msg.Release()
		}
		s.state = repIdle
		s.pending = nil
		return struct{}{}
	})
	return err
}
