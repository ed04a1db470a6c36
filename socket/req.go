package socket

import (
	"context"

	"github.com/joeycumines/zmqcore/wire"
)

type reqState int

const (
	reqIdle reqState = iota
	reqAwaitingReply
)

// Req is the REQ socket type: a strict send/recv/send/recv state
// machine enforcing that every request is followed by exactly one
// reply before the next request may be sent. Every request is wrapped
// in the empty-delimiter-frame envelope convention REP/ROUTER expect,
// so a REQ can address a ROUTER on the other end transparently.
type Req struct {
	*base
	state   reqState
	pending *peer
}

func (s *Req) Bind(endpoint string) error    { return s.base.Bind(endpoint, noopAllow) }
func (s *Req) Connect(endpoint string) error { return s.base.Connect(endpoint, noopAllow) }

// Send implements Socket: only valid in the idle state. Round-robins
// across peers the same as Dealer, then pushes an empty delimiter frame
// ahead of msg.
func (s *Req) Send(ctx context.Context, msg *wire.Message) error {
	s.mu.Lock()
	if s.state != reqIdle {
		s.mu.Unlock()
		return ErrState
	}
	s.mu.Unlock()

	_, err := waitReady(ctx, s.base, func() bool {
		if s.state != reqIdle {
			return false
		}
		// CanAccept(2) reserves room for both the delimiter and the body
		// up front, so the envelope can't be half-written: pushing the
		// delimiter and then stalling on the body would strand a dangling
		// frame in the pipe.
		n := len(s.peers)
		for i := 0; i < n; i++ {
			idx := (s.cursor + i) % n
			p := s.peers[idx]
			if p.dead || !p.fromSocket.CanAccept(2) {
				continue
			}
			if p.fromSocket.Push(wire.Empty(wire.FlagMore)) && p.fromSocket.Push(clearMore(msg)) {
				s.cursor = (idx + 1) % n
				s.pending = p
				s.state = reqAwaitingReply
				return true
			}
		}
		return false
	}, func() struct{} { return struct{}{} })
	return err
}

// Recv implements Socket: only valid after a Send, and only from the
// peer that Send chose. Strips the leading empty delimiter frame.
func (s *Req) Recv(ctx context.Context) (*wire.Message, error) {
	s.mu.Lock()
	if s.state != reqAwaitingReply {
		s.mu.Unlock()
		return nil, ErrState
	}
	s.mu.Unlock()

	return waitReady(ctx, s.base, func() bool {
		return s.state == reqAwaitingReply && s.pending != nil && s.pending.toSocket.Len() >= 2
	}, func() *wire.Message {
		delim, _ := s.pending.toSocket.Pop()
		delim.Release()
		msg, _ := s.pending.toSocket.Pop()
		s.state = reqIdle
		s.pending = nil
		return msg
	})
}

func clearMore(msg *wire.Message) *wire.Message {
	if !msg.More() {
		return msg
	}
	out := wire.New(append([]byte(nil), msg.Data()...), msg.Flags()&^wire.FlagMore)
	msg.Release()
	return out
}
