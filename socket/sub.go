package socket

import (
	"bytes"
	"context"

	"github.com/joeycumines/zmqcore/wire"
)

// Sub is the SUB socket type: fair-queues inbound frames from every
// connected PUB peer, filtering by topic prefix on the receiving side —
// matching libzmq's convention of doing subscription filtering at the
// subscriber rather than trusting the publisher to. No subscriptions
// means no frames are ever delivered, matching the reference socket's
// default of "subscribed to nothing" until Subscribe is called.
type Sub struct {
	*base
	topics [][]byte
}

func (s *Sub) Bind(endpoint string) error    { return s.base.Bind(endpoint, noopAllow) }
func (s *Sub) Connect(endpoint string) error { return s.base.Connect(endpoint, noopAllow) }

// Subscribe adds topic as a matching prefix; an empty topic subscribes
// to every message.
func (s *Sub) Subscribe(topic []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics = append(s.topics, append([]byte(nil), topic...))
}

// Unsubscribe removes a previously subscribed prefix, if present.
func (s *Sub) Unsubscribe(topic []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.topics {
		if bytes.Equal(t, topic) {
			s.topics = append(s.topics[:i], s.topics[i+1:]...)
			return
		}
	}
}

func (s *Sub) matchesLocked(data []byte) bool {
	for _, t := range s.topics {
		if bytes.HasPrefix(data, t) {
			return true
		}
	}
	return false
}

// Send implements Socket: SUB sockets never send.
func (s *Sub) Send(context.Context, *wire.Message) error {
	return ErrState
}

// Recv implements Socket: blocks until a frame matching some subscribed
// prefix arrives, draining and discarding anything that doesn't match
// along the way.
func (s *Sub) Recv(ctx context.Context) (*wire.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		s.reapLocked()
		for {
			msg, ok := s.pickAndPopLocked()
			if !ok {
				break
			}
			if s.matchesLocked(msg.Data()) {
				return msg, nil
			}
			msg.Release()
		}
		if err := s.waitLocked(ctx); err != nil {
			return nil, err
		}
	}
}
