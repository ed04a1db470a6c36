package socket

import (
	"context"

	"github.com/joeycumines/zmqcore/wire"
)

// Push is the PUSH socket type: round-robins outbound frames across
// every connected peer (typically PULL sockets on the other end) and
// never receives.
type Push struct{ *base }

func (s *Push) Bind(endpoint string) error    { return s.base.Bind(endpoint, noopAllow) }
func (s *Push) Connect(endpoint string) error { return s.base.Connect(endpoint, noopAllow) }

// Send implements Socket: blocks until some peer accepts the frame,
// round-robinning across them. The push attempt doubles as the
// readiness check — a peer that looked roomy but has since closed or
// begun draining refuses the push, and the loop simply waits for the
// next candidate rather than dropping the frame.
func (s *Push) Send(ctx context.Context, msg *wire.Message) error {
	_, err := waitReady(ctx, s.base, func() bool {
		return s.pickAndPushLocked(msg)
	}, func() struct{} { return struct{}{} })
	return err
}

// Recv implements Socket: PUSH sockets never receive.
func (s *Push) Recv(context.Context) (*wire.Message, error) {
	return nil, ErrState
}
