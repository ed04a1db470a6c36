package transport

import (
	"time"

	"github.com/joeycumines/zmqcore/reactor"
	"golang.org/x/sys/unix"
)

// BackoffConfig controls a Connector's reconnect schedule, modeled on
// the connwatch package's startup-probe backoff shape (InitialDelay,
// MaxDelay, Multiplier) — doubling up to a ceiling rather than a fixed
// interval, so a sustained outage doesn't spin the connect loop.
type BackoffConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultBackoffConfig is 100ms doubling up to 30s, a faster schedule
// than connwatch's service-health defaults since a dropped ZeroMQ peer
// is expected to reappear far sooner than an external service outage.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: 30 * time.Second, Multiplier: 2}
}

// Connector dials one TCP endpoint and, on failure, retries with
// exponential backoff until Stop is called — the active-open
// counterpart of Listener, and the mechanism behind Session's
// "delaying-reconnect" state. Every method, Reconnect and Stop
// included, runs only on the reactor's own goroutine.
type Connector struct {
	r        *reactor.Reactor
	endpoint string
	onConn   AcceptFunc
	cfg      BackoffConfig

	delay      time.Duration
	connecting bool
	connFD     int
	stopped    bool
	timer      reactor.TimerID
	hasTimer   bool
}

// Connect starts dialing endpoint from r's own goroutine (Connect must
// itself be called there), invoking onConn once a connection succeeds.
// On failure it schedules a retry per cfg and tries again, indefinitely,
// until Stop is called.
func Connect(r *reactor.Reactor, endpoint string, onConn AcceptFunc, cfg BackoffConfig) *Connector {
	if cfg.InitialDelay <= 0 {
		cfg = DefaultBackoffConfig()
	}
	c := &Connector{r: r, endpoint: endpoint, onConn: onConn, cfg: cfg, delay: cfg.InitialDelay}
	c.attempt()
	return c
}

func (c *Connector) attempt() {
	c.hasTimer = false
	if c.stopped || c.connecting {
		return
	}

	sa, family, err := resolveSockaddr(c.endpoint)
	if err != nil {
		c.scheduleRetry()
		return
	}
	fd, err := unix.Socket(family, unix.SOCK_STREAM, 0)
	if err != nil {
		c.scheduleRetry()
		return
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		c.scheduleRetry()
		return
	}

	err = unix.Connect(fd, sa)
	if err == nil {
		c.connecting = false
		c.delay = c.cfg.InitialDelay
		c.onConn(&tcpConn{fd: fd}, fd)
		return
	}
	if err != unix.EINPROGRESS {
		_ = unix.Close(fd)
		c.scheduleRetry()
		return
	}

	c.connecting = true
	c.connFD = fd
	if regErr := c.r.RegisterFD(fd, reactor.EventWrite, c.onConnectReady); regErr != nil {
		c.connecting = false
		_ = unix.Close(fd)
		c.scheduleRetry()
	}
}

func (c *Connector) onConnectReady(reactor.IOEvents) {
	fd := c.connFD
	_ = c.r.UnregisterFD(fd)
	c.connecting = false

	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil || errno != 0 {
		_ = unix.Close(fd)
		c.scheduleRetry()
		return
	}

	c.delay = c.cfg.InitialDelay
	c.onConn(&tcpConn{fd: fd}, fd)
}

func (c *Connector) scheduleRetry() {
	if c.stopped || c.hasTimer {
		return
	}
	c.hasTimer = true
	id, _ := c.r.AddTimer(c.delay, c.attempt)
	c.timer = id
	c.delay = time.Duration(float64(c.delay) * c.cfg.Multiplier)
	if c.delay > c.cfg.MaxDelay {
		c.delay = c.cfg.MaxDelay
	}
}

// Reconnect restarts the dial loop after a previously established
// connection's Session has terminated (an engine failure, not a
// Connector-initiated close). Safe to call from the reactor's own
// goroutine only, matching every other Connector method.
func (c *Connector) Reconnect() {
	if c.stopped {
		return
	}
	c.delay = c.cfg.InitialDelay
	c.attempt()
}

// Stop cancels any pending retry timer and prevents further attempts.
// An in-flight non-blocking connect is abandoned: its fd is unregistered
// and closed immediately.
func (c *Connector) Stop() {
	if c.stopped {
		return
	}
	c.stopped = true
	if c.hasTimer {
		_ = c.r.CancelTimer(c.timer)
		c.hasTimer = false
	}
	if c.connecting {
		_ = c.r.UnregisterFD(c.connFD)
		_ = unix.Close(c.connFD)
		c.connecting = false
	}
}
