package reactor

import "github.com/rs/zerolog"

// options holds configuration resolved at New.
type options struct {
	logger     zerolog.Logger
	maxPollMs  int
}

// Option configures a Reactor.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

// WithLogger attaches a zerolog.Logger the Reactor uses for engine/session
// state transitions and protocol errors.
func WithLogger(logger zerolog.Logger) Option {
	return optionFunc(func(o *options) { o.logger = logger })
}

// WithMaxPollInterval bounds how long a single pollIO call may block even
// with no timers pending, so a Stop request is never delayed more than
// this many milliseconds. Defaults to 1000ms.
func WithMaxPollInterval(ms int) Option {
	return optionFunc(func(o *options) {
		if ms > 0 {
			o.maxPollMs = ms
		}
	})
}

func resolveOptions(opts []Option) *options {
	cfg := &options{
		logger:    zerolog.Nop(),
		maxPollMs: 1000,
	}
	for _, opt := range opts {
		if opt != nil {
			opt.apply(cfg)
		}
	}
	return cfg
}
