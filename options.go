package zmqcore

import "github.com/rs/zerolog"

// options holds configuration resolved at NewContext, mirroring the
// reactor package's own functional-option shape.
type options struct {
	numReactors int
	logger      zerolog.Logger
}

// Option configures a Context.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

// WithReactors overrides the number of reactor.Reactor instances the
// Context hosts. Defaults to runtime.GOMAXPROCS(0); values <= 0 are
// ignored.
func WithReactors(n int) Option {
	return optionFunc(func(o *options) {
		if n > 0 {
			o.numReactors = n
		}
	})
}

// WithLogger attaches a zerolog.Logger passed through to every reactor
// the Context creates.
func WithLogger(logger zerolog.Logger) Option {
	return optionFunc(func(o *options) { o.logger = logger })
}
