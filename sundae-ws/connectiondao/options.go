package connectiondao

import "time"

// DefaultTTL is how long a connection row lives without activity.
const DefaultTTL = 2 * time.Hour

type options struct {
	ttl time.Duration
	now func() time.Time
}

type Option func(*options)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{
		ttl: DefaultTTL,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
