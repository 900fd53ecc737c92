package auth

import "time"

// DefaultSessionTTL is the lifetime of a browser session.
const DefaultSessionTTL = 24 * time.Hour

type options struct {
	now        func() time.Time
	sessionTTL time.Duration
	retry      RetryPolicy
}

// Option configures a component of this package.
type Option func(*options)

// WithClock replaces time.Now. Used by tests to move across TTL boundaries.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithSessionTTL overrides DefaultSessionTTL.
func WithSessionTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.sessionTTL = ttl
		}
	}
}

// WithRetryPolicy sets how store writes are retried on transient failures.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *options) {
		o.retry = p
	}
}

func buildOptions(opts []Option) options {
	o := options{
		now:        time.Now,
		sessionTTL: DefaultSessionTTL,
		retry:      DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
