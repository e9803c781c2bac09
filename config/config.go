// Package config holds the coordinator's tunables, configured through a
// functional-options constructor: a small unexported cfg struct with sane
// defaults, and exported With* functions that mutate it.
package config

import (
	"time"

	"github.com/shardcx/shardcx/internal/klog"
)

const (
	defaultResolverRetryInterval = 5 * time.Second
	defaultResolverCacheTTL      = 0 // disabled unless opted in
	defaultConnectingCeiling     = 1024
	defaultReconnectingCeiling   = 1024
)

// Config is the coordinator's resolved configuration. Obtain one with New.
type Config struct {
	resolverRetryInterval time.Duration
	resolverCacheTTL      time.Duration
	connectingCeiling     int
	reconnectingCeiling   int
	logger                klog.Logger
	now                   func() time.Time
}

// ResolverRetryInterval is how long the coordinator waits before retrying a
// backend resolution that failed with a timeout. Defaults to a fixed 5
// second interval.
func (c Config) ResolverRetryInterval() time.Duration { return c.resolverRetryInterval }

// ResolverCacheTTL, when non-zero, wraps the configured Resolver in a
// resolvercache.Cache with this TTL.
func (c Config) ResolverCacheTTL() time.Duration { return c.resolverCacheTTL }

// ConnectingCeiling bounds how many entries a Connecting connection buffers
// before further enqueues fail with kxerr.ErrQueueOverflow.
func (c Config) ConnectingCeiling() int { return c.connectingCeiling }

// ReconnectingCeiling is the same ceiling, applied while a connection is in
// the Reconnecting state.
func (c Config) ReconnectingCeiling() int { return c.reconnectingCeiling }

// Logger is the leveled logger the coordinator and its collaborators log
// through.
func (c Config) Logger() klog.Logger { return c.logger }

// Now returns the configured clock, defaulting to time.Now, and overridden
// via WithClock. The coordinator does not read it: its retry timers run on
// the ActorContext, which keeps its own time.
func (c Config) Now() time.Time { return c.now() }

// Opt configures a Config. Apply one or more to New.
type Opt func(*Config)

// WithResolverRetryInterval overrides the resolver retry interval.
func WithResolverRetryInterval(d time.Duration) Opt {
	return func(c *Config) { c.resolverRetryInterval = d }
}

// WithResolverCacheTTL enables a resolver-result cache with the given TTL.
func WithResolverCacheTTL(d time.Duration) Opt {
	return func(c *Config) { c.resolverCacheTTL = d }
}

// WithConnectingCeiling overrides the Connecting-state buffer ceiling.
func WithConnectingCeiling(n int) Opt {
	return func(c *Config) { c.connectingCeiling = n }
}

// WithReconnectingCeiling overrides the Reconnecting-state buffer ceiling.
func WithReconnectingCeiling(n int) Opt {
	return func(c *Config) { c.reconnectingCeiling = n }
}

// WithLogger overrides the logger, which otherwise defaults to klog.Nop{}.
func WithLogger(l klog.Logger) Opt {
	return func(c *Config) { c.logger = l }
}

// WithClock overrides the clock returned by Config.Now. Timer-driven
// coordinator behavior does not use this clock.
func WithClock(now func() time.Time) Opt {
	return func(c *Config) { c.now = now }
}

// New builds a Config from its defaults plus the given options, in order.
func New(opts ...Opt) Config {
	c := Config{
		resolverRetryInterval: defaultResolverRetryInterval,
		resolverCacheTTL:      defaultResolverCacheTTL,
		connectingCeiling:     defaultConnectingCeiling,
		reconnectingCeiling:   defaultReconnectingCeiling,
		logger:                klog.Nop{},
		now:                   time.Now,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
