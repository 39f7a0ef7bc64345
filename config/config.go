// Package config holds fastclient's configuration surface (spec §6
// "Configuration surface"). Unlike the teacher's flag-driven config.New,
// a library cannot call flag.Parse itself without stealing the embedding
// binary's flags, so this package builds a Config via functional options
// instead. An embedding binary that wants flags turns flag values into
// these options at its own call site.
package config

import (
	"log"
	"time"

	"github.com/searchktools/fastclient/core/pools"
	"github.com/searchktools/fastclient/core/retry"
	"github.com/searchktools/fastclient/core/transport"
)

// Config is the pool-shaped subset of spec §6's configuration surface,
// plus the ambient knobs (logging, GC tuning) the teacher always carries.
type Config struct {
	MaxConnections        int
	MaxConnectionsPerHost int
	IdleTimeout           time.Duration
	MaxAge                time.Duration
	MaxRequestsPerConn    int64
	ReaperInterval        time.Duration

	RetryPolicy retry.Policy
	Dial        transport.DialFunc
	Logger      *log.Logger

	GCProfile *pools.GCConfig
}

// Option configures a Config.
type Option func(*Config)

// Default returns the recommended starting point: a generous global
// ceiling, a conservative per-host ceiling, and retry.DefaultPolicy.
func Default() Config {
	return Config{
		MaxConnections:        256,
		MaxConnectionsPerHost: 8,
		IdleTimeout:           90 * time.Second,
		MaxAge:                0,
		ReaperInterval:        30 * time.Second,
		RetryPolicy:           retry.DefaultPolicy(),
		Logger:                log.Default(),
	}
}

// New builds a Config starting from Default and applying opts in order.
func New(opts ...Option) Config {
	cfg := Default()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithMaxConnections sets the global connection ceiling across all
// origins (spec §6 "max-connections").
func WithMaxConnections(n int) Option {
	return func(c *Config) { c.MaxConnections = n }
}

// WithMaxConnectionsPerHost sets the per-HostPool ceiling (spec §6
// "max-connections-per-host").
func WithMaxConnectionsPerHost(n int) Option {
	return func(c *Config) { c.MaxConnectionsPerHost = n }
}

// WithIdleTimeout reaps idle Connections older than d (spec §6
// "idle-timeout").
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Config) { c.IdleTimeout = d }
}

// WithMaxAge force-closes Connections older than d regardless of
// idleness (spec §6 "max-age").
func WithMaxAge(d time.Duration) Option {
	return func(c *Config) { c.MaxAge = d }
}

// WithMaxRequestsPerConnection force-closes a Connection after n
// successful responses (spec §6 "max-requests-per-connection").
func WithMaxRequestsPerConnection(n int64) Option {
	return func(c *Config) { c.MaxRequestsPerConn = n }
}

// WithReaperInterval sets how often the background reaper scans for
// stale idle Connections (spec §6 "reaper-interval").
func WithReaperInterval(d time.Duration) Option {
	return func(c *Config) { c.ReaperInterval = d }
}

// WithRetryPolicy overrides the default RetryPolicy (spec §6
// "retry-policy", spec 4.D).
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Config) { c.RetryPolicy = p }
}

// WithDial substitutes the dialer used to open new Connections, mainly
// for tests.
func WithDial(dial transport.DialFunc) Option {
	return func(c *Config) { c.Dial = dial }
}

// WithLogger overrides the lifecycle logger (default log.Default()).
func WithLogger(logger *log.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// WithGCProfile applies a pools.GCConfig at Client construction time, for
// high-throughput embedders who want the teacher's GC tuning knobs
// (spec Non-goals exclude features, not ambient runtime tuning).
func WithGCProfile(profile pools.GCConfig) Option {
	return func(c *Config) { c.GCProfile = &profile }
}
