// File: transport/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Functional options shared by Engine and Server.

package transport

import (
	"log/slog"

	"github.com/momentics/hioload-wire/api"
	"github.com/momentics/hioload-wire/control"
	"github.com/momentics/hioload-wire/protocol"
)

// Middleware wraps a handler.
type Middleware func(protocol.Handler) protocol.Handler

// Option customizes Engine or Server initialization.
type Option func(*options)

type options struct {
	store      *control.ConfigStore
	logger     *slog.Logger
	metrics    api.Metrics
	probes     api.Debug
	middleware []Middleware
}

func newOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.store == nil {
		o.store = control.NewConfigStore(control.DefaultConfig())
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.metrics == nil {
		o.metrics = control.NewMetricsRegistry()
	}
	return o
}

// WithConfig sets a static configuration.
func WithConfig(cfg control.Config) Option {
	return func(o *options) {
		o.store = control.NewConfigStore(cfg)
	}
}

// WithConfigStore shares a runtime-updatable configuration. Updates apply
// to connections accepted afterwards.
func WithConfigStore(cs *control.ConfigStore) Option {
	return func(o *options) {
		o.store = cs
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics sets the registry receiving protocol counters.
func WithMetrics(m api.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithDebugProbes registers the transport's probes in dp.
func WithDebugProbes(dp api.Debug) Option {
	return func(o *options) {
		o.probes = dp
	}
}

// WithMiddleware attaches middleware in FIFO order.
func WithMiddleware(mw ...Middleware) Option {
	return func(o *options) {
		o.middleware = append(o.middleware, mw...)
	}
}
