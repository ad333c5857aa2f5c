// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Server configuration and a thread-safe store with reload propagation.

package control

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-wire/api"
	"github.com/momentics/hioload-wire/protocol"
)

// Config holds the settings of a listening server.
type Config struct {
	ListenAddr      string
	MaxRequestSize  int
	MaxBodySize     int
	MaxHeaders      int
	MaxFramePayload int64
	MaxMessageSize  int64
	PingInterval    time.Duration
	TickInterval    time.Duration // how often keepalive is evaluated
	IdleTimeout     time.Duration // HTTP-mode connections without traffic; 0 disables
	DocumentRoot    string        // empty disables static files
	Multicore       bool
	ReusePort       bool
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:      ":8000",
		MaxRequestSize:  protocol.MaxRequestSize,
		MaxBodySize:     protocol.MaxBodySize,
		MaxHeaders:      protocol.MaxHTTPHeaders,
		MaxFramePayload: protocol.MaxFramePayload,
		MaxMessageSize:  protocol.MaxMessageSize,
		PingInterval:    protocol.DefaultPingInterval,
		TickInterval:    time.Second,
		IdleTimeout:     time.Minute,
		Multicore:       true,
	}
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, invalid("listen address is empty"))
	}
	if c.MaxRequestSize <= 0 {
		errs = append(errs, invalid(fmt.Sprintf("max request size %d", c.MaxRequestSize)))
	}
	if c.MaxBodySize <= 0 {
		errs = append(errs, invalid(fmt.Sprintf("max body size %d", c.MaxBodySize)))
	}
	if c.MaxHeaders <= 0 {
		errs = append(errs, invalid(fmt.Sprintf("max headers %d", c.MaxHeaders)))
	}
	if c.MaxFramePayload <= 0 {
		errs = append(errs, invalid(fmt.Sprintf("max frame payload %d", c.MaxFramePayload)))
	}
	if c.MaxMessageSize < c.MaxFramePayload {
		errs = append(errs, invalid("max message size below max frame payload"))
	}
	if c.PingInterval <= 0 {
		errs = append(errs, invalid(fmt.Sprintf("ping interval %s", c.PingInterval)))
	}
	if c.TickInterval <= 0 || c.TickInterval > c.PingInterval {
		errs = append(errs, invalid(fmt.Sprintf("tick interval %s", c.TickInterval)))
	}
	if c.IdleTimeout < 0 {
		errs = append(errs, invalid(fmt.Sprintf("idle timeout %s", c.IdleTimeout)))
	}
	return errors.Join(errs...)
}

func invalid(msg string) error {
	return api.NewError(api.ErrCodeInvalidArgument, "config: "+msg)
}

// Limits converts the parser bounds to protocol.Limits.
func (c Config) Limits() protocol.Limits {
	return protocol.Limits{
		MaxRequestSize:  c.MaxRequestSize,
		MaxBodySize:     c.MaxBodySize,
		MaxHeaders:      c.MaxHeaders,
		MaxFramePayload: c.MaxFramePayload,
		MaxMessageSize:  c.MaxMessageSize,
	}
}

// ConfigStore holds the current Config. Reads are lock-free snapshots;
// updates notify registered listeners.
type ConfigStore struct {
	cur       atomic.Pointer[Config]
	mu        sync.Mutex
	listeners []func(Config)
}

// NewConfigStore initializes a store with cfg.
func NewConfigStore(cfg Config) *ConfigStore {
	cs := &ConfigStore{}
	cs.cur.Store(&cfg)
	return cs
}

// Snapshot returns the current configuration.
func (cs *ConfigStore) Snapshot() Config {
	return *cs.cur.Load()
}

// Update applies fn to a copy of the current configuration, validates the
// result and publishes it.
func (cs *ConfigStore) Update(fn func(*Config)) error {
	cs.mu.Lock()
	next := *cs.cur.Load()
	fn(&next)
	if err := next.Validate(); err != nil {
		cs.mu.Unlock()
		return err
	}
	cs.cur.Store(&next)
	listeners := slices.Clone(cs.listeners)
	cs.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
	return nil
}

// OnReload registers a listener called synchronously after each update.
func (cs *ConfigStore) OnReload(fn func(Config)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}
