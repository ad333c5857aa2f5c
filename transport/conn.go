// File: transport/conn.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Glue shared by the connection layers: handler chain, per-connection
// protocol state, close classification.

package transport

import (
	"errors"
	"io"
	"net"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/momentics/hioload-wire/api"
	"github.com/momentics/hioload-wire/control"
	"github.com/momentics/hioload-wire/internal/session"
	"github.com/momentics/hioload-wire/protocol"
)

// chain builds the handler seen by every connection: metrics first, then
// middleware in registration order, then h.
func (o *options) chain(h protocol.Handler) protocol.Handler {
	for i := len(o.middleware) - 1; i >= 0; i-- {
		h = o.middleware[i](h)
	}
	return countEvents(o.metrics)(h)
}

// countEvents is the middleware maintaining the event counters.
func countEvents(m api.Metrics) Middleware {
	return func(next protocol.Handler) protocol.Handler {
		return protocol.HandlerFunc(func(c *protocol.Conn, ev api.Event) error {
			switch ev.(type) {
			case api.ConnOpened:
				m.Inc(control.MetricConnections)
			case api.HTTPRequest:
				m.Inc(control.MetricHTTPRequests)
			case api.WSHandshakeDone:
				m.Inc(control.MetricHandshakes)
			case api.WSFrame:
				m.Inc(control.MetricWSFrames)
			case api.WSControlFrame:
				m.Inc(control.MetricWSControlFrames)
			}
			return next.HandleEvent(c, ev)
		})
	}
}

// newProtocolConn creates the protocol state of a connection from the
// current configuration.
func (o *options) newProtocolConn(h protocol.Handler, role protocol.Role) *protocol.Conn {
	cfg := o.store.Snapshot()
	opts := []protocol.Option{
		protocol.WithLimits(cfg.Limits()),
		protocol.WithPingInterval(cfg.PingInterval),
	}
	if role == protocol.RoleClient {
		return protocol.NewClientConn(h, opts...)
	}
	return protocol.NewConn(h, opts...)
}

func (o *options) registerProbes(name string, sessions *session.Manager) {
	if o.probes == nil {
		return
	}
	o.probes.RegisterProbe(name+".active_connections", func() any { return sessions.Len() })
}

// closeReason maps the error that ended a connection to the reason reported
// in ConnClosed; orderly ends map to nil.
func closeReason(err error) error {
	switch {
	case err == nil,
		errors.Is(err, api.ErrConnClosing),
		errors.Is(err, ErrServerClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, net.ErrClosed):
		return nil
	}
	return err
}

// connEnded logs how a connection ended and updates counters.
func (o *options) connEnded(remote string, err error) {
	switch {
	case closeReason(err) == nil:
		o.logger.Debug("connection closed", "remote", remote)
	case errors.Is(err, api.ErrMalformed):
		o.metrics.Inc(control.MetricMalformed)
		o.logger.Warn("malformed input", "remote", remote, "reason", api.Reason(err))
	case errors.Is(err, api.ErrKeepaliveTimeout):
		o.metrics.Inc(control.MetricKeepaliveTimeouts)
		o.logger.Info("keepalive timeout", "remote", remote)
	case errors.Is(err, ErrIdleTimeout):
		o.logger.Debug("idle connection closed", "remote", remote)
	case errors.Is(err, os.ErrDeadlineExceeded):
		o.logger.Debug("connection timed out", "remote", remote)
	default:
		o.logger.Warn("connection error", "remote", remote, "err", err)
	}
}

// idGen issues connection identifiers unique within one process.
type idGen struct{ n atomic.Uint64 }

func (g *idGen) next(prefix string) string {
	return prefix + "-" + strconv.FormatUint(g.n.Add(1), 10)
}
