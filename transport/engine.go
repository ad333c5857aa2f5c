// File: transport/engine.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// gnet event-loop connection layer.

package transport

import (
	"context"
	"time"

	"github.com/panjf2000/gnet/v2"

	"github.com/momentics/hioload-wire/api"
	"github.com/momentics/hioload-wire/control"
	"github.com/momentics/hioload-wire/internal/session"
	"github.com/momentics/hioload-wire/protocol"
)

// Engine serves protocol connections on gnet event loops.
type Engine struct {
	gnet.BuiltinEventEngine

	handler  protocol.Handler
	opts     options
	sessions *session.Manager
	ids      idGen

	eng    gnet.Engine
	booted chan struct{}
}

// engineConn is stored as the gnet connection context.
type engineConn struct {
	sess   *session.Session
	remote string
	pc     *protocol.Conn
	err    error
}

// NewEngine builds an engine dispatching events to h.
func NewEngine(h protocol.Handler, opts ...Option) *Engine {
	o := newOptions(opts)
	e := &Engine{
		handler:  o.chain(h),
		opts:     o,
		sessions: session.NewManager(64),
		booted:   make(chan struct{}),
	}
	o.registerProbes("engine", e.sessions)
	return e
}

// Run listens on the configured address and blocks until Stop.
func (e *Engine) Run() error {
	cfg := e.opts.store.Snapshot()
	if err := cfg.Validate(); err != nil {
		return err
	}
	return gnet.Run(e, "tcp://"+cfg.ListenAddr,
		gnet.WithMulticore(cfg.Multicore),
		gnet.WithReusePort(cfg.ReusePort),
		gnet.WithTCPNoDelay(gnet.TCPNoDelay),
		gnet.WithTicker(true),
	)
}

// Stop shuts the event loops down. It waits for the engine to boot first.
func (e *Engine) Stop(ctx context.Context) error {
	select {
	case <-e.booted:
	case <-ctx.Done():
		return ctx.Err()
	}
	return e.eng.Stop(ctx)
}

// Sessions returns the live connection registry.
func (e *Engine) Sessions() *session.Manager { return e.sessions }

func (e *Engine) OnBoot(eng gnet.Engine) gnet.Action {
	e.eng = eng
	close(e.booted)
	cfg := e.opts.store.Snapshot()
	e.opts.logger.Info("engine listening", "addr", cfg.ListenAddr, "multicore", cfg.Multicore)
	return gnet.None
}

func (e *Engine) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	ec := &engineConn{
		remote: c.RemoteAddr().String(),
		pc:     e.opts.newProtocolConn(e.handler, protocol.RoleServer),
	}
	ec.pc.SetUserData(c)
	c.SetContext(ec)
	sess, err := e.sessions.Create(e.ids.next("gnet"), c)
	if err != nil {
		ec.err = err
		return nil, gnet.Close
	}
	ec.sess = sess
	e.touch(ec, time.Now())
	e.opts.logger.Debug("connection opened", "remote", ec.remote)
	if err := ec.pc.Open(); err != nil {
		ec.err = err
		return nil, gnet.Close
	}
	out := ec.pc.Drain()
	e.opts.metrics.Add(control.MetricBytesOut, int64(len(out)))
	return out, gnet.None
}

// OnTraffic also runs after Wake with nothing buffered; that is the
// keepalive and idle tick.
func (e *Engine) OnTraffic(c gnet.Conn) gnet.Action {
	ec, ok := c.Context().(*engineConn)
	if !ok {
		return gnet.Close
	}

	var err error
	now := time.Now()
	if c.InboundBuffered() == 0 {
		if ec.sess.Expired(now) {
			err = ErrIdleTimeout
		}
	} else {
		buf, perr := c.Peek(-1)
		if perr != nil {
			ec.err = perr
			return gnet.Close
		}
		var n int
		n, err = ec.pc.Feed(buf)
		if n > 0 {
			_, _ = c.Discard(n)
			e.opts.metrics.Add(control.MetricBytesIn, int64(n))
		}
		e.touch(ec, now)
	}
	if err == nil {
		err = ec.pc.Tick()
	}
	if ferr := ec.pc.Flush(countingWriter{w: c, m: e.opts.metrics}); ferr != nil && err == nil {
		err = ferr
	}
	if err != nil {
		ec.err = err
		return gnet.Close
	}
	return gnet.None
}

func (e *Engine) OnTick() (time.Duration, gnet.Action) {
	cfg := e.opts.store.Snapshot()
	e.sessions.Range(func(s *session.Session) bool {
		if c, ok := s.Value().(gnet.Conn); ok {
			_ = c.Wake(nil)
		}
		return true
	})
	return cfg.TickInterval, gnet.None
}

func (e *Engine) OnClose(c gnet.Conn, err error) gnet.Action {
	ec, ok := c.Context().(*engineConn)
	if !ok {
		return gnet.None
	}
	if ec.err != nil {
		err = ec.err
	}
	ec.pc.Close(closeReason(err))
	if ec.sess != nil {
		e.sessions.Delete(ec.sess.ID())
	}
	e.opts.connEnded(ec.remote, err)
	return gnet.None
}

func (e *Engine) touch(ec *engineConn, now time.Time) {
	touchSession(ec.sess, ec.pc, e.opts.store.Snapshot().IdleTimeout, now)
}

// Shutdown starts the close handshake on every established WebSocket
// connection. It must be called before Stop to let peers see a Close frame.
func (e *Engine) Shutdown() {
	e.sessions.Range(func(s *session.Session) bool {
		if c, ok := s.Value().(gnet.Conn); ok {
			_ = c.Wake(func(c gnet.Conn, err error) error {
				if ec, ok := c.Context().(*engineConn); ok && ec.pc.State() == api.StateWebSocket {
					_ = ec.pc.SendClose(protocol.CloseGoingAway, "server shutdown")
					_ = ec.pc.Flush(countingWriter{w: c, m: e.opts.metrics})
				}
				return nil
			})
		}
		return true
	})
}

// countingWriter forwards vectored writes and counts the bytes written.
type countingWriter struct {
	w protocol.Writer
	m api.Metrics
}

func (cw countingWriter) Writev(bufs [][]byte) (int, error) {
	n, err := cw.w.Writev(bufs)
	cw.m.Add(control.MetricBytesOut, int64(n))
	return n, err
}
