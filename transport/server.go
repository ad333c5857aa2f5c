// File: transport/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Portable net.Conn connection layer, one goroutine per connection.

package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-wire/api"
	"github.com/momentics/hioload-wire/control"
	"github.com/momentics/hioload-wire/internal/session"
	"github.com/momentics/hioload-wire/protocol"
)

// ErrServerClosed is returned by Serve after Close.
var ErrServerClosed = errors.New("transport: server closed")

// Server serves protocol connections over net.Listener.
type Server struct {
	handler  protocol.Handler
	opts     options
	sessions *session.Manager
	ids      idGen

	mu       sync.Mutex
	ln       net.Listener
	closed   bool
	draining atomic.Bool
	wg       sync.WaitGroup
}

// NewServer builds a server dispatching events to h.
func NewServer(h protocol.Handler, opts ...Option) *Server {
	o := newOptions(opts)
	s := &Server{
		handler:  o.chain(h),
		opts:     o,
		sessions: session.NewManager(64),
	}
	o.registerProbes("server", s.sessions)
	return s
}

// ListenAndServe listens on the configured address and serves until Close.
func (s *Server) ListenAndServe() error {
	cfg := s.opts.store.Snapshot()
	if err := cfg.Validate(); err != nil {
		return err
	}
	lc := listenConfig(cfg.ReusePort)
	ln, err := lc.Listen(context.Background(), "tcp", cfg.ListenAddr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Close.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.ln = ln
	s.mu.Unlock()
	s.opts.logger.Info("server listening", "addr", ln.Addr().String())

	var delay time.Duration
	for {
		nc, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed || s.draining.Load() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				delay = min(max(2*delay, 5*time.Millisecond), time.Second)
				s.opts.logger.Warn("accept error", "err", err, "retry", delay)
				time.Sleep(delay)
				continue
			}
			return err
		}
		delay = 0
		sess, err := s.sessions.Create(s.ids.next("net"), nc)
		if err != nil {
			nc.Close()
			continue
		}
		s.wg.Add(1)
		go s.serveConn(sess, nc)
	}
}

// Addr returns the listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Sessions returns the live connection registry.
func (s *Server) Sessions() *session.Manager { return s.sessions }

// Close stops accepting, closes every connection and waits for their
// goroutines to finish.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var err error
	if s.ln != nil {
		if cerr := s.ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
	}
	s.mu.Unlock()

	for _, sess := range s.sessions.Snapshot() {
		if nc, ok := sess.Value().(net.Conn); ok {
			nc.Close()
		}
	}
	s.wg.Wait()
	return err
}

func (s *Server) serveConn(sess *session.Session, nc net.Conn) {
	defer s.wg.Done()
	remote := nc.RemoteAddr().String()
	cfg := s.opts.store.Snapshot()
	pc := s.opts.newProtocolConn(s.handler, protocol.RoleServer)
	pc.SetUserData(nc)
	s.opts.logger.Debug("connection opened", "remote", remote)

	p := &pump{
		nc:       nc,
		pc:       pc,
		w:        &netWriter{conn: nc, m: s.opts.metrics},
		sess:     sess,
		metrics:  s.opts.metrics,
		tick:     cfg.TickInterval,
		idle:     cfg.IdleTimeout,
		draining: s.draining.Load,
	}
	err := p.run()
	nc.Close()
	pc.Close(closeReason(err))
	s.sessions.Delete(sess.ID())
	s.opts.connEnded(remote, err)
}

// Shutdown sends a Close frame to every established WebSocket connection
// and then closes the server once ctx expires or all peers disconnected.
func (s *Server) Shutdown(ctx context.Context) error {
	s.draining.Store(true)
	s.mu.Lock()
	if s.ln != nil {
		s.ln.Close()
	}
	s.mu.Unlock()
	for _, sess := range s.sessions.Snapshot() {
		if nc, ok := sess.Value().(net.Conn); ok {
			// Wake the reader so it observes draining.
			_ = nc.SetReadDeadline(time.Now())
		}
	}
	for _, sess := range s.sessions.Snapshot() {
		select {
		case <-sess.Done():
		case <-ctx.Done():
			return errors.Join(ctx.Err(), s.Close())
		}
	}
	return s.Close()
}

// netWriter implements protocol.Writer with net.Buffers.
type netWriter struct {
	conn    net.Conn
	m       api.Metrics
	scratch net.Buffers
}

func (w *netWriter) Writev(bufs [][]byte) (int, error) {
	// WriteTo consumes its receiver; the caller still owns bufs.
	w.scratch = append(w.scratch[:0], bufs...)
	n, err := w.scratch.WriteTo(w.conn)
	clear(w.scratch[:cap(w.scratch)])
	w.m.Add(control.MetricBytesOut, n)
	return int(n), err
}

var _ protocol.Writer = (*netWriter)(nil)
