// File: transport/client.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Outbound connections: a dialed socket driven by a client-role protocol.Conn.

package transport

import (
	"context"
	"net"

	"github.com/momentics/hioload-wire/internal/session"
	"github.com/momentics/hioload-wire/protocol"
)

// Client is an outbound connection. The handler receives ConnOpened first
// and typically sends a request or a WebSocket handshake from there.
type Client struct {
	nc   net.Conn
	sess *session.Session
	err  error
}

// Dial connects to addr and serves the connection on its own goroutine.
// Options are shared with Engine and Server; ListenAddr is ignored.
func Dial(ctx context.Context, addr string, h protocol.Handler, opts ...Option) (*Client, error) {
	o := newOptions(opts)
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	sessions := session.NewManager(1)
	sess, err := sessions.Create(addr, nc)
	if err != nil {
		nc.Close()
		return nil, err
	}

	cfg := o.store.Snapshot()
	pc := o.newProtocolConn(o.chain(h), protocol.RoleClient)
	pc.SetUserData(nc)
	c := &Client{nc: nc, sess: sess}
	p := &pump{
		nc:      nc,
		pc:      pc,
		w:       &netWriter{conn: nc, m: o.metrics},
		sess:    sess,
		metrics: o.metrics,
		tick:    cfg.TickInterval,
		idle:    cfg.IdleTimeout,
	}
	o.logger.Debug("connection dialed", "remote", addr)
	go func() {
		err := p.run()
		nc.Close()
		pc.Close(closeReason(err))
		c.err = err
		o.connEnded(addr, err)
		sessions.Delete(sess.ID())
	}()
	return c, nil
}

// Done is closed once the connection has ended and ConnClosed was delivered.
func (c *Client) Done() <-chan struct{} { return c.sess.Done() }

// Wait blocks until the connection ends and returns the reason, nil for an
// orderly close.
func (c *Client) Wait() error {
	<-c.sess.Done()
	return closeReason(c.err)
}

// Close tears the connection down and waits for the handler to see
// ConnClosed.
func (c *Client) Close() error {
	err := c.nc.Close()
	<-c.sess.Done()
	return err
}

// RemoteAddr returns the peer address.
func (c *Client) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }
