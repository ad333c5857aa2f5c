// File: transport/pump.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Read/feed/flush loop shared by accepted and dialed net.Conn connections.

package transport

import (
	"errors"
	"net"
	"time"

	"github.com/momentics/hioload-wire/api"
	"github.com/momentics/hioload-wire/control"
	"github.com/momentics/hioload-wire/internal/session"
	"github.com/momentics/hioload-wire/protocol"
)

// ErrIdleTimeout ends an HTTP-mode connection that saw no traffic for the
// configured idle timeout.
var ErrIdleTimeout = errors.New("transport: idle timeout")

const initialReadBuffer = 4096

// pump drives one net.Conn through its protocol.Conn until either side ends
// it. The read deadline doubles as the keepalive tick.
type pump struct {
	nc       net.Conn
	pc       *protocol.Conn
	w        *netWriter
	sess     *session.Session
	metrics  api.Metrics
	tick     time.Duration
	idle     time.Duration
	draining func() bool // nil for dialed connections
}

func (p *pump) run() error {
	p.touch(time.Now())
	err := p.pc.Open()
	if err == nil {
		err = p.pc.Flush(p.w)
	}
	if err == nil {
		err = p.loop()
	}
	if ferr := p.pc.Flush(p.w); ferr != nil && err == nil {
		err = ferr
	}
	return err
}

func (p *pump) loop() error {
	buf := make([]byte, 0, initialReadBuffer)
	for {
		if len(buf) == cap(buf) {
			grown := make([]byte, len(buf), 2*cap(buf))
			copy(grown, buf)
			buf = grown
		}
		_ = p.nc.SetReadDeadline(time.Now().Add(p.tick))
		n, rerr := p.nc.Read(buf[len(buf):cap(buf)])
		buf = buf[:len(buf)+n]
		now := time.Now()

		var err error
		if n > 0 {
			p.metrics.Add(control.MetricBytesIn, int64(n))
			var consumed int
			consumed, err = p.pc.Feed(buf)
			buf = buf[:copy(buf, buf[consumed:])]
			p.touch(now)
		}
		if err == nil {
			err = p.pc.Tick()
		}
		if err == nil && n == 0 && p.sess.Expired(now) {
			err = ErrIdleTimeout
		}
		if err == nil && p.draining != nil && p.draining() {
			if p.pc.State() != api.StateWebSocket {
				err = ErrServerClosed
			} else {
				err = p.pc.SendClose(protocol.CloseGoingAway, "server shutdown")
			}
		}
		if ferr := p.pc.Flush(p.w); ferr != nil && err == nil {
			err = ferr
		}
		if err != nil {
			return err
		}
		if rerr != nil {
			var ne net.Error
			if errors.As(rerr, &ne) && ne.Timeout() {
				continue
			}
			return rerr
		}
	}
}

func (p *pump) touch(now time.Time) {
	touchSession(p.sess, p.pc, p.idle, now)
}

// touchSession moves the idle deadline of an HTTP-mode connection past now.
// WebSocket connections are governed by keepalive and carry no deadline.
func touchSession(sess *session.Session, pc *protocol.Conn, idle time.Duration, now time.Time) {
	if idle <= 0 || pc.State() == api.StateWebSocket {
		sess.SetDeadline(time.Time{})
		return
	}
	sess.SetDeadline(now.Add(idle))
}
