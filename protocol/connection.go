// File: protocol/connection.go
// Package protocol implements the per-connection protocol dispatcher.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Conn selects HTTP parsing or WebSocket framing for one connection, emits
// one event per recognized unit, and queues outbound bytes until the
// connection layer flushes them. Conn is not safe for concurrent use; the
// connection layer serializes Feed, Tick, Flush and Close.

package protocol

import (
	"errors"
	"fmt"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-wire/api"
	"github.com/momentics/hioload-wire/pool"
)

// Handler receives the events of a connection in arrival order. A non-nil
// error terminates the connection.
type Handler interface {
	HandleEvent(c *Conn, ev api.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(c *Conn, ev api.Event) error

// HandleEvent calls f(c, ev).
func (f HandlerFunc) HandleEvent(c *Conn, ev api.Event) error { return f(c, ev) }

// Writer is the connection layer's vectored send primitive. It must not
// retain bufs after returning.
type Writer interface {
	Writev(bufs [][]byte) (int, error)
}

// Role tells whether the local side accepted or initiated the connection.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

// connState is the protocol mode of a connection. Every mode is one of the
// types below.
type connState interface {
	kind() api.ConnState
}

type awaitingHTTP struct{}

type awaitingHandshakeReply struct {
	key      string
	deadline time.Time
}

type wsEstablished struct {
	keepalive Keepalive
}

type connClosed struct{}

func (awaitingHTTP) kind() api.ConnState           { return api.StateAwaitingHTTP }
func (awaitingHandshakeReply) kind() api.ConnState { return api.StateAwaitingHandshakeReply }
func (*wsEstablished) kind() api.ConnState         { return api.StateWebSocket }
func (connClosed) kind() api.ConnState             { return api.StateClosed }

// handshakeReply collects the handler's decisions during WSHandshakeRequest.
type handshakeReply struct {
	rejected bool
	extra    []HeaderField
}

// Option customizes a Conn.
type Option func(*Conn)

// WithLimits overrides DefaultLimits.
func WithLimits(l Limits) Option {
	return func(c *Conn) { c.limits = l.withDefaults() }
}

// WithPingInterval sets the keepalive interval of established WebSocket
// connections.
func WithPingInterval(d time.Duration) Option {
	return func(c *Conn) { c.pingInterval = d }
}

// WithHandshakeTimeout bounds how long a client waits for the upgrade
// reply. Zero disables the bound.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Conn) { c.handshakeTimeout = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Conn) { c.now = now }
}

// WithBufferPool sets the pool outbound buffers are drawn from.
func WithBufferPool(p api.BytePool) Option {
	return func(c *Conn) { c.bufs = p }
}

// Conn is the protocol state of one connection.
type Conn struct {
	role         Role
	handler      Handler
	state        connState
	framer       *Framer
	limits       Limits
	pingInterval time.Duration
	now          func() time.Time
	bufs         api.BytePool

	handshakeTimeout time.Duration

	msg    api.HTTPMessage
	out    *queue.Queue
	outLen int
	iov    [][]byte

	hs        *handshakeReply
	closeSent bool
	finished  bool
	userData  any
}

// NewConn creates a server-role connection.
func NewConn(h Handler, opts ...Option) *Conn {
	return newConn(RoleServer, h, opts)
}

// NewClientConn creates a client-role connection. Inbound frames may be
// unmasked and outbound frames are masked.
func NewClientConn(h Handler, opts ...Option) *Conn {
	return newConn(RoleClient, h, opts)
}

func newConn(role Role, h Handler, opts []Option) *Conn {
	c := &Conn{
		role:         role,
		handler:      h,
		state:        awaitingHTTP{},
		limits:       DefaultLimits,
		pingInterval: DefaultPingInterval,
		now:          time.Now,
		bufs:         pool.Default,
		out:          queue.New(),

		handshakeTimeout: DefaultHandshakeTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.framer = NewFramer(role == RoleServer, c.limits)
	return c
}

// Role returns the connection role.
func (c *Conn) Role() Role { return c.role }

// State reports the current protocol mode.
func (c *Conn) State() api.ConnState { return c.state.kind() }

// SetUserData attaches application data to the connection.
func (c *Conn) SetUserData(v any) { c.userData = v }

// UserData returns the value set by SetUserData.
func (c *Conn) UserData() any { return c.userData }

// Open reports a newly opened connection to the handler.
func (c *Conn) Open() error {
	return c.emit(api.ConnOpened{})
}

// Feed processes buf, the bytes received so far and not yet consumed. It
// emits an event for every complete unit and returns how many bytes were
// consumed; the caller keeps the rest for the next call.
//
// A non-nil error means the connection must be closed after flushing:
// api.ErrConnClosing after a Close handshake, an api.ErrMalformed error on a
// protocol violation, or the error returned by the handler.
func (c *Conn) Feed(buf []byte) (int, error) {
	if _, ok := c.state.(connClosed); ok {
		return 0, api.ErrConnClosed
	}
	consumed := 0
	for consumed < len(buf) {
		n, err := c.step(buf[consumed:])
		consumed += n
		if err != nil {
			return consumed, err
		}
		if n == 0 {
			break
		}
	}
	return consumed, nil
}

func (c *Conn) step(buf []byte) (int, error) {
	switch st := c.state.(type) {
	case awaitingHTTP:
		return c.stepHTTP(buf, "")
	case awaitingHandshakeReply:
		return c.stepHTTP(buf, st.key)
	case *wsEstablished:
		return c.stepWebSocket(st, buf)
	case connClosed:
		return 0, api.ErrConnClosed
	default:
		panic(fmt.Sprintf("protocol: unknown connection state %T", st))
	}
}

func (c *Conn) stepHTTP(buf []byte, key string) (int, error) {
	n, err := ParseHTTPWithLimits(buf, &c.msg, c.limits)
	if err != nil {
		return 0, c.fail(err)
	}
	if n == 0 {
		return 0, nil
	}
	msg := &c.msg
	switch {
	case key != "" && msg.IsReply():
		if VerifyHandshakeReply(msg, key) {
			c.establish()
			return n, c.emit(api.WSHandshakeDone{})
		}
		c.state = awaitingHTTP{}
		return n, c.emit(api.HTTPReply{Msg: msg})
	case msg.IsReply():
		return n, c.emit(api.HTTPReply{Msg: msg})
	case c.role == RoleServer && IsWebSocketUpgrade(msg):
		return n, c.upgrade(msg)
	default:
		return n, c.emit(api.HTTPRequest{Msg: msg})
	}
}

func (c *Conn) upgrade(msg *api.HTTPMessage) error {
	c.hs = &handshakeReply{}
	err := c.emit(api.WSHandshakeRequest{Msg: msg})
	hs := c.hs
	c.hs = nil
	if err != nil {
		return err
	}
	if hs.rejected {
		return c.emit(api.HTTPRequest{Msg: msg})
	}
	key, _ := msg.FindHeader(HeaderSecWebSocketKey)
	resp, err := AppendHandshakeResponse(c.bufs.Get(), key, hs.extra)
	if err != nil {
		return err
	}
	c.enqueue(resp)
	c.establish()
	return c.emit(api.WSHandshakeDone{})
}

func (c *Conn) establish() {
	c.state = &wsEstablished{keepalive: NewKeepalive(c.pingInterval, c.now())}
}

func (c *Conn) stepWebSocket(st *wsEstablished, buf []byte) (int, error) {
	n, m, err := c.framer.Decode(buf)
	if err != nil {
		return 0, c.fail(err)
	}
	if n == 0 {
		return 0, nil
	}
	st.keepalive.Seen(c.now())
	if m == nil {
		return n, nil
	}
	if !m.Opcode().IsControl() {
		return n, c.emit(api.WSFrame{Msg: m})
	}

	closing := false
	switch m.Opcode() {
	case api.OpPing:
		c.queueFrame(api.OpPong, true, m.Payload)
	case api.OpClose:
		closing = true
		if !c.closeSent {
			var status []byte
			if len(m.Payload) >= 2 {
				status = m.Payload[:2]
			}
			c.queueFrame(api.OpClose, true, status)
			c.closeSent = true
		}
	}
	if err := c.emit(api.WSControlFrame{Msg: m}); err != nil {
		return n, err
	}
	if closing {
		c.state = connClosed{}
		c.framer.Reset()
		return n, api.ErrConnClosing
	}
	return n, nil
}

// fail makes a protocol violation terminal. Established WebSocket peers get
// a Close frame describing the violation.
func (c *Conn) fail(err error) error {
	if _, ok := c.state.(*wsEstablished); ok && !c.closeSent {
		code := CloseProtocolError
		if errors.Is(err, api.ErrTooLarge) {
			code = CloseMessageTooBig
		}
		c.queueFrame(api.OpClose, true, appendClosePayload(nil, code, ""))
		c.closeSent = true
	}
	c.state = connClosed{}
	c.framer.Reset()
	return err
}

// Tick applies the keepalive policy. It queues a Ping when one is due and
// returns api.ErrKeepaliveTimeout when the peer went silent. A client whose
// upgrade reply is overdue gets api.ErrHandshakeTimeout.
func (c *Conn) Tick() error {
	if st, ok := c.state.(awaitingHandshakeReply); ok {
		if !st.deadline.IsZero() && !c.now().Before(st.deadline) {
			c.state = connClosed{}
			return api.ErrHandshakeTimeout
		}
		return nil
	}
	st, ok := c.state.(*wsEstablished)
	if !ok {
		return nil
	}
	switch st.keepalive.Check(c.now()) {
	case KeepaliveSendPing:
		c.queueFrame(api.OpPing, true)
	case KeepaliveTimeout:
		c.state = connClosed{}
		c.framer.Reset()
		return api.ErrKeepaliveTimeout
	}
	return nil
}

// Close discards all protocol state and reports ConnClosed once. reason is
// nil for an orderly close.
func (c *Conn) Close(reason error) {
	if c.finished {
		return
	}
	c.finished = true
	c.state = connClosed{}
	c.framer.Reset()
	for c.out.Length() > 0 {
		c.bufs.Put(c.out.Remove().([]byte))
	}
	c.outLen = 0
	_ = c.emit(api.ConnClosed{Err: reason})
}

func (c *Conn) emit(ev api.Event) error {
	if c.handler == nil {
		return nil
	}
	return c.handler.HandleEvent(c, ev)
}

// RejectHandshake, called while handling WSHandshakeRequest, keeps the
// connection in HTTP mode; the request is then delivered as HTTPRequest.
func (c *Conn) RejectHandshake() {
	if c.hs != nil {
		c.hs.rejected = true
	}
}

// AddHandshakeHeader, called while handling WSHandshakeRequest, adds a
// header to the 101 response.
func (c *Conn) AddHandshakeHeader(name, value string) {
	if c.hs != nil {
		c.hs.extra = append(c.hs.extra, HeaderField{Name: name, Value: value})
	}
}

// Send queues raw bytes. p is copied.
func (c *Conn) Send(p []byte) error {
	if c.finished {
		return api.ErrConnClosed
	}
	c.enqueue(append(c.bufs.Get(), p...))
	return nil
}

// SendHTTPResponse queues a complete response with a Content-Length body.
func (c *Conn) SendHTTPResponse(status int, headers []HeaderField, body []byte) error {
	if c.finished {
		return api.ErrConnClosed
	}
	b, err := AppendResponse(c.bufs.Get(), status, headers, body)
	if err != nil {
		return err
	}
	c.enqueue(b)
	return nil
}

// SendHTTPResponseHead queues a status line and headers. It is followed by
// SendHTTPChunk calls when headers declare Transfer-Encoding: chunked.
func (c *Conn) SendHTTPResponseHead(status int, headers []HeaderField) error {
	if c.finished {
		return api.ErrConnClosed
	}
	b, err := AppendResponseHead(c.bufs.Get(), status, headers)
	if err != nil {
		return err
	}
	c.enqueue(b)
	return nil
}

// SendHTTPChunk queues one body chunk. An empty chunk ends the body and
// must be sent exactly once.
func (c *Conn) SendHTTPChunk(data []byte) error {
	if c.finished {
		return api.ErrConnClosed
	}
	c.enqueue(AppendChunk(c.bufs.Get(), data))
	return nil
}

// PrintfHTTPChunk queues one formatted chunk.
func (c *Conn) PrintfHTTPChunk(format string, args ...any) error {
	return c.SendHTTPChunk(fmt.Appendf(nil, format, args...))
}

// SendWebSocketFrame queues one final frame.
func (c *Conn) SendWebSocketFrame(op api.Opcode, payload []byte) error {
	return c.SendWebSocketFrameV(op, payload)
}

// SendWebSocketFrameV queues one final frame whose payload is the
// concatenation of segments.
func (c *Conn) SendWebSocketFrameV(op api.Opcode, segments ...[]byte) error {
	if err := c.checkWebSocket(op, segments); err != nil {
		return err
	}
	c.queueFrame(op, true, segments...)
	return nil
}

// SendWebSocketFragment queues one frame with an explicit FIN bit, for
// streaming a message in pieces. Follow-up fragments use OpContinuation.
func (c *Conn) SendWebSocketFragment(op api.Opcode, payload []byte, fin bool) error {
	if err := c.checkWebSocket(op, [][]byte{payload}); err != nil {
		return err
	}
	if op.IsControl() && !fin {
		return api.ErrInvalidArgument
	}
	c.queueFrame(op, fin, payload)
	return nil
}

// PrintfWebSocketFrame queues one final frame with a formatted payload.
func (c *Conn) PrintfWebSocketFrame(op api.Opcode, format string, args ...any) error {
	return c.SendWebSocketFrame(op, fmt.Appendf(nil, format, args...))
}

// SendClose starts the close handshake. The reason is truncated to fit a
// control frame.
func (c *Conn) SendClose(code int, reason string) error {
	if _, ok := c.state.(*wsEstablished); !ok {
		return api.ErrWrongState
	}
	if c.closeSent {
		return nil
	}
	if len(reason) > MaxControlPayloadLen-2 {
		reason = reason[:MaxControlPayloadLen-2]
	}
	c.queueFrame(api.OpClose, true, appendClosePayload(nil, code, reason))
	c.closeSent = true
	return nil
}

// SendWebSocketHandshake queues the client's upgrade request. The reply is
// verified when it arrives; on success the handler sees WSHandshakeDone.
func (c *Conn) SendWebSocketHandshake(uri, host string, extra []HeaderField) error {
	if c.role != RoleClient {
		return api.ErrWrongState
	}
	if _, ok := c.state.(awaitingHTTP); !ok {
		return api.ErrWrongState
	}
	key, err := NewClientKey()
	if err != nil {
		return err
	}
	req, err := AppendHandshakeRequest(c.bufs.Get(), uri, host, key, extra)
	if err != nil {
		return err
	}
	c.enqueue(req)
	st := awaitingHandshakeReply{key: key}
	if c.handshakeTimeout > 0 {
		st.deadline = c.now().Add(c.handshakeTimeout)
	}
	c.state = st
	return nil
}

func (c *Conn) checkWebSocket(op api.Opcode, segments [][]byte) error {
	if c.finished {
		return api.ErrConnClosed
	}
	if _, ok := c.state.(*wsEstablished); !ok {
		return api.ErrWrongState
	}
	if !op.Valid() {
		return api.ErrInvalidArgument
	}
	if op.IsControl() {
		n := 0
		for _, s := range segments {
			n += len(s)
		}
		if n > MaxControlPayloadLen {
			return api.ErrInvalidArgument
		}
	}
	return nil
}

func (c *Conn) queueFrame(op api.Opcode, fin bool, segments ...[]byte) {
	b := c.bufs.Get()
	if c.role == RoleClient {
		b = AppendMaskedFrameV(b, op, fin, newMaskKey(), segments...)
	} else {
		b = AppendFrameV(b, op, fin, segments...)
	}
	c.enqueue(b)
}

func (c *Conn) enqueue(b []byte) {
	c.out.Add(b)
	c.outLen += len(b)
}

// Pending returns the number of queued outbound bytes.
func (c *Conn) Pending() int { return c.outLen }

// Flush hands all queued outbound bytes to w in one vectored write.
func (c *Conn) Flush(w Writer) error {
	if c.out.Length() == 0 {
		return nil
	}
	c.iov = c.iov[:0]
	for c.out.Length() > 0 {
		c.iov = append(c.iov, c.out.Remove().([]byte))
	}
	c.outLen = 0
	_, err := w.Writev(c.iov)
	for i, b := range c.iov {
		c.bufs.Put(b)
		c.iov[i] = nil
	}
	return err
}

// Drain returns all queued outbound bytes as one owned slice.
func (c *Conn) Drain() []byte {
	out := make([]byte, 0, c.outLen)
	for c.out.Length() > 0 {
		b := c.out.Remove().([]byte)
		out = append(out, b...)
		c.bufs.Put(b)
	}
	c.outLen = 0
	return out
}
