// File: api/events.go
// Package api defines the protocol event variants.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Event is one protocol unit delivered to the application, in arrival order
// per connection. The set of variants is closed.
type Event interface {
	Code() EventCode
	event()
}

// EventCode is the stable integer form of an event kind, for use at
// serialization boundaries only.
type EventCode int

const (
	EventConnOpened         EventCode = 1
	EventConnClosed         EventCode = 5
	EventHTTPRequest        EventCode = 100
	EventHTTPReply          EventCode = 101
	EventWSHandshakeRequest EventCode = 111
	EventWSHandshakeDone    EventCode = 112
	EventWSFrame            EventCode = 113
	EventWSControlFrame     EventCode = 114
)

func (c EventCode) String() string {
	switch c {
	case EventConnOpened:
		return "conn_opened"
	case EventConnClosed:
		return "conn_closed"
	case EventHTTPRequest:
		return "http_request"
	case EventHTTPReply:
		return "http_reply"
	case EventWSHandshakeRequest:
		return "ws_handshake_request"
	case EventWSHandshakeDone:
		return "ws_handshake_done"
	case EventWSFrame:
		return "ws_frame"
	case EventWSControlFrame:
		return "ws_control_frame"
	default:
		return "unknown"
	}
}

// ConnOpened is emitted once when the connection layer reports a new connection.
type ConnOpened struct{}

// ConnClosed is emitted once when the connection is torn down. Err is nil on
// an orderly close.
type ConnClosed struct {
	Err error
}

// HTTPRequest carries a complete request. Msg views are valid only during
// the handler call.
type HTTPRequest struct {
	Msg *HTTPMessage
}

// HTTPReply carries a complete response (client role).
type HTTPReply struct {
	Msg *HTTPMessage
}

// WSHandshakeRequest is emitted before the 101 response is queued. The
// handler may reject or decorate the handshake through the connection.
type WSHandshakeRequest struct {
	Msg *HTTPMessage
}

// WSHandshakeDone is emitted once the connection speaks WebSocket.
type WSHandshakeDone struct{}

// WSFrame carries a complete data message.
type WSFrame struct {
	Msg *WSMessage
}

// WSControlFrame carries a Close, Ping or Pong frame.
type WSControlFrame struct {
	Msg *WSMessage
}

func (ConnOpened) Code() EventCode         { return EventConnOpened }
func (ConnClosed) Code() EventCode         { return EventConnClosed }
func (HTTPRequest) Code() EventCode        { return EventHTTPRequest }
func (HTTPReply) Code() EventCode          { return EventHTTPReply }
func (WSHandshakeRequest) Code() EventCode { return EventWSHandshakeRequest }
func (WSHandshakeDone) Code() EventCode    { return EventWSHandshakeDone }
func (WSFrame) Code() EventCode            { return EventWSFrame }
func (WSControlFrame) Code() EventCode     { return EventWSControlFrame }

func (ConnOpened) event()         {}
func (ConnClosed) event()         {}
func (HTTPRequest) event()        {}
func (HTTPReply) event()          {}
func (WSHandshakeRequest) event() {}
func (WSHandshakeDone) event()    {}
func (WSFrame) event()            {}
func (WSControlFrame) event()     {}
