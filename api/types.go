// File: api/types.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Shared data model for HTTP messages and WebSocket messages.
// HTTP views borrow the receive buffer; WebSocket payloads are owned.

package api

import "bytes"

// ByteView is a borrowed sub-slice of a receive buffer owned by the connection
// layer. It is valid only while the event that carried it is being handled.
type ByteView []byte

// String copies the view into a string.
func (v ByteView) String() string { return string(v) }

// Len returns the view length; zero is a valid empty view.
func (v ByteView) Len() int { return len(v) }

// EqualFold reports whether v equals s under ASCII case folding.
func (v ByteView) EqualFold(s string) bool {
	if len(v) != len(s) {
		return false
	}
	for i := 0; i < len(v); i++ {
		if lower(v[i]) != lower(s[i]) {
			return false
		}
	}
	return true
}

// Clone returns an owned copy that may outlive the receive buffer.
func (v ByteView) Clone() []byte {
	return bytes.Clone(v)
}

func lower(b byte) byte {
	if 'A' <= b && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}

// Header is one header line as received. Name case is preserved.
type Header struct {
	Name  ByteView
	Value ByteView
}

// HeaderList is an ordered, capacity-bounded header sequence.
// Appending past the bound fails instead of growing.
type HeaderList struct {
	items []Header
	limit int
}

// Reset empties the list and sets its bound, reusing storage.
func (l *HeaderList) Reset(limit int) {
	if cap(l.items) < limit {
		l.items = make([]Header, 0, limit)
	}
	l.items = l.items[:0]
	l.limit = limit
}

// Append adds a header and reports false when the bound is reached.
func (l *HeaderList) Append(name, value ByteView) bool {
	if len(l.items) >= l.limit {
		return false
	}
	l.items = append(l.items, Header{Name: name, Value: value})
	return true
}

// Len returns the number of headers.
func (l *HeaderList) Len() int { return len(l.items) }

// At returns the i-th header.
func (l *HeaderList) At(i int) Header { return l.items[i] }

// All returns the headers in arrival order. The slice must not be modified.
func (l *HeaderList) All() []Header { return l.items }

// HTTPMessage is a structured view over one complete HTTP request or reply.
// Every view is a sub-range of Whole.
type HTTPMessage struct {
	Whole       ByteView
	Method      ByteView // empty for replies
	URI         ByteView // path part only, empty for replies
	Proto       ByteView
	QueryString ByteView // without the '?'
	Headers     HeaderList
	Body        ByteView

	StatusCode int      // replies only
	Reason     ByteView // replies only
}

// Reset clears all views and rebinds the header bound.
func (m *HTTPMessage) Reset(maxHeaders int) {
	hl := m.Headers
	*m = HTTPMessage{}
	hl.Reset(maxHeaders)
	m.Headers = hl
}

// IsReply reports whether the message is a response.
func (m *HTTPMessage) IsReply() bool { return m.StatusCode != 0 }

// FindHeader returns the value of the first header named name,
// compared case-insensitively.
func (m *HTTPMessage) FindHeader(name string) (ByteView, bool) {
	for _, h := range m.Headers.items {
		if h.Name.EqualFold(name) {
			return h.Value, true
		}
	}
	return nil, false
}

// HeaderValues returns copies of all values of headers named name, in order.
func (m *HTTPMessage) HeaderValues(name string) []string {
	var out []string
	for _, h := range m.Headers.items {
		if h.Name.EqualFold(name) {
			out = append(out, string(h.Value))
		}
	}
	return out
}

// Opcode is a WebSocket frame opcode (RFC 6455 section 5.2).
type Opcode byte

const (
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2
	OpClose        Opcode = 0x8
	OpPing         Opcode = 0x9
	OpPong         Opcode = 0xA
)

// IsControl reports whether o is a control opcode.
func (o Opcode) IsControl() bool { return o&0x8 != 0 }

// Valid reports whether o is one of the defined opcodes.
func (o Opcode) Valid() bool {
	switch o {
	case OpContinuation, OpText, OpBinary, OpClose, OpPing, OpPong:
		return true
	}
	return false
}

func (o Opcode) String() string {
	switch o {
	case OpContinuation:
		return "continuation"
	case OpText:
		return "text"
	case OpBinary:
		return "binary"
	case OpClose:
		return "close"
	case OpPing:
		return "ping"
	case OpPong:
		return "pong"
	default:
		return "reserved"
	}
}

// FlagFin marks the final fragment in WSMessage.Flags.
const FlagFin = 0x80

// WSMessage is a complete WebSocket message. Payload is unmasked and owned;
// fragmented messages arrive here already concatenated.
type WSMessage struct {
	Payload []byte
	Flags   byte // FIN bit | opcode
}

// Opcode returns the message opcode carried in Flags.
func (m *WSMessage) Opcode() Opcode { return Opcode(m.Flags & 0x0F) }

// Final reports the FIN bit.
func (m *WSMessage) Final() bool { return m.Flags&FlagFin != 0 }

// ConnState enumerates the protocol mode of a connection for reporting.
type ConnState int

const (
	StateAwaitingHTTP ConnState = iota
	StateAwaitingHandshakeReply
	StateWebSocket
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateAwaitingHTTP:
		return "http"
	case StateAwaitingHandshakeReply:
		return "handshake"
	case StateWebSocket:
		return "websocket"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
