// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Wire protocol constants and default limits.

package protocol

import "time"

const (
	// Frame header bits
	FinBit      = 0x80
	RsvBits     = 0x70
	OpcodeMask  = 0x0F
	MaskBit     = 0x80
	LenMask     = 0x7F
	len16Marker = 126
	len64Marker = 127

	MaxControlPayloadLen = 125
	MaxFrameHeaderLen    = 14 // 2 + 8 extended length + 4 mask key

	// Close codes
	CloseNormalClosure      = 1000
	CloseGoingAway          = 1001
	CloseProtocolError      = 1002
	CloseUnsupportedData    = 1003
	CloseNoStatusRcvd       = 1005
	CloseAbnormalClosure    = 1006
	CloseInvalidPayloadData = 1007
	ClosePolicyViolation    = 1008
	CloseMessageTooBig      = 1009
	CloseInternalServerErr  = 1011
)

const (
	MaxHTTPHeaders      = 40
	MaxRequestSize      = 8192
	MaxBodySize         = 16 << 20
	MaxFramePayload     = 16 << 20
	MaxMessageSize      = 32 << 20
	DefaultPingInterval = 5 * time.Second

	DefaultHandshakeTimeout = 10 * time.Second
)

// Limits bounds the memory a single connection may pin while parsing.
// Zero fields fall back to the package defaults.
type Limits struct {
	MaxRequestSize  int   // bytes of request line + headers
	MaxBodySize     int   // declared or chunked body of one HTTP message
	MaxHeaders      int   // header lines per message
	MaxFramePayload int64 // payload of one WebSocket frame
	MaxMessageSize  int64 // reassembled fragmented message
}

// DefaultLimits are the limits applied when none are configured.
var DefaultLimits = Limits{
	MaxRequestSize:  MaxRequestSize,
	MaxBodySize:     MaxBodySize,
	MaxHeaders:      MaxHTTPHeaders,
	MaxFramePayload: MaxFramePayload,
	MaxMessageSize:  MaxMessageSize,
}

func (l Limits) withDefaults() Limits {
	if l.MaxRequestSize <= 0 {
		l.MaxRequestSize = MaxRequestSize
	}
	if l.MaxBodySize <= 0 {
		l.MaxBodySize = MaxBodySize
	}
	if l.MaxHeaders <= 0 {
		l.MaxHeaders = MaxHTTPHeaders
	}
	if l.MaxFramePayload <= 0 {
		l.MaxFramePayload = MaxFramePayload
	}
	if l.MaxMessageSize <= 0 {
		l.MaxMessageSize = MaxMessageSize
	}
	return l
}
