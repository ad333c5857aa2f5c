// File: protocol/http_parser.go
// Package protocol implements incremental HTTP/1.x message recognition.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The parser never copies: every field of the resulting message is a view
// into the caller's buffer. It is stateless, so calling it again on a longer
// prefix of the same stream yields the same result.

package protocol

import (
	"bytes"

	"github.com/momentics/hioload-wire/api"
)

var (
	crlf     = []byte("\r\n")
	crlfcrlf = []byte("\r\n\r\n")
)

// ParseHTTP recognizes one HTTP message at the start of buf using DefaultLimits.
//
// Returns (0, nil) if the message is incomplete, (n, nil) with n the exact
// message length when msg was filled, or an error matching api.ErrMalformed.
func ParseHTTP(buf []byte, msg *api.HTTPMessage) (int, error) {
	return ParseHTTPWithLimits(buf, msg, DefaultLimits)
}

// ParseHTTPWithLimits is ParseHTTP with explicit limits.
func ParseHTTPWithLimits(buf []byte, msg *api.HTTPMessage, lim Limits) (int, error) {
	lim = lim.withDefaults()

	end := bytes.Index(buf, crlfcrlf)
	if end < 0 {
		if len(buf) > lim.MaxRequestSize {
			return 0, api.Malformed("request head too large")
		}
		return 0, nil
	}
	headLen := end + len(crlfcrlf)
	if headLen > lim.MaxRequestSize {
		return 0, api.Malformed("request head too large")
	}

	msg.Reset(lim.MaxHeaders)
	line, rest := cutLine(buf[:end+len(crlf)])
	if err := parseStartLine(line, msg); err != nil {
		return 0, err
	}
	for len(rest) > 0 {
		line, rest = cutLine(rest)
		colon := bytes.IndexByte(line, ':')
		if colon < 0 {
			return 0, api.Malformed("header line without colon")
		}
		name := trimSpace(line[:colon])
		if len(name) == 0 {
			return 0, api.Malformed("empty header name")
		}
		if !msg.Headers.Append(name, trimSpace(line[colon+1:])) {
			return 0, api.Malformed("too many headers")
		}
	}

	bodyLen, err := bodyLength(msg, buf[headLen:], lim.MaxBodySize)
	if err != nil || bodyLen < 0 {
		return 0, err
	}
	total := headLen + bodyLen
	msg.Whole = buf[:total]
	msg.Body = buf[headLen:total]
	return total, nil
}

// parseStartLine splits a request line (method, URI, protocol) or a status
// line (protocol, status, reason).
func parseStartLine(line []byte, msg *api.HTTPMessage) error {
	first, rest := nextToken(line)
	second, rest := nextToken(rest)
	if len(first) == 0 || len(second) == 0 {
		return api.Malformed("bad start line")
	}

	if bytes.HasPrefix(first, []byte("HTTP/")) {
		code, ok := parseStatus(second)
		if !ok {
			return api.Malformed("bad status code")
		}
		msg.Proto = first
		msg.StatusCode = code
		msg.Reason = trimSpace(rest)
		return nil
	}

	third, rest := nextToken(rest)
	if !bytes.HasPrefix(third, []byte("HTTP/")) {
		return api.Malformed("bad protocol version")
	}
	if extra, _ := nextToken(rest); len(extra) > 0 {
		return api.Malformed("trailing data in request line")
	}
	msg.Method = first
	msg.Proto = third
	if q := bytes.IndexByte(second, '?'); q >= 0 {
		msg.URI = second[:q]
		msg.QueryString = second[q+1:]
	} else {
		msg.URI = second
	}
	return nil
}

// bodyLength returns the body size, -1 if the body has not fully arrived.
// A body declared larger than maxBody is rejected before it is buffered.
func bodyLength(msg *api.HTTPMessage, body []byte, maxBody int) (int, error) {
	if te, ok := msg.FindHeader("Transfer-Encoding"); ok && containsTokenFold(te, "chunked") {
		return chunkedLength(body, maxBody)
	}
	cl, ok := msg.FindHeader("Content-Length")
	if !ok {
		return 0, nil
	}
	n, ok := parseDecimal(cl)
	if !ok {
		return 0, api.Malformed("bad Content-Length")
	}
	if n > maxBody {
		return 0, bodyTooLarge(n)
	}
	if n > len(body) {
		return -1, nil
	}
	return n, nil
}

func bodyTooLarge(n int) error {
	return api.NewError(api.ErrCodeTooLarge, "message body exceeds maximum allowed size").
		WithContext("reason", "body too large").
		WithContext("length", n)
}

// cutLine returns the line up to the next CRLF (tolerating a bare LF) and
// the remainder after it.
func cutLine(b []byte) (line, rest []byte) {
	i := bytes.IndexByte(b, '\n')
	if i < 0 {
		return b, nil
	}
	line, rest = b[:i], b[i+1:]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line, rest
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' }

func trimSpace(b []byte) []byte {
	for len(b) > 0 && isSpace(b[0]) {
		b = b[1:]
	}
	for len(b) > 0 && isSpace(b[len(b)-1]) {
		b = b[:len(b)-1]
	}
	return b
}

func nextToken(b []byte) (tok, rest []byte) {
	for len(b) > 0 && isSpace(b[0]) {
		b = b[1:]
	}
	i := 0
	for i < len(b) && !isSpace(b[i]) {
		i++
	}
	return b[:i], b[i:]
}

func parseStatus(b []byte) (int, bool) {
	if len(b) != 3 {
		return 0, false
	}
	n, ok := parseDecimal(b)
	return n, ok && n >= 100
}

// parseDecimal parses a non-negative decimal that fits in an int.
func parseDecimal(b []byte) (int, bool) {
	if len(b) == 0 || len(b) > 18 {
		return 0, false
	}
	n := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

// containsTokenFold reports whether the comma-separated list v contains token.
func containsTokenFold(v []byte, token string) bool {
	for len(v) > 0 {
		var item []byte
		if i := bytes.IndexByte(v, ','); i >= 0 {
			item, v = v[:i], v[i+1:]
		} else {
			item, v = v, nil
		}
		if api.ByteView(trimSpace(item)).EqualFold(token) {
			return true
		}
	}
	return false
}
