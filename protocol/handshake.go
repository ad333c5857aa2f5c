// File: protocol/handshake.go
// Package protocol implements the WebSocket opening handshake (RFC 6455 4).
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server side: upgrade detection and the 101 response. Client side: the GET
// upgrade request and verification of the server's accept token.

package protocol

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"

	"golang.org/x/net/http/httpguts"

	"github.com/momentics/hioload-wire/api"
)

// Constants used for handshake processing.
const (
	WebSocketGUID            = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
	HeaderConnection         = "Connection"
	HeaderUpgrade            = "Upgrade"
	HeaderSecWebSocketKey    = "Sec-WebSocket-Key"
	HeaderSecWebSocketAccept = "Sec-WebSocket-Accept"
	HeaderSecWebSocketVer    = "Sec-WebSocket-Version"
	RequiredWebSocketVersion = "13"
)

// HeaderField is one extra header to write, in order.
type HeaderField struct {
	Name  string
	Value string
}

// ComputeAcceptKey computes the Sec-WebSocket-Accept value from the client's key.
func ComputeAcceptKey(clientKey string) string {
	h := sha1.New()
	h.Write([]byte(clientKey))
	h.Write([]byte(WebSocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// IsWebSocketUpgrade reports whether msg asks to switch to WebSocket:
// Upgrade lists "websocket", Connection lists "Upgrade", and a
// Sec-WebSocket-Key is present. Tokens compare case-insensitively.
func IsWebSocketUpgrade(msg *api.HTTPMessage) bool {
	if msg.IsReply() {
		return false
	}
	if key, ok := msg.FindHeader(HeaderSecWebSocketKey); !ok || key.Len() == 0 {
		return false
	}
	return httpguts.HeaderValuesContainsToken(msg.HeaderValues(HeaderUpgrade), "websocket") &&
		httpguts.HeaderValuesContainsToken(msg.HeaderValues(HeaderConnection), "Upgrade")
}

// AppendHandshakeResponse appends the 101 Switching Protocols response for
// the given client key, followed by extra headers.
func AppendHandshakeResponse(dst []byte, clientKey []byte, extra []HeaderField) ([]byte, error) {
	dst = append(dst, "HTTP/1.1 101 Switching Protocols\r\n"...)
	dst = append(dst, "Upgrade: websocket\r\nConnection: Upgrade\r\n"...)
	dst = append(dst, HeaderSecWebSocketAccept+": "...)
	dst = append(dst, ComputeAcceptKey(string(clientKey))...)
	dst = append(dst, crlf...)
	dst, err := appendHeaderFields(dst, extra)
	if err != nil {
		return nil, err
	}
	return append(dst, crlf...), nil
}

// NewClientKey returns a random base64-encoded 16-byte Sec-WebSocket-Key.
func NewClientKey() (string, error) {
	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("handshake key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(nonce[:]), nil
}

// AppendHandshakeRequest appends a GET upgrade request for uri. host may be
// empty; extra headers follow the fixed ones.
func AppendHandshakeRequest(dst []byte, uri, host, key string, extra []HeaderField) ([]byte, error) {
	if uri == "" {
		uri = "/"
	}
	dst = append(dst, "GET "...)
	dst = append(dst, uri...)
	dst = append(dst, " HTTP/1.1\r\n"...)
	if host != "" {
		dst = append(dst, "Host: "...)
		dst = append(dst, host...)
		dst = append(dst, crlf...)
	}
	dst = append(dst, "Upgrade: websocket\r\nConnection: Upgrade\r\n"...)
	dst = append(dst, HeaderSecWebSocketVer+": "+RequiredWebSocketVersion+"\r\n"...)
	dst = append(dst, HeaderSecWebSocketKey+": "...)
	dst = append(dst, key...)
	dst = append(dst, crlf...)
	dst, err := appendHeaderFields(dst, extra)
	if err != nil {
		return nil, err
	}
	return append(dst, crlf...), nil
}

// VerifyHandshakeReply reports whether reply accepts the upgrade requested
// with key.
func VerifyHandshakeReply(reply *api.HTTPMessage, key string) bool {
	if reply.StatusCode != 101 {
		return false
	}
	accept, ok := reply.FindHeader(HeaderSecWebSocketAccept)
	return ok && string(accept) == ComputeAcceptKey(key)
}

func appendHeaderFields(dst []byte, fields []HeaderField) ([]byte, error) {
	for _, f := range fields {
		if !httpguts.ValidHeaderFieldName(f.Name) || !httpguts.ValidHeaderFieldValue(f.Value) {
			return nil, api.NewError(api.ErrCodeInvalidArgument, "invalid header field").
				WithContext("name", f.Name)
		}
		dst = append(dst, f.Name...)
		dst = append(dst, ": "...)
		dst = append(dst, f.Value...)
		dst = append(dst, crlf...)
	}
	return dst, nil
}
