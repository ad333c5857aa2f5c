// File: protocol/response.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"net/http"
	"strconv"
)

// AppendResponseHead appends an HTTP/1.1 status line and headers, ending
// with the blank line. The caller supplies framing headers (Content-Length
// or Transfer-Encoding).
func AppendResponseHead(dst []byte, status int, headers []HeaderField) ([]byte, error) {
	dst = append(dst, "HTTP/1.1 "...)
	dst = strconv.AppendInt(dst, int64(status), 10)
	dst = append(dst, ' ')
	dst = append(dst, http.StatusText(status)...)
	dst = append(dst, crlf...)
	dst, err := appendHeaderFields(dst, headers)
	if err != nil {
		return nil, err
	}
	return append(dst, crlf...), nil
}

// AppendResponse appends a complete response with a Content-Length body.
func AppendResponse(dst []byte, status int, headers []HeaderField, body []byte) ([]byte, error) {
	hs := make([]HeaderField, 0, len(headers)+1)
	hs = append(hs, headers...)
	hs = append(hs, HeaderField{Name: "Content-Length", Value: strconv.Itoa(len(body))})
	dst, err := AppendResponseHead(dst, status, hs)
	if err != nil {
		return nil, err
	}
	return append(dst, body...), nil
}
