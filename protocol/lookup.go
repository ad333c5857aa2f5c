// File: protocol/lookup.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"bytes"

	"github.com/momentics/hioload-wire/api"
)

// Results of GetVariable other than a byte count.
const (
	VarNotFound = -1
	VarNoSpace  = -2
)

// GetVariable finds name in an application/x-www-form-urlencoded source
// (a query string or a form body), decodes its value into dst and returns
// the number of bytes written. Names compare case-insensitively and the
// first match wins.
//
// Returns VarNotFound if the name is absent and VarNoSpace if dst is too
// small. Malformed percent escapes are copied through literally.
func GetVariable(src []byte, name string, dst []byte) int {
	val, ok := findVariable(src, name)
	if !ok {
		return VarNotFound
	}
	n, ok := urlDecode(dst, val)
	if !ok {
		return VarNoSpace
	}
	return n
}

// LookupVariable is GetVariable returning an owned string.
func LookupVariable(src []byte, name string) (string, bool) {
	val, ok := findVariable(src, name)
	if !ok {
		return "", false
	}
	buf := make([]byte, len(val))
	n, _ := urlDecode(buf, val)
	return string(buf[:n]), true
}

func findVariable(src []byte, name string) ([]byte, bool) {
	for len(src) > 0 {
		var pair []byte
		if i := bytes.IndexByte(src, '&'); i >= 0 {
			pair, src = src[:i], src[i+1:]
		} else {
			pair, src = src, nil
		}
		eq := bytes.IndexByte(pair, '=')
		if eq < 0 {
			continue
		}
		if api.ByteView(pair[:eq]).EqualFold(name) {
			return pair[eq+1:], true
		}
	}
	return nil, false
}

// urlDecode writes the decoded form of src into dst. A decoded value never
// exceeds its encoded length.
func urlDecode(dst, src []byte) (int, bool) {
	n := 0
	for i := 0; i < len(src); i++ {
		if n >= len(dst) {
			return 0, false
		}
		c := src[i]
		switch {
		case c == '+':
			c = ' '
		case c == '%' && i+2 < len(src) && isHex(src[i+1]) && isHex(src[i+2]):
			c = unhex(src[i+1])<<4 | unhex(src[i+2])
			i += 2
		}
		dst[n] = c
		n++
	}
	return n, true
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
