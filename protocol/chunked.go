// File: protocol/chunked.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// HTTP chunked transfer-encoding: outbound framing, inbound measurement,
// and an optional decoder for received bodies.

package protocol

import (
	"bytes"
	"strconv"

	"github.com/momentics/hioload-wire/api"
)

// AppendChunk appends data to dst as one chunk: <hex-len>\r\n<data>\r\n.
// Empty data produces the terminating chunk, which must be written once.
func AppendChunk(dst, data []byte) []byte {
	dst = strconv.AppendUint(dst, uint64(len(data)), 16)
	dst = append(dst, crlf...)
	dst = append(dst, data...)
	return append(dst, crlf...)
}

// AppendLastChunk appends the terminating zero-length chunk.
func AppendLastChunk(dst []byte) []byte {
	return AppendChunk(dst, nil)
}

// chunkedLength measures the chunked body at the start of b, including the
// zero chunk and optional trailers. Returns -1 when more bytes are needed.
// The sum of chunk sizes may not exceed maxBody.
func chunkedLength(b []byte, maxBody int) (int, error) {
	pos, total := 0, 0
	for {
		size, n, err := readChunkSize(b[pos:])
		if err != nil || n == 0 {
			return -1, err
		}
		if size > maxBody-total {
			return -1, bodyTooLarge(total + size)
		}
		total += size
		pos += n
		if size == 0 {
			return trailerLength(b, pos)
		}
		if len(b)-pos < size+len(crlf) {
			return -1, nil
		}
		if !bytes.Equal(b[pos+size:pos+size+len(crlf)], crlf) {
			return 0, api.Malformed("chunk not terminated by CRLF")
		}
		pos += size + len(crlf)
	}
}

// trailerLength skips trailer lines up to and including the empty line.
func trailerLength(b []byte, pos int) (int, error) {
	for {
		i := bytes.Index(b[pos:], crlf)
		if i < 0 {
			return -1, nil
		}
		pos += i + len(crlf)
		if i == 0 {
			return pos, nil
		}
	}
}

// readChunkSize parses "<hex>[;ext]\r\n". n is 0 when the line is incomplete.
func readChunkSize(b []byte) (size, n int, err error) {
	i := bytes.Index(b, crlf)
	if i < 0 {
		if len(b) > 1024 {
			return 0, 0, api.Malformed("chunk size line too long")
		}
		return 0, 0, nil
	}
	line := b[:i]
	if semi := bytes.IndexByte(line, ';'); semi >= 0 {
		line = line[:semi]
	}
	line = trimSpace(line)
	if len(line) == 0 || len(line) > 15 {
		return 0, 0, api.Malformed("bad chunk size")
	}
	for _, c := range line {
		var d byte
		switch {
		case '0' <= c && c <= '9':
			d = c - '0'
		case 'a' <= c && c <= 'f':
			d = c - 'a' + 10
		case 'A' <= c && c <= 'F':
			d = c - 'A' + 10
		default:
			return 0, 0, api.Malformed("bad chunk size")
		}
		size = size<<4 | int(d)
	}
	return size, i + len(crlf), nil
}

// DecodeChunked returns the payload of a complete chunked body, such as the
// Body of a message parsed with Transfer-Encoding: chunked.
func DecodeChunked(body []byte) ([]byte, error) {
	var out []byte
	pos := 0
	for {
		size, n, err := readChunkSize(body[pos:])
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, api.Malformed("truncated chunked body")
		}
		pos += n
		if size == 0 {
			return out, nil
		}
		if len(body)-pos < size+len(crlf) {
			return nil, api.Malformed("truncated chunked body")
		}
		out = append(out, body[pos:pos+size]...)
		pos += size + len(crlf)
	}
}
