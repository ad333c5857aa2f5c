// File: protocol/frame_codec.go
// Package protocol implements outbound frame encoding.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Frames are appended to caller-owned buffers using the smallest length
// encoding that fits. Server frames are never masked; the masked variant
// exists for the client role.

package protocol

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/momentics/hioload-wire/api"
)

// AppendFrame appends one unmasked frame carrying payload.
func AppendFrame(dst []byte, op api.Opcode, payload []byte, fin bool) []byte {
	dst = appendFrameHeader(dst, op, fin, len(payload), false)
	return append(dst, payload...)
}

// AppendFrameV appends one unmasked frame whose payload is the concatenation
// of segments, without joining them first.
func AppendFrameV(dst []byte, op api.Opcode, fin bool, segments ...[]byte) []byte {
	total := 0
	for _, s := range segments {
		total += len(s)
	}
	dst = appendFrameHeader(dst, op, fin, total, false)
	for _, s := range segments {
		dst = append(dst, s...)
	}
	return dst
}

// AppendMaskedFrame appends one frame masked with key, as a client must send.
func AppendMaskedFrame(dst []byte, op api.Opcode, payload []byte, fin bool, key [4]byte) []byte {
	return AppendMaskedFrameV(dst, op, fin, key, payload)
}

// AppendMaskedFrameV is the multi-segment form of AppendMaskedFrame.
func AppendMaskedFrameV(dst []byte, op api.Opcode, fin bool, key [4]byte, segments ...[]byte) []byte {
	total := 0
	for _, s := range segments {
		total += len(s)
	}
	dst = appendFrameHeader(dst, op, fin, total, true)
	dst = append(dst, key[:]...)
	pos := 0
	for _, s := range segments {
		start := len(dst)
		dst = append(dst, s...)
		pos = maskBytes(key, pos, dst[start:])
	}
	return dst
}

func appendFrameHeader(dst []byte, op api.Opcode, fin bool, n int, masked bool) []byte {
	b0 := byte(op) & OpcodeMask
	if fin {
		b0 |= FinBit
	}
	var maskBit byte
	if masked {
		maskBit = MaskBit
	}
	switch {
	case n <= MaxControlPayloadLen:
		return append(dst, b0, byte(n)|maskBit)
	case n <= 0xFFFF:
		dst = append(dst, b0, len16Marker|maskBit)
		return binary.BigEndian.AppendUint16(dst, uint16(n))
	default:
		dst = append(dst, b0, len64Marker|maskBit)
		return binary.BigEndian.AppendUint64(dst, uint64(n))
	}
}

// newMaskKey returns a random masking key.
func newMaskKey() [4]byte {
	var key [4]byte
	// crypto/rand.Read never returns an error on supported platforms.
	_, _ = rand.Read(key[:])
	return key
}

// appendClosePayload builds a Close payload from a status code and reason.
func appendClosePayload(dst []byte, code int, reason string) []byte {
	if code == 0 {
		return dst
	}
	dst = binary.BigEndian.AppendUint16(dst, uint16(code))
	return append(dst, reason...)
}
