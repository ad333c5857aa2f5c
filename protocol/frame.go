// Package protocol
// Author: momentics <momentics@gmail.com>
//
// WebSocket frame header decoding and masking logic for buffer-driven parsing.
//
// DecodeFrame avoids allocations: the returned payload aliases the caller's
// buffer and is still masked. The Framer copies it into owned storage.

package protocol

import (
	"encoding/binary"

	"github.com/momentics/hioload-wire/api"
)

// Frame represents one decoded frame on the wire.
type Frame struct {
	Fin     bool
	Opcode  api.Opcode
	Masked  bool
	MaskKey [4]byte
	Payload []byte // aliases the input buffer, masked if Masked
}

// DecodeFrame parses one frame at the start of buf.
//
// If the frame is incomplete it returns (Frame{}, 0, nil). A frame violating
// RFC 6455 yields an error matching api.ErrMalformed: reserved bits set,
// undefined opcode, fragmented or oversized control frame, a 64-bit length
// with the high bit set, a length above maxPayload, or a missing mask when
// requireMask is set.
func DecodeFrame(buf []byte, requireMask bool, maxPayload int64) (Frame, int, error) {
	if len(buf) < 2 {
		return Frame{}, 0, nil
	}
	var f Frame
	b0, b1 := buf[0], buf[1]
	if b0&RsvBits != 0 {
		return Frame{}, 0, api.Malformed("reserved bits set")
	}
	f.Fin = b0&FinBit != 0
	f.Opcode = api.Opcode(b0 & OpcodeMask)
	f.Masked = b1&MaskBit != 0
	if !f.Opcode.Valid() {
		return Frame{}, 0, api.Malformed("reserved opcode")
	}
	if f.Opcode.IsControl() && !f.Fin {
		return Frame{}, 0, api.Malformed("fragmented control frame")
	}
	if requireMask && !f.Masked {
		return Frame{}, 0, api.Malformed("unmasked client frame")
	}

	length := int64(b1 & LenMask)
	offset := 2
	switch length {
	case len16Marker:
		if len(buf) < offset+2 {
			return Frame{}, 0, nil
		}
		length = int64(binary.BigEndian.Uint16(buf[offset:]))
		offset += 2
	case len64Marker:
		if len(buf) < offset+8 {
			return Frame{}, 0, nil
		}
		v := binary.BigEndian.Uint64(buf[offset:])
		if v>>63 != 0 {
			return Frame{}, 0, api.Malformed("payload length overflow")
		}
		length = int64(v)
		offset += 8
	}

	if f.Opcode.IsControl() && length > MaxControlPayloadLen {
		return Frame{}, 0, api.Malformed("control frame payload too large")
	}
	if maxPayload > 0 && length > maxPayload {
		return Frame{}, 0, api.NewError(api.ErrCodeTooLarge, "frame payload exceeds maximum allowed size").
			WithContext("reason", "frame too large").
			WithContext("length", length)
	}

	if f.Masked {
		if len(buf) < offset+4 {
			return Frame{}, 0, nil
		}
		copy(f.MaskKey[:], buf[offset:offset+4])
		offset += 4
	}

	if int64(len(buf)-offset) < length {
		return Frame{}, 0, nil
	}
	total := offset + int(length)
	f.Payload = buf[offset:total]
	return f, total, nil
}

// maskBytes XORs b with key, starting at key position pos, and returns the
// position to continue from.
func maskBytes(key [4]byte, pos int, b []byte) int {
	for i := range b {
		b[i] ^= key[pos&3]
		pos++
	}
	return pos & 3
}

// appendUnmasked appends the payload of f to dst, unmasking the copy.
func appendUnmasked(dst []byte, f *Frame) []byte {
	start := len(dst)
	dst = append(dst, f.Payload...)
	if f.Masked {
		maskBytes(f.MaskKey, 0, dst[start:])
	}
	return dst
}
