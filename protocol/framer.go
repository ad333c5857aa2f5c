// File: protocol/framer.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Framer turns a stream of frames into complete messages, reassembling
// fragmented data messages while letting control frames through.

package protocol

import "github.com/momentics/hioload-wire/api"

// Framer holds the reassembly state of one connection's inbound direction.
type Framer struct {
	requireMask bool
	maxFrame    int64
	maxMessage  int64

	fragOp   api.Opcode
	fragBuf  []byte
	fragOpen bool
}

// NewFramer creates a framer. Servers pass requireMask=true.
func NewFramer(requireMask bool, lim Limits) *Framer {
	lim = lim.withDefaults()
	return &Framer{
		requireMask: requireMask,
		maxFrame:    lim.MaxFramePayload,
		maxMessage:  lim.MaxMessageSize,
	}
}

// Decode consumes at most one frame from buf.
//
// It returns the bytes consumed and, when the frame completed a message, the
// message. A consumed non-final fragment yields (n, nil, nil); an incomplete
// frame yields (0, nil, nil).
func (f *Framer) Decode(buf []byte) (int, *api.WSMessage, error) {
	fr, n, err := DecodeFrame(buf, f.requireMask, f.maxFrame)
	if err != nil || n == 0 {
		return 0, nil, err
	}

	if fr.Opcode.IsControl() {
		return n, &api.WSMessage{
			Payload: appendUnmasked(make([]byte, 0, len(fr.Payload)), &fr),
			Flags:   api.FlagFin | byte(fr.Opcode),
		}, nil
	}

	if fr.Opcode == api.OpContinuation {
		if !f.fragOpen {
			return 0, nil, api.Malformed("continuation without initial fragment")
		}
	} else {
		if f.fragOpen {
			return 0, nil, api.Malformed("data frame inside fragmented message")
		}
		if fr.Fin {
			return n, &api.WSMessage{
				Payload: appendUnmasked(make([]byte, 0, len(fr.Payload)), &fr),
				Flags:   api.FlagFin | byte(fr.Opcode),
			}, nil
		}
		f.fragOp = fr.Opcode
		f.fragOpen = true
	}

	if int64(len(f.fragBuf))+int64(len(fr.Payload)) > f.maxMessage {
		return 0, nil, api.NewError(api.ErrCodeTooLarge, "reassembled message exceeds maximum allowed size").
			WithContext("reason", "message too large")
	}
	f.fragBuf = appendUnmasked(f.fragBuf, &fr)
	if !fr.Fin {
		return n, nil, nil
	}

	msg := &api.WSMessage{Payload: f.fragBuf, Flags: api.FlagFin | byte(f.fragOp)}
	f.fragBuf = nil
	f.fragOpen = false
	f.fragOp = api.OpContinuation
	return n, msg, nil
}

// Reset discards any partially reassembled message.
func (f *Framer) Reset() {
	f.fragBuf = nil
	f.fragOpen = false
	f.fragOp = api.OpContinuation
}

// Fragmented reports whether a fragmented message is being reassembled.
func (f *Framer) Fragmented() bool { return f.fragOpen }
