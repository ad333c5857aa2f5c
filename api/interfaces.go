// File: api/interfaces.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Contracts between the protocol layer and its supporting infrastructure.

package api

// BytePool supplies reusable append buffers. Get returns a zero-length
// slice; Put hands it back once written.
type BytePool interface {
	Get() []byte
	Put([]byte)
}

// Metrics receives counter updates.
type Metrics interface {
	Add(key string, delta int64)
	Inc(key string)
}

// Debug exposes runtime introspection.
type Debug interface {
	// DumpState emits a snapshot of system state for diagnostics.
	DumpState() map[string]any

	// RegisterProbe dynamically registers new debug probes.
	RegisterProbe(name string, fn func() any)
}
