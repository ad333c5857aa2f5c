// Package pool
// Author: momentics <momentics@gmail.com>
//
// Memory reuse for hioload-wire. Outbound frames and responses are encoded
// into pooled byte slices and returned once the connection layer has
// written them.
// See objpool.go and bytepool.go for implementation details.
package pool
