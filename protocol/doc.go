// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Implements the incremental HTTP/1.1 and WebSocket (RFC 6455) protocol
// layer for hioload-wire.
//
// The layer never reads from the network itself. The connection layer feeds
// it the bytes received so far; it consumes whole units only, reports each
// one to a Handler as an event, and queues outbound bytes until they are
// flushed with a single vectored write.
//
// Includes:
//   - Stateless HTTP request and reply parsing over borrowed buffers
//   - Chunked transfer-encoding in both directions
//   - Frame encoding/decoding with fragment reassembly
//   - Handshake in server and client roles
//   - Ping/Pong/Close handling and keepalive policy
//   - Query string variable lookup with URL decoding
package protocol
