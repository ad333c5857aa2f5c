// Package session
// Author: momentics <momentics@gmail.com>
//
// Registry of live connections. Each Session maps to one transport-level
// connection and carries its protocol state, a cancellation signal and an
// optional deadline. The transports range over the registry to drive
// keepalive ticks, broadcasts and shutdown.

package session
