// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Connection layers that drive protocol.Conn over real sockets.
//
// Engine runs on gnet event loops: each loop owns its connections, so a
// protocol.Conn is only ever touched from one goroutine. Server is the
// portable net.Conn variant with one goroutine per connection. Both feed
// received bytes, apply keepalive ticks, and flush queued output with one
// vectored write per wakeup.
package transport
