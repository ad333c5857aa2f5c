//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

// File: transport/listen_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import "net"

// listenConfig uses the platform defaults; port reuse is not supported.
func listenConfig(bool) net.ListenConfig {
	return net.ListenConfig{}
}
