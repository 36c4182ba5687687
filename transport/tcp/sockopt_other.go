//go:build !unix

package tcp

import "syscall"

// Socket options are left to the system.
func control(Options) func(network, address string, c syscall.RawConn) error { return nil }
