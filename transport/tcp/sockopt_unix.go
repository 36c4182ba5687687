//go:build unix

package tcp

import (
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// control applies opts to the socket before it connects.
func control(opts Options) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var serr error
		err := c.Control(func(fd uintptr) {
			if opts.NoDelay {
				if serr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); serr != nil {
					serr = errors.Wrap(serr, "setting TCP_NODELAY")
					return
				}
			}
			if opts.ReadBuffer > 0 {
				if serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, opts.ReadBuffer); serr != nil {
					serr = errors.Wrap(serr, "setting SO_RCVBUF")
					return
				}
			}
			if opts.WriteBuffer > 0 {
				if serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, opts.WriteBuffer); serr != nil {
					serr = errors.Wrap(serr, "setting SO_SNDBUF")
				}
			}
		})
		if err != nil {
			return err
		}
		return serr
	}
}
