//go:build linux

package core

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// deferAcceptSeconds is how long the kernel holds a connection that has
// sent nothing before handing it to Accept anyway
const deferAcceptSeconds = 5

// controlListener sets TCP_DEFER_ACCEPT, so a connection reaches the accept
// loop, and with it a worker, only once request bytes have arrived. An idle
// client therefore does not pin a worker in the request read.
func controlListener(network, address string, c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_DEFER_ACCEPT, deferAcceptSeconds)
	})
	if err != nil {
		return err
	}
	return serr
}
