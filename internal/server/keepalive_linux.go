//go:build linux

package server

import (
	"net"
	"syscall"
	"time"
)

// setPlatformKeepAlive sets the per-field TCP_KEEPIDLE/TCP_KEEPINTVL/
// TCP_KEEPCNT values server.c configures (SUPPLEMENTED FEATURES §C). Go's
// stdlib only exposes a single combined keepalive period, so the exact
// idle/interval/count triple needs syscall.SetsockoptInt directly — no
// third-party library in the retrieval pack wraps this.
func setPlatformKeepAlive(conn *net.TCPConn, idle, interval time.Duration, count int) {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return
	}

	_ = rawConn.Control(func(fd uintptr) {
		_ = syscall.SetsockoptInt(int(fd), syscall.IPPROTO_TCP, syscall.TCP_KEEPIDLE, int(idle.Seconds()))
		_ = syscall.SetsockoptInt(int(fd), syscall.IPPROTO_TCP, syscall.TCP_KEEPINTVL, int(interval.Seconds()))
		_ = syscall.SetsockoptInt(int(fd), syscall.IPPROTO_TCP, syscall.TCP_KEEPCNT, count)
	})
}
