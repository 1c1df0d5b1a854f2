//go:build !linux

package server

import (
	"net"
	"time"
)

// setPlatformKeepAlive is a no-op off Linux; conn.SetKeepAlivePeriod
// (already called in tuneTCPConn) is the portable approximation.
func setPlatformKeepAlive(conn *net.TCPConn, idle, interval time.Duration, count int) {}
