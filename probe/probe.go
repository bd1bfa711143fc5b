// CLAUDE:SUMMARY TCP reachability check used to detect a browser already listening on its remote-debugging port.
// Package probe checks whether a local TCP endpoint accepts connections.
//
// A positive answer only means something is listening. It does not prove the
// endpoint speaks the DevTools protocol; callers must handle a failed attach.
package probe

import (
	"context"
	"net"
	"strconv"
	"time"
)

// DefaultTimeout bounds a single connection attempt.
const DefaultTimeout = 2 * time.Second

// Reachable reports whether host:port accepts a TCP connection within timeout.
// Any dial error, including ctx cancellation, yields false.
func Reachable(ctx context.Context, host string, port int, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// FirstReachable probes hosts in order and returns the first one listening on port.
func FirstReachable(ctx context.Context, hosts []string, port int, timeout time.Duration) (string, bool) {
	for _, h := range hosts {
		if Reachable(ctx, h, port, timeout) {
			return h, true
		}
	}
	return "", false
}
