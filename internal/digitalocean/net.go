package digitalocean

import (
	"context"
	"net"
	"strconv"
	"time"
)

// waitForPort dials host:port every interval until a connection succeeds or
// ctx is done.
func waitForPort(ctx context.Context, host string, port int, interval time.Duration) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	var dialer net.Dialer

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		dialCtx, cancel := context.WithTimeout(ctx, interval)
		conn, err := dialer.DialContext(dialCtx, "tcp", addr)
		cancel()
		if err == nil {
			return conn.Close()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
