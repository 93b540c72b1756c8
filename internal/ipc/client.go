package ipc

import (
	"context"
	"net"
	"net/http"
	"time"
)

// SocketBaseURL is the URL prefix for requests made with NewSocketClient.
// The host part is ignored by the dialer.
const SocketBaseURL = "http://unix"

// NewSocketClient returns an HTTP client whose every connection goes to the
// Unix socket at path.
func NewSocketClient(path string, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &http.Transport{DialContext: SocketDialer(path)},
	}
}

// SocketDialer returns a DialContext func that ignores its address and
// connects to path. It also serves WebSocket dialers.
func SocketDialer(path string) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, _, _ string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "unix", path)
	}
}

// SocketAvailable reports whether something is listening on path.
func SocketAvailable(path string) bool {
	conn, err := net.DialTimeout("unix", path, 200*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
