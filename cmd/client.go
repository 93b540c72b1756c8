package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NeillJohnston/macropinna/internal/config"
	"github.com/NeillJohnston/macropinna/internal/device"
	"github.com/NeillJohnston/macropinna/internal/ipc"
	"github.com/NeillJohnston/macropinna/internal/netaddr"
	"github.com/NeillJohnston/macropinna/internal/server"
)

// clientFlags are shared by every command that talks to a running server.
type clientFlags struct {
	ConfigPath string
	Socket     string
	Addr       string
	JSON       bool
}

func (f *clientFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.ConfigPath, "config", "", "Path to config file (default: <config dir>/macropinna/remote.toml)")
	fs.StringVar(&f.Socket, "socket", "", "Control socket path (default: from config)")
	fs.StringVar(&f.Addr, "addr", "", "Loopback control address, e.g. 127.0.0.1:51740 (overrides the socket)")
	fs.BoolVar(&f.JSON, "json", false, "Output in JSON format")
}

// controlClient talks to the local control surface, over the unix socket
// when it is up and the loopback port otherwise.
type controlClient struct {
	http    *http.Client
	baseURL string
	dialer  *websocket.Dialer
	wsBase  string
}

func newControlClient(f *clientFlags) (*controlClient, error) {
	if f.Addr != "" {
		return tcpControlClient(f.Addr), nil
	}

	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return nil, err
	}
	dir, err := config.DefaultDir()
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults(dir)

	socket := f.Socket
	if socket == "" {
		socket = cfg.ControlSocket
	}
	if ipc.SocketAvailable(socket) {
		return socketControlClient(socket), nil
	}
	return tcpControlClient("127.0.0.1:" + strconv.Itoa(cfg.InternalPort)), nil
}

func socketControlClient(path string) *controlClient {
	return &controlClient{
		http:    ipc.NewSocketClient(path, 5*time.Second),
		baseURL: ipc.SocketBaseURL,
		dialer: &websocket.Dialer{
			NetDialContext:   ipc.SocketDialer(path),
			HandshakeTimeout: 5 * time.Second,
		},
		wsBase: "ws://unix",
	}
}

func tcpControlClient(addr string) *controlClient {
	return &controlClient{
		http:    &http.Client{Timeout: 5 * time.Second},
		baseURL: "http://" + addr,
		dialer:  &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		wsBase:  "ws://" + addr,
	}
}

func (c *controlClient) do(method, path string, out any) error {
	req, err := http.NewRequest(method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("could not reach the remote server (is 'serve' running?): %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp server.ErrorResponse
		body, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(body, &errResp) == nil && errResp.Message != "" {
			return fmt.Errorf("%s (%s)", errResp.Message, errResp.ErrorCode)
		}
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *controlClient) pending() ([]device.PendingInfo, error) {
	var list []device.PendingInfo
	err := c.do(http.MethodGet, "/api/current/pending", &list)
	return list, err
}

func (c *controlClient) active() ([]device.ActiveInfo, error) {
	var list []device.ActiveInfo
	err := c.do(http.MethodGet, "/api/current/active", &list)
	return list, err
}

// decide approves or rejects id and reports whether it was pending.
func (c *controlClient) decide(id string, approve bool) (bool, error) {
	path := "/api/reject/" + id
	if approve {
		path = "/api/approve/" + id
	}
	var ok bool
	err := c.do(http.MethodPost, path, &ok)
	return ok, err
}

func (c *controlClient) urls() ([]netaddr.RemoteURL, error) {
	var list []netaddr.RemoteURL
	err := c.do(http.MethodGet, "/api/urls", &list)
	return list, err
}

// events opens the event stream.
func (c *controlClient) events(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.wsBase+"/api/events", nil)
	if err != nil {
		return nil, fmt.Errorf("could not open event stream: %w", err)
	}
	return conn, nil
}
