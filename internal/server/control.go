package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/NeillJohnston/macropinna/internal/bus"
	"github.com/NeillJohnston/macropinna/internal/device"
	apperrors "github.com/NeillJohnston/macropinna/internal/errors"
	"github.com/NeillJohnston/macropinna/internal/netaddr"
)

// ControlConfig holds the dependencies of the local control surface.
type ControlConfig struct {
	// Registry is the device registry. Required.
	Registry *device.Registry

	// Bus delivers registry notifications to /api/events. Optional.
	Bus *bus.Bus

	// URLs lists connection URLs for /api/urls. Optional.
	URLs func() ([]netaddr.RemoteURL, error)
}

// controlHandler serves the operator's API. It must only ever be reachable
// from this machine.
type controlHandler struct {
	registry *device.Registry
	bus      *bus.Bus
	urls     func() ([]netaddr.RemoteURL, error)
	upgrader websocket.Upgrader
}

// NewControlHandler returns the local control surface. Every request is
// refused unless it arrives over a unix socket or from a loopback address.
func NewControlHandler(cfg ControlConfig) http.Handler {
	h := &controlHandler{
		registry: cfg.Registry,
		bus:      cfg.Bus,
		urls:     cfg.URLs,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/current/pending", h.handlePending)
	mux.HandleFunc("GET /api/current/active", h.handleActive)
	mux.HandleFunc("POST /api/approve/{uuid}", h.handleDecision(true))
	mux.HandleFunc("POST /api/reject/{uuid}", h.handleDecision(false))
	mux.HandleFunc("GET /api/urls", h.handleURLs)
	mux.HandleFunc("GET /api/events", h.handleEvents)

	return loopbackOnly(mux)
}

// loopbackOnly rejects requests that did not come from this machine.
func loopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isLoopbackRequest(r) {
			log.Printf("control: refused request from %s", r.RemoteAddr)
			writeError(w, http.StatusForbidden, apperrors.Forbidden())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isLoopbackRequest reports whether r came from a unix socket or a loopback IP.
func isLoopbackRequest(r *http.Request) bool {
	if isUnixSocketRemoteAddr(r.RemoteAddr) {
		return true
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// isUnixSocketRemoteAddr matches the RemoteAddr values net/http reports for
// unix socket peers: empty, "@" (abstract/unnamed) or a filesystem path.
func isUnixSocketRemoteAddr(addr string) bool {
	return addr == "" || addr == "@" || strings.HasPrefix(addr, "/")
}

func (h *controlHandler) handlePending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.ListPending())
}

func (h *controlHandler) handleActive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.ListActive())
}

// handleDecision answers true if the device was pending and is now resolved.
func (h *controlHandler) handleDecision(approve bool) http.HandlerFunc {
	verb := "rejected"
	if approve {
		verb = "approved"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("uuid"))
		if err != nil {
			writeError(w, http.StatusBadRequest, apperrors.InvalidRequest("malformed device id"))
			return
		}

		if err := h.registry.ResolvePending(id, approve); err != nil {
			log.Printf("control: %v", apperrors.NotPending(id.String()))
			writeJSON(w, http.StatusOK, false)
			return
		}
		log.Printf("control: operator %s device %s", verb, id)
		writeJSON(w, http.StatusOK, true)
	}
}

func (h *controlHandler) handleURLs(w http.ResponseWriter, r *http.Request) {
	if h.urls == nil {
		writeJSON(w, http.StatusOK, []netaddr.RemoteURL{})
		return
	}
	urls, err := h.urls()
	if err != nil {
		writeError(w, http.StatusInternalServerError, apperrors.Internal("failed to list interfaces", err))
		return
	}
	if urls == nil {
		urls = []netaddr.RemoteURL{}
	}
	writeJSON(w, http.StatusOK, urls)
}

// handleEvents streams registry notifications as JSON text frames until the
// client disconnects.
func (h *controlHandler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if h.bus == nil {
		writeError(w, http.StatusServiceUnavailable, apperrors.New(apperrors.CodeTransportClosed, "event stream unavailable"))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("control: event stream upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sub := h.bus.Subscribe(device.TopicPrefix)
	defer sub.Close()

	// The reader only exists to notice the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				log.Printf("control: failed to encode event: %v", err)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ControlServer serves the control surface on a loopback TCP port.
type ControlServer struct {
	addr    string
	handler http.Handler

	mu         sync.Mutex
	httpServer *http.Server
	cancel     context.CancelFunc
	listenAddr string
}

// NewControlServer creates a control server for addr, which must resolve to
// a loopback address.
func NewControlServer(addr string, handler http.Handler) *ControlServer {
	return &ControlServer{addr: addr, handler: handler}
}

// Start binds the listener and serves in a goroutine.
func (c *ControlServer) Start() error {
	host, _, err := net.SplitHostPort(c.addr)
	if err != nil {
		return fmt.Errorf("invalid control address %q: %w", c.addr, err)
	}
	if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		return fmt.Errorf("control address %q is not a loopback address", c.addr)
	}

	ln, err := net.Listen("tcp", c.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", c.addr, err)
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Handler:           c.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return baseCtx
		},
	}

	c.mu.Lock()
	c.httpServer = srv
	c.cancel = cancel
	c.listenAddr = ln.Addr().String()
	c.mu.Unlock()

	go func() {
		log.Printf("control: listening on %s", ln.Addr())
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("control: serve error: %v", err)
		}
	}()
	return nil
}

// ListenAddr returns the bound address after Start.
func (c *ControlServer) ListenAddr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listenAddr
}

// Stop shuts the server down, ending open event streams.
func (c *ControlServer) Stop(ctx context.Context) error {
	c.mu.Lock()
	srv, cancel := c.httpServer, c.cancel
	c.httpServer, c.cancel = nil, nil
	c.mu.Unlock()

	if srv == nil {
		return nil
	}
	cancel()
	return srv.Shutdown(ctx)
}
