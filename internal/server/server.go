// Package server implements the external HTTPS pairing surface, the control
// sessions approved devices stream events over, and the local-only control
// surface the launcher UI uses to approve devices.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/NeillJohnston/macropinna/internal/auth"
	"github.com/NeillJohnston/macropinna/internal/device"
	"github.com/NeillJohnston/macropinna/internal/input"
)

// Defaults used when Config leaves a field empty.
const (
	DefaultApprovalTimeout   = 60 * time.Second
	DefaultRegisterPerMinute = 30

	// maxDeviceNameRunes caps the name shown to the operator.
	maxDeviceNameRunes = 64
)

// EventPlayer receives decoded control events. Play must not block.
type EventPlayer interface {
	Play(input.Event) bool
}

// Config holds everything the external server needs.
type Config struct {
	// Addr is the host:port to listen on, e.g. "0.0.0.0:5174".
	Addr string

	// Registry tracks devices through pairing. Required.
	Registry *device.Registry

	// Codec signs and verifies credentials. Required.
	Codec *auth.Codec

	// Player receives control events from active sessions. Required.
	Player EventPlayer

	// ApprovalTimeout bounds how long a device waits for the operator.
	// Default: 60 seconds
	ApprovalTimeout time.Duration

	// RegisterPerMinute limits POST /api/register across all clients.
	// Default: 30
	RegisterPerMinute int

	// StaticDir holds the companion web client served at /. Optional.
	StaticDir string

	// GenerateCode returns pairing codes. If nil, auth.GenerateCode is used.
	GenerateCode func() (string, error)
}

// Server is the external HTTPS server remote devices talk to.
type Server struct {
	addr            string
	registry        *device.Registry
	codec           *auth.Codec
	player          EventPlayer
	approvalTimeout time.Duration
	registerLimiter *rate.Limiter
	staticDir       string
	generateCode    func() (string, error)

	// upgrader converts HTTP connections to WebSocket connections.
	// Any origin is accepted; the credential is what authorizes a session.
	upgrader websocket.Upgrader

	mu             sync.RWMutex
	httpServer     *http.Server
	cancelRequests context.CancelFunc
	listenAddr     string
	stopped        bool
}

// New creates a server. It does not start listening.
func New(cfg Config) *Server {
	if cfg.ApprovalTimeout <= 0 {
		cfg.ApprovalTimeout = DefaultApprovalTimeout
	}
	if cfg.RegisterPerMinute <= 0 {
		cfg.RegisterPerMinute = DefaultRegisterPerMinute
	}
	if cfg.GenerateCode == nil {
		cfg.GenerateCode = auth.GenerateCode
	}

	burst := cfg.RegisterPerMinute / 6
	if burst < 1 {
		burst = 1
	}

	return &Server{
		addr:            cfg.Addr,
		registry:        cfg.Registry,
		codec:           cfg.Codec,
		player:          cfg.Player,
		approvalTimeout: cfg.ApprovalTimeout,
		registerLimiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RegisterPerMinute)), burst),
		staticDir:       cfg.StaticDir,
		generateCode:    cfg.GenerateCode,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Handler returns the HTTP handler for the external surface.
func (s *Server) Handler() http.Handler {
	return s.createMux()
}

// ActiveCount returns the number of connected devices.
func (s *Server) ActiveCount() int {
	return len(s.registry.ListActive())
}
