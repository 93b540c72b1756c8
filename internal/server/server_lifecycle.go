package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"
)

// TLSConfig holds the TLS configuration for the server.
type TLSConfig struct {
	CertPath string
	KeyPath  string
}

// StartAsyncTLS listens on the configured address and serves HTTPS in a
// goroutine. The returned channel receives nil once serving has begun, or
// the error that prevented it (port in use, unreadable certificate).
func (s *Server) StartAsyncTLS(tlsCfg TLSConfig) <-chan error {
	errCh := make(chan error, 1)

	cert, err := tls.LoadX509KeyPair(tlsCfg.CertPath, tlsCfg.KeyPath)
	if err != nil {
		errCh <- fmt.Errorf("failed to load TLS certificate: %w", err)
		close(errCh)
		return errCh
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		errCh <- fmt.Errorf("failed to listen on %s: %w", s.addr, err)
		close(errCh)
		return errCh
	}

	tlsLn := tls.NewListener(ln, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	})
	s.serve(tlsLn, errCh, "TLS enabled")
	return errCh
}

// StartAsync is StartAsyncTLS without TLS. It exists for tests and for
// running behind a TLS-terminating proxy.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		errCh <- fmt.Errorf("failed to listen on %s: %w", s.addr, err)
		close(errCh)
		return errCh
	}
	s.serve(ln, errCh, "plaintext")
	return errCh
}

func (s *Server) serve(ln net.Listener, errCh chan<- error, mode string) {
	// Request contexts derive from baseCtx so Stop can release approval waits.
	baseCtx, cancel := context.WithCancel(context.Background())
	httpServer := &http.Server{
		Handler:           s.createMux(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return baseCtx
		},
	}

	s.mu.Lock()
	s.httpServer = httpServer
	s.cancelRequests = cancel
	s.listenAddr = ln.Addr().String()
	s.mu.Unlock()

	go func() {
		log.Printf("server: listening on %s (%s)", ln.Addr(), mode)
		errCh <- nil
		close(errCh)

		if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("server: serve error: %v", err)
		}
	}()
}

// ListenAddr returns the bound address once started, e.g. when Addr used port 0.
func (s *Server) ListenAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listenAddr
}

// Stop shuts the listener down, waits for in-flight requests (including
// approval waits, which see their context cancelled) and closes every
// active control session. Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	httpServer := s.httpServer
	cancel := s.cancelRequests
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if httpServer != nil {
		err = httpServer.Shutdown(ctx)
	}
	s.registry.CloseActive()
	return err
}
