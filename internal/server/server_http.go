package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/NeillJohnston/macropinna/internal/device"
	apperrors "github.com/NeillJohnston/macropinna/internal/errors"
)

// maxRegisterBody bounds the registration request body.
const maxRegisterBody = 4 << 10

// RegisterRequest is the body of POST /api/register.
type RegisterRequest struct {
	DeviceName string `json:"device_name"`
}

// RegisterResponse is returned by POST /api/register.
type RegisterResponse struct {
	UUID string `json:"uuid"`
	Code string `json:"code"`
}

// ApprovalResponse is returned by POST /api/register/{uuid}. JWT is null
// when the device was rejected or the operator did not answer in time.
type ApprovalResponse struct {
	JWT *string `json:"jwt"`
}

// createMux creates the HTTP mux with all external endpoints.
func (s *Server) createMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("POST /api/register", s.handleRegister)
	mux.HandleFunc("POST /api/register/{uuid}", s.handleAwaitApproval)
	log.Printf("server: pairing endpoints registered at /api/register")

	mux.HandleFunc("GET /api/ws/{token}", s.handleWebSocket)
	mux.HandleFunc("GET /api/ws", s.handleWebSocket)

	if s.staticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(s.staticDir)))
		log.Printf("server: serving web client from %s", s.staticDir)
	}

	return mux
}

// handleRegister starts pairing: it assigns a UUID and a pairing code and
// records the device as initiated.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !s.registerLimiter.Allow() {
		writeError(w, http.StatusTooManyRequests, apperrors.RateLimited())
		return
	}

	var req RegisterRequest
	body := http.MaxBytesReader(w, r.Body, maxRegisterBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		if errBodyTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, apperrors.InvalidRequest("request body too large"))
			return
		}
		writeError(w, http.StatusBadRequest, apperrors.InvalidRequest("request body must be JSON with device_name"))
		return
	}

	code, err := s.generateCode()
	if err != nil {
		log.Printf("server: failed to generate pairing code: %v", err)
		writeError(w, http.StatusInternalServerError, apperrors.Internal("failed to generate pairing code", err))
		return
	}

	id := device.Identity{
		UUID:  uuid.New(),
		Name:  sanitizeName(req.DeviceName),
		Agent: device.ClassifyAgent(r.UserAgent()),
		Code:  code,
	}
	s.registry.AddInitiated(id)

	log.Printf("server: device %q (%s) registered as %s", id.Name, id.Agent, id.UUID)
	writeJSON(w, http.StatusOK, RegisterResponse{UUID: id.UUID.String(), Code: code})
}

// handleAwaitApproval moves the device to pending and holds the request
// open until the operator decides, the timeout fires or the client goes
// away. The pending entry is removed on every exit path.
func (s *Server) handleAwaitApproval(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("uuid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, apperrors.InvalidRequest("malformed device id"))
		return
	}

	decisions, ok := s.registry.PromoteToPending(id)
	if !ok {
		writeError(w, http.StatusUnauthorized, apperrors.UnknownDevice(id.String()))
		return
	}

	delivered := false
	defer func() {
		s.registry.RemovePending(id)
		if delivered {
			return
		}
		// An approval that raced the timeout or disconnect is never used.
		select {
		case d := <-decisions:
			if d.Approved {
				s.registry.DiscardApproved(id)
			}
		default:
		}
	}()

	log.Printf("server: device %s waiting for approval", id)

	timer := time.NewTimer(s.approvalTimeout)
	defer timer.Stop()

	select {
	case d := <-decisions:
		delivered = true
		if !d.Approved {
			log.Printf("server: device %s rejected", id)
			writeJSON(w, http.StatusOK, ApprovalResponse{})
			return
		}

		token, err := s.codec.Sign(d.Identity)
		if err != nil {
			s.registry.DiscardApproved(id)
			log.Printf("server: failed to issue credential for %s: %v", id, err)
			writeError(w, http.StatusInternalServerError, apperrors.Internal("failed to issue credential", err))
			return
		}
		log.Printf("server: device %s approved", id)
		writeJSON(w, http.StatusOK, ApprovalResponse{JWT: &token})

	case <-timer.C:
		log.Printf("server: approval for %s timed out after %v", id, s.approvalTimeout)
		writeJSON(w, http.StatusOK, ApprovalResponse{})

	case <-r.Context().Done():
		log.Printf("server: device %s stopped waiting for approval", id)
	}
}

// handleWebSocket authenticates a credential and upgrades to a control session.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if token == "" {
		token = extractBearerToken(r)
	}

	claims, err := s.codec.Verify(token)
	if err != nil {
		log.Printf("server: control connection rejected: %v", err)
		writeError(w, http.StatusUnauthorized, apperrors.InvalidCredential(err))
		return
	}

	// Checked before the claim so a stray GET cannot burn the credential.
	if !websocket.IsWebSocketUpgrade(r) {
		writeError(w, http.StatusBadRequest, apperrors.InvalidRequest("expected WebSocket upgrade"))
		return
	}

	deviceID, err := claims.DeviceID()
	if err != nil {
		writeError(w, http.StatusUnauthorized, apperrors.InvalidCredential(err))
		return
	}
	identity, err := s.registry.ClaimApproved(deviceID)
	if err != nil {
		log.Printf("server: control connection for %s rejected: %v", deviceID, err)
		writeError(w, http.StatusUnauthorized, apperrors.NotApproved(deviceID.String(), err))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.registry.DiscardApproved(deviceID)
		log.Printf("server: WebSocket upgrade failed for %s: %v", deviceID, err)
		return
	}

	sess := &session{
		conn:     conn,
		identity: identity,
		registry: s.registry,
		player:   s.player,
		done:     make(chan struct{}),
		// Generous for pointer streams, bounded against floods.
		limiter: rate.NewLimiter(rate.Limit(1000), 50),
	}
	s.registry.AddActive(identity, sess)
	log.Printf("server: device %q connected (%d active)", identity.Name, s.ActiveCount())

	go sess.writePump()
	go sess.readPump()
}

// extractBearerToken reads the credential from the Authorization header,
// falling back to the token query parameter for WebSocket clients that
// cannot set headers.
func extractBearerToken(r *http.Request) string {
	const bearerPrefix = "Bearer "
	if auth := r.Header.Get("Authorization"); len(auth) > len(bearerPrefix) {
		if strings.EqualFold(auth[:len(bearerPrefix)], bearerPrefix) {
			return auth[len(bearerPrefix):]
		}
	}
	return r.URL.Query().Get("token")
}

// sanitizeName trims the device name, strips control characters and caps its
// length. An empty result becomes device.DefaultName.
func sanitizeName(name string) string {
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, strings.TrimSpace(name))

	if utf8.RuneCountInString(name) > maxDeviceNameRunes {
		name = string([]rune(name)[:maxDeviceNameRunes])
	}
	if name == "" {
		return device.DefaultName
	}
	return name
}

// errBodyTooLarge reports whether err came from http.MaxBytesReader.
func errBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
