package server

import (
	"encoding/json"
	"log"
	"net/http"

	apperrors "github.com/NeillJohnston/macropinna/internal/errors"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	ErrorCode  string `json:"error_code"`
	Message    string `json:"message"`
	NextAction string `json:"next_action,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: failed to write response: %v", err)
	}
}

// writeError writes a coded error. The cause of a CodedError is never sent
// to the client.
func writeError(w http.ResponseWriter, status int, err error) {
	code, message := apperrors.ToCodeAndMessage(err)
	writeJSON(w, status, ErrorResponse{
		ErrorCode:  code,
		Message:    message,
		NextAction: apperrors.GetNextAction(code),
	})
}
