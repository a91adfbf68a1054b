package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coreplane/coreplane/pkg/access"
	"github.com/coreplane/coreplane/pkg/connection"
	"github.com/coreplane/coreplane/pkg/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeDomainError maps the error taxonomy onto HTTP statuses. The
// unauthorized message is deliberately uniform.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, access.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, access.ErrNotFound), errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, connection.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid connection state transition")
	case errors.Is(err, connection.ErrUnknownChannel):
		writeError(w, http.StatusBadRequest, "unknown channel")
	case errors.Is(err, access.ErrUpstream):
		writeError(w, http.StatusBadGateway, "upstream unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// bearerToken extracts the token from an Authorization header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return ""
	}
	return header[len(prefix):]
}
