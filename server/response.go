package server

import (
	"encoding/json"
	"net/http"

	"github.com/hspbot/hspbot/errors"
)

// writeJSON sends a JSON response with the given status
func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Errorw("Failed to encode response", "error", err)
	}
}

// writeError maps a domain error to an HTTP status and JSON error body
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.IsNotFoundError(err):
		status = http.StatusNotFound
	case errors.IsDuplicateJobError(err):
		status = http.StatusConflict
	case errors.IsWindowExpiredError(err):
		status = http.StatusUnprocessableEntity
	case errors.IsAuthError(err):
		status = http.StatusUnauthorized
	case errors.Is(err, errors.ErrInvalidRequest):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		s.log.Errorw("Request failed", "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// decodeBody parses a JSON request body into dst
func decodeBody(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.NewInvalidRequestError("invalid JSON body: %s", err.Error())
	}
	return nil
}
