package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/keyforge/internal/common"
)

// envelope is the common response shape.
type envelope struct {
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Success bool   `json:"success"`
}

type issueResponse struct {
	Key     string `json:"key"`
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Message string `json:"message"`
	Success bool   `json:"success"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	Success   bool   `json:"success"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// statusFor maps an error to its HTTP status. Anything unrecognised is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrMissingCredential):
		return http.StatusForbidden
	case errors.Is(err, common.ErrTokenMalformed),
		errors.Is(err, common.ErrTokenSignatureInvalid),
		errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrUnknownSubject), errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrorConflict):
		return http.StatusConflict
	case errors.Is(err, common.ErrInvalidField):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// messageFor returns the client-facing message for err. Internal details
// never leave the server.
func messageFor(err error) string {
	sentinels := []error{
		common.ErrMissingCredential,
		common.ErrTokenMalformed,
		common.ErrTokenSignatureInvalid,
		common.ErrTokenExpired,
		common.ErrUnknownSubject,
		common.ErrorNotFound,
		common.ErrorConflict,
		common.ErrorUnauthorized,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	if errors.Is(err, common.ErrInvalidField) {
		return err.Error()
	}
	return common.ErrorInternal.Error()
}

// writeError writes the envelope for err and logs unexpected faults.
func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", RequestIDFromContext(r.Context()),
			"error", err,
		)
	}
	writeJSON(w, status, envelope{Message: messageFor(err)})
}
