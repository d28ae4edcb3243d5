package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gallery-core/internal/auth"
	"github.com/nerrad567/gallery-core/internal/media"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error Error `json:"error"`
}

// Common error codes. Validation failures use the auth package's field
// codes (username_length, role_invalid, ...).
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeNotFound           = "not_found"
	ErrCodeUnauthorized       = "unauthorised"
	ErrCodeInvalidCredentials = "invalid_credentials"
	ErrCodeForbidden          = "forbidden"
	ErrCodeSelfModification   = "self_modification"
	ErrCodeAccessDenied       = "access_denied"
	ErrCodeLastAdmin          = auth.CodeLastAdmin
	ErrCodeConflict           = "conflict"
	ErrCodeInvalidName        = "invalid_name"
	ErrCodeUnsupportedType    = "unsupported_type"
	ErrCodeTooLarge           = "too_large"
	ErrCodeRateLimited        = "rate_limited"
	ErrCodeInternal           = "internal_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response with the message for code
// in the request's language. fallback is used when code has no catalog entry.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, fallback string) {
	writeJSON(w, status, errorResponse{Error: Error{
		Status:  status,
		Code:    code,
		Message: localize(r, code, fallback),
	}})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	writeError(w, r, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, "")
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusInternalServerError, ErrCodeInternal, "")
}

// writeServiceError maps an error from the gallery service onto a response.
// Anything unrecognised is logged and reported as a bare 500.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *auth.ValidationError
		ierr *auth.InvariantError
	)

	switch {
	case errors.As(err, &verr):
		if errors.Is(err, auth.ErrUserNotFound) {
			writeError(w, r, http.StatusNotFound, ErrCodeNotFound, "")
			return
		}
		writeError(w, r, http.StatusBadRequest, verr.Code, verr.Message)
	case errors.As(err, &ierr):
		writeError(w, r, http.StatusConflict, ierr.Code, ierr.Message)
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, ErrCodeInvalidCredentials, "")
	case errors.Is(err, auth.ErrUnauthorized):
		writeUnauthorized(w, r)
	case errors.Is(err, auth.ErrSelfModification):
		writeError(w, r, http.StatusForbidden, ErrCodeSelfModification, "")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, ErrCodeForbidden, "")
	case errors.Is(err, media.ErrAccessDenied):
		// Missing and escaping paths look the same to the client.
		writeError(w, r, http.StatusForbidden, ErrCodeAccessDenied, "")
	case errors.Is(err, auth.ErrUserNotFound):
		writeError(w, r, http.StatusNotFound, ErrCodeNotFound, "")
	case errors.Is(err, media.ErrInvalidName):
		writeError(w, r, http.StatusBadRequest, ErrCodeInvalidName, "")
	case errors.Is(err, media.ErrUnsupportedType):
		writeError(w, r, http.StatusBadRequest, ErrCodeUnsupportedType, "")
	case errors.Is(err, media.ErrFolderExists):
		writeError(w, r, http.StatusConflict, ErrCodeConflict, "")
	case errors.Is(err, media.ErrTooLarge):
		writeError(w, r, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "")
	default:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", r.Context().Value(ctxKeyRequestID),
			"error", err,
		)
		writeInternalError(w, r)
	}
}
