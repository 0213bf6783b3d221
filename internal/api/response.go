package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"bankchat/internal/auth"
	"bankchat/internal/hub"
	"bankchat/internal/session"
	"bankchat/pkg/types"
)

// kindUnauthorized is only produced by the HTTP layer; sockets are refused before upgrade
const kindUnauthorized types.ErrorKind = "unauthorized"

// ErrorBody is the payload of every failed API response
type ErrorBody struct {
	Code    types.ErrorKind `json:"code"`
	Message string          `json:"message"`
}

// ErrorResponse wraps ErrorBody under an "error" key
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// JSON writes v with the given status code
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// Error writes a structured error response
func Error(w http.ResponseWriter, status int, kind types.ErrorKind, message string) {
	JSON(w, status, ErrorResponse{Error: ErrorBody{Code: kind, Message: message}})
}

var validationErrors = []error{
	types.ErrInvalidPayload,
	types.ErrInvalidSessionID,
	types.ErrInvalidStatus,
	types.ErrInvalidPriority,
	types.ErrInvalidAgentStatus,
	types.ErrSubjectTooLong,
	types.ErrEmptyMessage,
	types.ErrMessageTooLong,
	session.ErrEmptyUpdate,
}

// writeError maps domain errors onto HTTP status codes
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		Error(w, http.StatusNotFound, types.ErrorKindNotFound, hub.MsgSessionNotFound)
	case errors.Is(err, session.ErrAccessDenied):
		Error(w, http.StatusForbidden, types.ErrorKindForbidden, hub.MsgAccessDenied)
	case errors.Is(err, session.ErrAdminRequired):
		Error(w, http.StatusForbidden, types.ErrorKindForbidden, "Admin privileges required")
	case errors.Is(err, session.ErrNoIdentity):
		unauthorized(w, r, err)
	default:
		for _, target := range validationErrors {
			if errors.Is(err, target) {
				Error(w, http.StatusBadRequest, types.ErrorKindValidation, err.Error())
				return
			}
		}
		log.Printf("API %s %s failed: %v", r.Method, r.URL.Path, err)
		Error(w, http.StatusInternalServerError, types.ErrorKindInternal, "Internal server error")
	}
}

func unauthorized(w http.ResponseWriter, _ *http.Request, _ error) {
	Error(w, http.StatusUnauthorized, kindUnauthorized, "Authentication required")
}

func identityOf(r *http.Request) *types.Identity {
	identity, _ := auth.IdentityFromContext(r.Context())
	return identity
}
