package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/hallgate/access-core/internal/ratelimit"
	"github.com/hallgate/access-core/internal/token"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeRateLimited  = "rate_limited"
	ErrCodeUnavailable  = "service_unavailable"
)

// Credential failure codes. Clients branch on these: expired means
// retry with a refreshed credential, the rest mean re-authenticate.
const (
	ErrCodeTokenExpired    = "token_expired"
	ErrCodeTokenMalformed  = "token_malformed"
	ErrCodeTokenRevoked    = "token_revoked"
	ErrCodeTokenStale      = "token_stale"
	ErrCodeAccountInactive = "account_inactive"
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

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeConflict writes a 409 error response.
func writeConflict(w http.ResponseWriter, message string) {
	writeError(w, http.StatusConflict, ErrCodeConflict, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeUnavailable writes a 503 error response.
func writeUnavailable(w http.ResponseWriter, message string) {
	writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, message)
}

// writeRateLimited writes a 429 response with a Retry-After header taken
// from the limiter's rejection.
func writeRateLimited(w http.ResponseWriter, rateErr *ratelimit.RateExceededError) {
	seconds := int(rateErr.RetryAfter.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	writeError(w, http.StatusTooManyRequests, ErrCodeRateLimited, "too many requests, slow down")
}

// outcomeFor classifies a credential check result for metrics tagging.
func outcomeFor(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, token.ErrCredentialExpired):
		return "expired"
	case errors.Is(err, token.ErrCredentialRevoked):
		return "revoked"
	case errors.Is(err, token.ErrCredentialStale):
		return "stale"
	case errors.Is(err, token.ErrAccountInactive):
		return "inactive"
	case errors.Is(err, token.ErrCredentialMalformed):
		return "malformed"
	default:
		return "error"
	}
}

// writeCredentialError maps a token verification failure to its HTTP
// response. All credential failures are 401 so a probing client learns
// nothing beyond the coarse retry class in the code field. An error
// outside the taxonomy is a record-store failure, not a bad credential;
// it surfaces as 503 so clients retry instead of re-authenticating.
func writeCredentialError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, token.ErrCredentialExpired):
		writeError(w, http.StatusUnauthorized, ErrCodeTokenExpired, "credential expired")
	case errors.Is(err, token.ErrCredentialRevoked):
		writeError(w, http.StatusUnauthorized, ErrCodeTokenRevoked, "credential revoked")
	case errors.Is(err, token.ErrCredentialStale):
		writeError(w, http.StatusUnauthorized, ErrCodeTokenStale, "credential predates password change")
	case errors.Is(err, token.ErrAccountInactive):
		writeError(w, http.StatusUnauthorized, ErrCodeAccountInactive, "account is inactive")
	case errors.Is(err, token.ErrCredentialMalformed):
		writeError(w, http.StatusUnauthorized, ErrCodeTokenMalformed, "credential invalid")
	default:
		writeUnavailable(w, "credential verification unavailable")
	}
}
