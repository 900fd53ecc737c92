package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/dashgate/dashgate/auth"
)

const maxBodySize = 64 << 10

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

// errorStatus maps an error to its HTTP status, stable code and generic
// message. Messages never say which part of a credential was wrong.
func errorStatus(err error) (int, string, string) {
	switch {
	case errors.Is(err, auth.ErrAuthenticationFailed):
		return http.StatusUnauthorized, "authentication_failed", "invalid credentials"
	case errors.Is(err, auth.ErrSessionInvalid):
		return http.StatusUnauthorized, "session_invalid", "not authenticated"
	case errors.Is(err, auth.ErrSessionExpired):
		return http.StatusUnauthorized, "session_expired", "session expired"
	case errors.Is(err, auth.ErrAmbiguousCredentials):
		return http.StatusUnauthorized, "ambiguous_credentials", "present either a session or an api key"
	case errors.Is(err, auth.ErrKeyRevoked):
		return http.StatusUnauthorized, "key_revoked", "api key revoked"
	case errors.Is(err, auth.ErrSecretMismatch):
		return http.StatusUnauthorized, "invalid_key", "invalid api key"
	case errors.Is(err, auth.ErrCSRFMismatch):
		return http.StatusForbidden, "csrf_mismatch", "invalid csrf token"
	case errors.Is(err, auth.ErrScopeDenied):
		return http.StatusForbidden, "scope_denied", "insufficient scope"
	case errors.Is(err, auth.ErrInvalidScope):
		return http.StatusBadRequest, "invalid_scope", "unknown scope requested"
	case errors.Is(err, auth.ErrKeyNotFound):
		return http.StatusNotFound, "key_not_found", "key not found"
	case errors.Is(err, auth.ErrKeyAlreadyRevoked):
		return http.StatusConflict, "key_already_revoked", "key already revoked"
	case errors.Is(err, auth.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable", "service temporarily unavailable"
	default:
		return http.StatusInternalServerError, "internal", "internal server error"
	}
}

func mapError(w http.ResponseWriter, err error) {
	status, code, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeError(w, status, code, msg)
}

// mapAuthError is mapError for the request-authentication path, where an
// unknown key id must look the same as a wrong secret.
func mapAuthError(w http.ResponseWriter, err error) {
	if errors.Is(err, auth.ErrKeyNotFound) {
		err = auth.ErrSecretMismatch
	}
	mapError(w, err)
}

// decodeJSON reads a size-limited JSON body into T.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return v, false
	}
	return v, true
}

func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}
