package api

import "time"

// LoginRequest is the JSON form of POST /auth/login. Browsers post the same
// fields form-encoded.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// OKResponse acknowledges a request with no other result.
type OKResponse struct {
	OK bool `json:"ok"`
}

// MeResponse is returned from GET /auth/me.
type MeResponse struct {
	User      string    `json:"user"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CSRFResponse is returned from GET /auth/csrf.
type CSRFResponse struct {
	Token string `json:"token"`
}

// IssueKeyRequest is the JSON body for POST /keys/new.
type IssueKeyRequest struct {
	Scopes []string `json:"scopes"`
}

// IssueKeyResponse is returned from POST /keys/new. The secret is not
// retrievable afterwards.
type IssueKeyResponse struct {
	KeyID  string   `json:"key_id"`
	Secret string   `json:"secret"`
	Scopes []string `json:"scopes"`
}

// KeySummary describes one capability key without its secret.
type KeySummary struct {
	KeyID     string     `json:"key_id"`
	Scopes    []string   `json:"scopes"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at"`
}

// RevokeKeyRequest is the JSON body for POST /keys/revoke.
type RevokeKeyRequest struct {
	KeyID string `json:"key_id"`
}

// ScopesResponse is returned from GET /scopes.
type ScopesResponse struct {
	Scopes []string `json:"scopes"`
}

// RouteInfo describes one registered route.
type RouteInfo struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

// RoutesResponse is returned from GET /ops/routes.
type RoutesResponse struct {
	Routes []RouteInfo `json:"routes"`
}

// AuditResponse is returned from GET /ops/audit.
type AuditResponse struct {
	Entries []AuditEntry `json:"entries"`
}

// HealthResponse is returned from GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

// ErrorResponse is returned for all error cases.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
