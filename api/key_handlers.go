package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dashgate/dashgate/auth"
)

func keySummary(k auth.APIKey) KeySummary {
	return KeySummary{
		KeyID:     k.KeyID,
		Scopes:    k.Scopes,
		CreatedAt: k.CreatedAt,
		RevokedAt: k.RevokedAt,
	}
}

// ListKeys handles GET /keys.
func (a *API) ListKeys(w http.ResponseWriter, r *http.Request) {
	keys := a.core.Keys.List(a.core.Account)
	out := make([]KeySummary, 0, len(keys))
	for _, k := range keys {
		out = append(out, keySummary(k))
	}
	writeJSON(w, http.StatusOK, out)
}

// IssueKey handles POST /keys/new. The response is the only place the
// secret ever appears.
func (a *API) IssueKey(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[IssueKeyRequest](w, r)
	if !ok {
		return
	}
	p, _ := PrincipalFromContext(r.Context())
	issued, err := a.core.Keys.Issue(a.core.Account, req.Scopes)
	if err != nil {
		mapError(w, err)
		return
	}
	a.audit.logEvent(AuditKeyIssued, r, p.ID(),
		slog.String("key_id", issued.KeyID),
		slog.String("scopes", strings.Join(issued.Scopes, " ")))
	if err := a.appendAuditEntry(AuditKeyIssued, issued.KeyID, p.ID(), issued.Scopes); err != nil {
		slog.Warn("persisting key audit entry failed", "key_id", issued.KeyID, "error", err)
	}
	writeJSON(w, http.StatusOK, IssueKeyResponse{
		KeyID:  issued.KeyID,
		Secret: issued.Secret,
		Scopes: issued.Scopes,
	})
}

// RevokeKey handles POST /keys/revoke.
func (a *API) RevokeKey(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[RevokeKeyRequest](w, r)
	if !ok {
		return
	}
	if req.KeyID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "key_id is required")
		return
	}
	p, _ := PrincipalFromContext(r.Context())
	k, err := a.core.Keys.Revoke(a.core.Account, req.KeyID)
	if err != nil {
		_, code, _ := errorStatus(err)
		a.audit.logEvent(AuditKeyRevokeFailed, r, p.ID(),
			slog.String("key_id", req.KeyID), slog.String("reason", code))
		mapError(w, err)
		return
	}
	a.audit.logEvent(AuditKeyRevoked, r, p.ID(), slog.String("key_id", k.KeyID))
	if err := a.appendAuditEntry(AuditKeyRevoked, k.KeyID, p.ID(), k.Scopes); err != nil {
		slog.Warn("persisting key audit entry failed", "key_id", k.KeyID, "error", err)
	}
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}
