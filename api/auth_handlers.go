package api

import (
	"log/slog"
	"net/http"

	"github.com/dashgate/dashgate/auth"
)

// Login handles POST /auth/login. Browsers post username and password
// form-encoded; JSON is accepted for scripts.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if isJSON(r) {
		var ok bool
		if req, ok = decodeJSON[LoginRequest](w, r); !ok {
			return
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
			return
		}
		req.Username = r.PostFormValue("username")
		req.Password = r.PostFormValue("password")
	}
	// Empty fields go through Verify like any other failed attempt.
	account, err := a.core.Verifier.Verify(req.Username, req.Password)
	if err != nil {
		a.audit.logFailure(AuditLoginFailure, r, "invalid credentials",
			slog.String("username", req.Username))
		mapError(w, err)
		return
	}
	session, err := a.core.Sessions.Issue(account)
	if err != nil {
		mapError(w, err)
		return
	}
	writeSessionCookie(w, r, session, a.core.Sessions.TTL())
	a.audit.logEvent(AuditLoginSuccess, r, auth.SessionPrincipal(session).ID())
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// Logout handles POST /auth/logout. Only the presented session ends.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromContext(r.Context())
	if err := a.core.Sessions.Destroy(p.Session.ID); err != nil {
		mapError(w, err)
		return
	}
	clearSessionCookie(w, r)
	a.audit.logEvent(AuditLogout, r, p.ID())
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// LogoutAll handles POST /auth/logout-all, ending every session of the
// account including the presented one.
func (a *API) LogoutAll(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromContext(r.Context())
	if err := a.core.Sessions.DestroyAll(a.core.Account); err != nil {
		mapError(w, err)
		return
	}
	clearSessionCookie(w, r)
	a.audit.logEvent(AuditLogoutAll, r, p.ID())
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// Me handles GET /auth/me.
func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromContext(r.Context())
	writeJSON(w, http.StatusOK, MeResponse{User: p.Account, ExpiresAt: p.Session.ExpiresAt})
}
