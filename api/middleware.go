package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dashgate/dashgate/auth"
)

type contextKey int

const principalKey contextKey = iota

const (
	sessionCookieName = "dash_session"
	csrfHeaderName    = "X-CSRF-Token"
	keyIDHeaderName   = "X-API-Key-ID"
	keySecretHeader   = "X-API-Key-Secret"
)

// credentialsFromRequest collects whatever credentials r carries. It makes
// no judgement; the facade decides what the combination means.
func credentialsFromRequest(r *http.Request) auth.Credentials {
	var creds auth.Credentials
	if c, err := r.Cookie(sessionCookieName); err == nil {
		creds.SessionCookie = c.Value
	}
	creds.KeyID = strings.TrimSpace(r.Header.Get(keyIDHeaderName))
	creds.KeySecret = strings.TrimSpace(r.Header.Get(keySecretHeader))
	creds.CSRFToken = r.Header.Get(csrfHeaderName)
	return creds
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// Require authorizes every request against scope. Browser sessions must
// send X-CSRF-Token on mutating methods; capability keys are exempt. The
// resolved principal is available to the handler through
// PrincipalFromContext.
//
// Collaborators mount it on their own routes:
//
//	r.With(a.Require("files:write")).Post("/files/upload", upload)
func (a *API) Require(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := a.core.Facade.AuthorizeRequest(credentialsFromRequest(r), scope, isMutating(r.Method))
			if err != nil {
				a.deny(w, r, err, slog.String("scope", scope))
				return
			}
			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
		})
	}
}

// RequireSession admits only browser sessions, with CSRF on mutating
// methods. Key management and logout are account operations, not scoped
// ones, so keys cannot reach them.
func (a *API) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := a.core.Facade.AuthenticateSession(credentialsFromRequest(r), isMutating(r.Method))
		if err != nil {
			a.deny(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
	})
}

func (a *API) deny(w http.ResponseWriter, r *http.Request, err error, extra ...slog.Attr) {
	_, code, _ := errorStatus(err)
	attrs := append([]slog.Attr{slog.String("path", r.URL.Path)}, extra...)
	if id := r.Header.Get(keyIDHeaderName); id != "" {
		attrs = append(attrs, slog.String("key_id", id))
	}
	switch {
	case errors.Is(err, auth.ErrStoreUnavailable):
	case errors.Is(err, auth.ErrCSRFMismatch):
		a.audit.logFailure(AuditCSRFRejected, r, code, attrs...)
	case errors.Is(err, auth.ErrScopeDenied):
		a.audit.logFailure(AuditScopeDenied, r, code, attrs...)
	default:
		a.audit.logFailure(AuditAuthDenied, r, code, attrs...)
	}
	mapAuthError(w, err)
}

func withPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the principal stored by Require or
// RequireSession.
func PrincipalFromContext(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(principalKey).(auth.Principal)
	return p, ok
}

// CORS allows credentialed requests from the configured origin only.
func (a *API) CORS(next http.Handler) http.Handler {
	allowHeaders := strings.Join([]string{"Content-Type", csrfHeaderName, keyIDHeaderName, keySecretHeader}, ", ")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || origin != a.corsOrigin {
			next.ServeHTTP(w, r)
			return
		}
		h := w.Header()
		h.Add("Vary", "Origin")
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeSessionCookie(w http.ResponseWriter, r *http.Request, s *auth.Session, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    s.Cookie(),
		Path:     "/",
		HttpOnly: true,
		Secure:   requestIsSecure(r),
		SameSite: http.SameSiteLaxMode,
		Expires:  s.ExpiresAt,
		MaxAge:   int(ttl / time.Second),
	})
}

func clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   requestIsSecure(r),
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}
