package api

import "net/http"

// CSRFToken handles GET /auth/csrf. The token is bound to the session and
// must be echoed in X-CSRF-Token on every mutating request made with it.
func (a *API) CSRFToken(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromContext(r.Context())
	token, err := a.core.CSRF.IssueToken(p.Session)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CSRFResponse{Token: token})
}
