package api

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dashgate/dashgate/storage"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// ListScopes handles GET /scopes.
func (a *API) ListScopes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ScopesResponse{Scopes: a.core.Scopes.Scopes()})
}

// ListRoutes handles GET /ops/routes: the routes of the serving router,
// without the API explorer.
func (a *API) ListRoutes(w http.ResponseWriter, r *http.Request) {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil || rctx.Routes == nil {
		writeJSON(w, http.StatusOK, RoutesResponse{Routes: []RouteInfo{}})
		return
	}
	routes := []RouteInfo{}
	err := chi.Walk(rctx.Routes, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		route = strings.TrimRight(route, "/")
		if route == "" {
			route = "/"
		}
		if strings.HasSuffix(route, "/openapi.yaml") || isExplorerPath(route) {
			return nil
		}
		routes = append(routes, RouteInfo{Method: method, Path: route})
		return nil
	})
	if err != nil {
		mapError(w, err)
		return
	}
	slices.SortFunc(routes, func(x, y RouteInfo) int {
		if c := strings.Compare(x.Path, y.Path); c != 0 {
			return c
		}
		return strings.Compare(x.Method, y.Method)
	})
	writeJSON(w, http.StatusOK, RoutesResponse{Routes: routes})
}

// ListAudit handles GET /ops/audit?key_id=&limit=.
func (a *API) ListAudit(w http.ResponseWriter, r *http.Request) {
	limit := defaultAuditLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		limit = min(n, maxAuditLimit)
	}
	entries, err := a.listAuditEntries(r.URL.Query().Get("key_id"), limit)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuditResponse{Entries: entries})
}

// Health handles GET /health.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Store: "ok"}
	if p, ok := a.repo.(storage.Pinger); ok {
		if err := p.Ping(); err != nil {
			resp = HealthResponse{Status: "degraded", Store: "unreachable"}
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
