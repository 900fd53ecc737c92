package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"
	"path"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/dashgate/dashgate/auth"
	"github.com/dashgate/dashgate/storage"
)

// OpsReadScope guards the operational endpoints under /ops. It is registered
// with the scope registry when the API is built.
const OpsReadScope = "ops:read"

// DefaultAPIRoot is where the router is mounted unless configured otherwise.
const DefaultAPIRoot = "/api/v1"

// API holds the dependencies needed by the REST handlers.
type API struct {
	core    *auth.Core
	repo    storage.Repository
	audit   *auditLogger
	metrics *metricsCollector
	forward *auditForwarder

	apiRoot         string
	corsOrigin      string
	auditMaxEntries int
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.audit = newAuditLogger(logger)
	}
}

// WithAlertFunc enables spike detection on login failures and rejected
// credentials.
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) {
		a.metrics = newMetricsCollector(fn)
	}
}

// WithAuditWebhook forwards every audit event to cfg.URL in batches.
func WithAuditWebhook(cfg AuditWebhookConfig) Option {
	return func(a *API) {
		if cfg.URL != "" {
			a.forward = newAuditForwarder(cfg)
		}
	}
}

// WithCORSOrigin allows credentialed cross-origin requests from origin.
func WithCORSOrigin(origin string) Option {
	return func(a *API) {
		a.corsOrigin = origin
	}
}

// WithAPIRoot tells the API explorer where the router is mounted.
func WithAPIRoot(root string) Option {
	return func(a *API) {
		if root != "" {
			a.apiRoot = root
		}
	}
}

// WithAuditRetention caps the persisted key audit trail.
func WithAuditRetention(maxEntries int) Option {
	return func(a *API) {
		a.auditMaxEntries = maxEntries
	}
}

// New creates a new API instance over core. repo receives the key audit
// trail and is probed by /health.
func New(core *auth.Core, repo storage.Repository, opts ...Option) (*API, error) {
	a := &API{
		core:            core,
		repo:            repo,
		apiRoot:         DefaultAPIRoot,
		auditMaxEntries: defaultAuditMaxEntries,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.audit == nil {
		a.audit = newAuditLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}
	a.audit.metrics = a.metrics
	a.audit.forward = a.forward
	if err := core.Scopes.Register(OpsReadScope); err != nil {
		return nil, err
	}
	return a, nil
}

// Close flushes pending audit webhook deliveries.
func (a *API) Close() {
	if a.forward != nil {
		a.forward.close()
	}
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(SecurityHeaders)
	if a.corsOrigin != "" {
		r.Use(a.CORS)
	}

	specURL := path.Join(a.apiRoot, "openapi.yaml")
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})
	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: specURL,
		Path:    path.Join(a.apiRoot, "docs"),
		Title:   "dashgate API",
	}, nil))
	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: specURL,
		Path:    path.Join(a.apiRoot, "redoc"),
		Title:   "dashgate API",
	}, nil))

	r.Get("/health", a.Health)
	r.Post("/auth/login", a.Login)

	r.Group(func(r chi.Router) {
		r.Use(a.RequireSession)
		r.Post("/auth/logout", a.Logout)
		r.Post("/auth/logout-all", a.LogoutAll)
		r.Get("/auth/me", a.Me)
		r.Get("/auth/csrf", a.CSRFToken)
		r.Get("/scopes", a.ListScopes)
		r.Get("/keys", a.ListKeys)
		r.Post("/keys/new", a.IssueKey)
		r.Post("/keys/revoke", a.RevokeKey)
	})

	r.Route("/ops", func(r chi.Router) {
		r.Use(a.Require(OpsReadScope))
		r.Get("/routes", a.ListRoutes)
		r.Get("/audit", a.ListAudit)
	})

	return r
}
