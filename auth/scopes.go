package auth

import (
	"fmt"
	"regexp"
	"slices"
	"sync"
)

// DefaultScopes are registered when no scope configuration is given.
var DefaultScopes = []string{
	"files:read",
	"files:write",
	"reddit:read",
	"reddit:write",
	"tasks:write",
}

var scopePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*(:[a-z][a-z0-9_-]*)+$`)

// ScopeRegistry is the set of scopes collaborators have registered. The
// authorization core treats scopes as opaque strings and only asks whether
// one is known.
type ScopeRegistry interface {
	IsRegistered(scope string) bool
	Scopes() []string
}

// Registry is a concurrency-safe ScopeRegistry.
type Registry struct {
	mu     sync.RWMutex
	scopes map[string]struct{}
}

var _ ScopeRegistry = (*Registry)(nil)

// NewRegistry returns a registry holding scopes.
func NewRegistry(scopes ...string) (*Registry, error) {
	r := &Registry{scopes: make(map[string]struct{})}
	if err := r.Register(scopes...); err != nil {
		return nil, err
	}
	return r, nil
}

// Register adds scopes. Each must look like "resource:action".
func (r *Registry) Register(scopes ...string) error {
	for _, s := range scopes {
		if !scopePattern.MatchString(s) {
			return fmt.Errorf("%w: %q is not of the form resource:action", ErrInvalidScope, s)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range scopes {
		r.scopes[s] = struct{}{}
	}
	return nil
}

func (r *Registry) IsRegistered(scope string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.scopes[scope]
	return ok
}

// Scopes returns the registered scopes sorted.
func (r *Registry) Scopes() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.scopes))
	for s := range r.scopes {
		out = append(out, s)
	}
	r.mu.RUnlock()
	slices.Sort(out)
	return out
}

// NormalizeScopes sorts and de-duplicates a requested scope set.
func NormalizeScopes(scopes []string) []string {
	out := slices.Clone(scopes)
	slices.Sort(out)
	return slices.Compact(out)
}
