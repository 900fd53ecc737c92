package auth

import "slices"

// ScopeAuthorizer decides whether a principal holds a scope. Sessions carry
// every registered scope; keys carry exactly the scopes they were issued
// with. There is no hierarchy between scopes.
type ScopeAuthorizer struct {
	registry ScopeRegistry
}

// NewScopeAuthorizer returns an authorizer over registry.
func NewScopeAuthorizer(registry ScopeRegistry) *ScopeAuthorizer {
	return &ScopeAuthorizer{registry: registry}
}

// Authorize returns nil when p may act under scope, ErrScopeDenied otherwise.
func (a *ScopeAuthorizer) Authorize(p Principal, scope string) error {
	if !a.registry.IsRegistered(scope) {
		return ErrScopeDenied
	}
	switch p.Kind {
	case PrincipalSession:
		if p.Session != nil {
			return nil
		}
	case PrincipalKey:
		if p.Key != nil && p.Key.RevokedAt == nil && slices.Contains(p.Key.Scopes, scope) {
			return nil
		}
	}
	return ErrScopeDenied
}
