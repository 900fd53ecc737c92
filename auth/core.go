package auth

import (
	"fmt"

	"github.com/dashgate/dashgate/storage"
)

// Core bundles the authorization components built over one account, one
// keyring and one repository.
type Core struct {
	Account    Account
	Verifier   *CredentialVerifier
	Sessions   *SessionManager
	Revoked    *RevocationList
	CSRF       *CSRFGuard
	Keys       *KeyStore
	Scopes     *Registry
	Authorizer *ScopeAuthorizer
	Facade     *AuthorizationFacade
}

// New builds a Core. Persisted capability keys and session revocations are
// loaded from repo before New returns.
func New(account Account, keyring *Keyring, repo storage.Repository, scopes []string, opts ...Option) (*Core, error) {
	verifier, err := NewCredentialVerifier(account)
	if err != nil {
		return nil, err
	}
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	registry, err := NewRegistry(scopes...)
	if err != nil {
		return nil, err
	}
	revoked, err := NewRevocationList(repo, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading session revocations: %w", err)
	}
	keys, err := NewKeyStore(repo, keyring, registry, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading capability keys: %w", err)
	}
	sessions := NewSessionManager(account, keyring, revoked, opts...)
	csrf := NewCSRFGuard(keyring)
	authorizer := NewScopeAuthorizer(registry)
	return &Core{
		Account:    account,
		Verifier:   verifier,
		Sessions:   sessions,
		Revoked:    revoked,
		CSRF:       csrf,
		Keys:       keys,
		Scopes:     registry,
		Authorizer: authorizer,
		Facade:     NewAuthorizationFacade(sessions, keys, csrf, authorizer),
	}, nil
}
