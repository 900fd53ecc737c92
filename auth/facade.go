package auth

// Credentials is what a request presented. A browser supplies SessionCookie
// (and CSRFToken on mutating calls); a programmatic client supplies the
// KeyID and KeySecret pair.
type Credentials struct {
	SessionCookie string
	KeyID         string
	KeySecret     string
	CSRFToken     string
}

func (c Credentials) hasSession() bool { return c.SessionCookie != "" }

func (c Credentials) hasKey() bool { return c.KeyID != "" || c.KeySecret != "" }

type sessionValidator interface {
	Validate(raw string) (*Session, error)
}

type keyAuthenticator interface {
	Authenticate(keyID, secret string) (APIKey, error)
}

type csrfValidator interface {
	Validate(s *Session, token string) error
}

type scopeChecker interface {
	Authorize(p Principal, scope string) error
}

// AuthorizationFacade is the single decision point collaborators call
// before performing an effect.
type AuthorizationFacade struct {
	sessions sessionValidator
	keys     keyAuthenticator
	csrf     csrfValidator
	scopes   scopeChecker
}

// NewAuthorizationFacade wires the four checks together.
func NewAuthorizationFacade(sessions *SessionManager, keys *KeyStore, csrf *CSRFGuard, scopes *ScopeAuthorizer) *AuthorizationFacade {
	return &AuthorizationFacade{sessions: sessions, keys: keys, csrf: csrf, scopes: scopes}
}

// AuthorizeRequest resolves creds to a Principal and checks it may act
// under scope. Checks run in order and stop at the first failure: exactly
// one credential form, authentication, CSRF for mutating session requests,
// then scope.
func (f *AuthorizationFacade) AuthorizeRequest(creds Credentials, scope string, mutating bool) (Principal, error) {
	if creds.hasSession() == creds.hasKey() {
		return Principal{}, ErrAmbiguousCredentials
	}

	var p Principal
	if creds.hasSession() {
		s, err := f.sessions.Validate(creds.SessionCookie)
		if err != nil {
			return Principal{}, err
		}
		if mutating {
			if err := f.csrf.Validate(s, creds.CSRFToken); err != nil {
				return Principal{}, err
			}
		}
		p = SessionPrincipal(s)
	} else {
		k, err := f.keys.Authenticate(creds.KeyID, creds.KeySecret)
		if err != nil {
			return Principal{}, err
		}
		p = KeyPrincipal(k)
	}

	if err := f.scopes.Authorize(p, scope); err != nil {
		return Principal{}, err
	}
	return p, nil
}

// AuthenticateSession validates a session cookie and, for mutating calls,
// its CSRF token. It is used by endpoints that belong to the account rather
// than to a scope, such as key management.
func (f *AuthorizationFacade) AuthenticateSession(creds Credentials, mutating bool) (Principal, error) {
	switch {
	case creds.hasSession() && creds.hasKey():
		return Principal{}, ErrAmbiguousCredentials
	case creds.hasKey():
		return Principal{}, ErrSessionInvalid
	case !creds.hasSession():
		return Principal{}, ErrAmbiguousCredentials
	}
	s, err := f.sessions.Validate(creds.SessionCookie)
	if err != nil {
		return Principal{}, err
	}
	if mutating {
		if err := f.csrf.Validate(s, creds.CSRFToken); err != nil {
			return Principal{}, err
		}
	}
	return SessionPrincipal(s), nil
}
