package auth

// PrincipalKind distinguishes how a request authenticated.
type PrincipalKind string

const (
	PrincipalSession PrincipalKind = "session"
	PrincipalKey     PrincipalKind = "key"
)

// Principal is the authenticated caller of a request: either the account
// via a browser session, or a capability key.
type Principal struct {
	Kind    PrincipalKind
	Account string
	Session *Session
	Key     *APIKey
}

// SessionPrincipal wraps a validated session.
func SessionPrincipal(s *Session) Principal {
	return Principal{Kind: PrincipalSession, Account: s.Account, Session: s}
}

// KeyPrincipal wraps an authenticated capability key.
func KeyPrincipal(k APIKey) Principal {
	return Principal{Kind: PrincipalKey, Key: &k}
}

// ID is a short identifier safe for logs.
func (p Principal) ID() string {
	switch p.Kind {
	case PrincipalSession:
		return "session:" + p.Account
	case PrincipalKey:
		if p.Key != nil {
			return "key:" + p.Key.KeyID
		}
	}
	return "anonymous"
}
