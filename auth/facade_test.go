package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dashgate/dashgate/storage/memory"
)

type facadeEnv struct {
	clock    *fakeClock
	sessions *SessionManager
	keys     *KeyStore
	csrf     *CSRFGuard
	facade   *AuthorizationFacade
}

func newFacadeEnv(t *testing.T) *facadeEnv {
	t.Helper()
	clock := newFakeClock()
	keyring := testKeyring(t)
	reg := testRegistry(t)
	repo := memory.NewRepository()

	rl, err := NewRevocationList(repo, WithClock(clock.Now))
	require.NoError(t, err)
	sessions := NewSessionManager(testAccount(t), keyring, rl, WithClock(clock.Now))
	keys, err := NewKeyStore(repo, keyring, reg, WithClock(clock.Now))
	require.NoError(t, err)
	csrf := NewCSRFGuard(keyring)
	return &facadeEnv{
		clock:    clock,
		sessions: sessions,
		keys:     keys,
		csrf:     csrf,
		facade:   NewAuthorizationFacade(sessions, keys, csrf, NewScopeAuthorizer(reg)),
	}
}

func TestFacadeCredentialResolution(t *testing.T) {
	env := newFacadeEnv(t)
	s, err := env.sessions.Issue(Account{Username: testUsername})
	require.NoError(t, err)

	_, err = env.facade.AuthorizeRequest(Credentials{}, "files:read", false)
	assert.ErrorIs(t, err, ErrAmbiguousCredentials)

	both := Credentials{SessionCookie: s.Cookie(), KeyID: "k_1", KeySecret: "x"}
	_, err = env.facade.AuthorizeRequest(both, "files:read", false)
	assert.ErrorIs(t, err, ErrAmbiguousCredentials)

	partial := Credentials{SessionCookie: s.Cookie(), KeyID: "k_1"}
	_, err = env.facade.AuthorizeRequest(partial, "files:read", false)
	assert.ErrorIs(t, err, ErrAmbiguousCredentials)

	_, err = env.facade.AuthorizeRequest(Credentials{KeyID: "k_1"}, "files:read", false)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestFacadeSession(t *testing.T) {
	env := newFacadeEnv(t)
	s, err := env.sessions.Issue(Account{Username: testUsername})
	require.NoError(t, err)
	tok, err := env.csrf.IssueToken(s)
	require.NoError(t, err)

	p, err := env.facade.AuthorizeRequest(Credentials{SessionCookie: s.Cookie()}, "files:read", false)
	require.NoError(t, err)
	assert.Equal(t, PrincipalSession, p.Kind)
	assert.Equal(t, testUsername, p.Account)

	_, err = env.facade.AuthorizeRequest(Credentials{SessionCookie: s.Cookie()}, "files:write", true)
	assert.ErrorIs(t, err, ErrCSRFMismatch)

	_, err = env.facade.AuthorizeRequest(Credentials{SessionCookie: s.Cookie(), CSRFToken: tok}, "files:write", true)
	assert.NoError(t, err)

	_, err = env.facade.AuthorizeRequest(Credentials{SessionCookie: "bogus"}, "files:read", false)
	assert.ErrorIs(t, err, ErrSessionInvalid)
}

func TestFacadeCSRFCheckedBeforeScope(t *testing.T) {
	env := newFacadeEnv(t)
	s, err := env.sessions.Issue(Account{Username: testUsername})
	require.NoError(t, err)

	_, err = env.facade.AuthorizeRequest(Credentials{SessionCookie: s.Cookie()}, "not:registered", true)
	assert.ErrorIs(t, err, ErrCSRFMismatch)
}

func TestFacadeKey(t *testing.T) {
	env := newFacadeEnv(t)
	acct := Account{Username: testUsername}
	issued, err := env.keys.Issue(acct, []string{"files:read"})
	require.NoError(t, err)
	creds := Credentials{KeyID: issued.KeyID, KeySecret: issued.Secret}

	p, err := env.facade.AuthorizeRequest(creds, "files:read", true)
	require.NoError(t, err, "key requests are exempt from CSRF")
	assert.Equal(t, PrincipalKey, p.Kind)
	assert.Equal(t, issued.KeyID, p.Key.KeyID)

	_, err = env.facade.AuthorizeRequest(creds, "files:write", false)
	assert.ErrorIs(t, err, ErrScopeDenied)

	_, err = env.facade.AuthorizeRequest(Credentials{KeyID: issued.KeyID, KeySecret: "wrong"}, "files:read", false)
	assert.ErrorIs(t, err, ErrSecretMismatch)

	_, err = env.keys.Revoke(acct, issued.KeyID)
	require.NoError(t, err)
	for _, scope := range []string{"files:read", "files:write", "unknown:scope"} {
		_, err = env.facade.AuthorizeRequest(creds, scope, false)
		assert.ErrorIs(t, err, ErrKeyRevoked, scope)
	}
}

func TestFacadeAuthenticateSession(t *testing.T) {
	env := newFacadeEnv(t)
	s, err := env.sessions.Issue(Account{Username: testUsername})
	require.NoError(t, err)
	tok, err := env.csrf.IssueToken(s)
	require.NoError(t, err)

	_, err = env.facade.AuthenticateSession(Credentials{SessionCookie: s.Cookie()}, false)
	assert.NoError(t, err)
	_, err = env.facade.AuthenticateSession(Credentials{SessionCookie: s.Cookie()}, true)
	assert.ErrorIs(t, err, ErrCSRFMismatch)
	_, err = env.facade.AuthenticateSession(Credentials{SessionCookie: s.Cookie(), CSRFToken: tok}, true)
	assert.NoError(t, err)
	_, err = env.facade.AuthenticateSession(Credentials{KeyID: "k", KeySecret: "s"}, false)
	assert.ErrorIs(t, err, ErrSessionInvalid)
	_, err = env.facade.AuthenticateSession(Credentials{}, false)
	assert.ErrorIs(t, err, ErrAmbiguousCredentials)
	_, err = env.facade.AuthenticateSession(Credentials{SessionCookie: s.Cookie(), KeyID: "k"}, false)
	assert.ErrorIs(t, err, ErrAmbiguousCredentials)
}
