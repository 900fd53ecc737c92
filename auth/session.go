package auth

import (
	"crypto/hmac"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dashgate/dashgate/internal/util"
)

const (
	sessionIDBytes = 32
	sessionMACVer  = "session:v1"
)

// Session is a signed browser session. The cookie form is
// "<id>.<issued_at>.<expires_at>.<mac>" with unix-nanosecond timestamps and
// a base64url HMAC-SHA256 over the account, id and both timestamps.
type Session struct {
	ID        string
	Account   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Signature string
}

// Cookie renders the session as its cookie value.
func (s *Session) Cookie() string {
	return strings.Join([]string{
		s.ID,
		strconv.FormatInt(s.IssuedAt.UnixNano(), 10),
		strconv.FormatInt(s.ExpiresAt.UnixNano(), 10),
		s.Signature,
	}, ".")
}

// SessionManager issues, validates and destroys sessions for the Account.
// Validation is a pure MAC check plus a lookup in the RevocationList, which
// is the only mutable session state.
type SessionManager struct {
	account Account
	keys    *Keyring
	revoked *RevocationList
	ttl     time.Duration
	now     func() time.Time
}

// NewSessionManager returns a manager bound to account.
func NewSessionManager(account Account, keys *Keyring, revoked *RevocationList, opts ...Option) *SessionManager {
	o := buildOptions(opts)
	return &SessionManager{
		account: account,
		keys:    keys,
		revoked: revoked,
		ttl:     o.sessionTTL,
		now:     o.now,
	}
}

// TTL returns the lifetime given to new sessions.
func (m *SessionManager) TTL() time.Duration { return m.ttl }

func (m *SessionManager) sign(account, id string, issued, expires int64) (string, error) {
	tag, err := m.keys.sessionMAC(sessionMACVer, account, id,
		strconv.FormatInt(issued, 10), strconv.FormatInt(expires, 10))
	if err != nil {
		return "", err
	}
	return util.B64URLEncode(tag), nil
}

// Issue creates a new session for account expiring after the TTL.
func (m *SessionManager) Issue(account Account) (*Session, error) {
	if account.Username != m.account.Username {
		return nil, ErrAuthenticationFailed
	}
	id, err := util.RandomToken(sessionIDBytes)
	if err != nil {
		return nil, err
	}
	issued := m.now()
	// A session issued in the same instant as a logout-everywhere must not
	// fall under its watermark.
	if before, ok := m.revoked.issuedBefore(account.Username); ok && !issued.After(before) {
		issued = before.Add(time.Nanosecond)
	}
	expires := issued.Add(m.ttl)
	sig, err := m.sign(account.Username, id, issued.UnixNano(), expires.UnixNano())
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:        id,
		Account:   account.Username,
		IssuedAt:  issued,
		ExpiresAt: expires,
		Signature: sig,
	}, nil
}

// Validate parses and authenticates a cookie value. A bad signature or
// malformed cookie yields ErrSessionInvalid. An authentic session that is
// past its expiry, or was destroyed, yields ErrSessionExpired.
func (m *SessionManager) Validate(raw string) (*Session, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 4 || parts[0] == "" || parts[3] == "" {
		return nil, ErrSessionInvalid
	}
	issued, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, ErrSessionInvalid
	}
	expires, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil, ErrSessionInvalid
	}
	presented, err := util.B64URLDecode(parts[3])
	if err != nil {
		return nil, ErrSessionInvalid
	}
	want, err := m.keys.sessionMAC(sessionMACVer, m.account.Username, parts[0],
		parts[1], parts[2])
	if err != nil {
		return nil, fmt.Errorf("computing session mac: %w", err)
	}
	if !hmac.Equal(presented, want) {
		return nil, ErrSessionInvalid
	}

	s := &Session{
		ID:        parts[0],
		Account:   m.account.Username,
		IssuedAt:  time.Unix(0, issued),
		ExpiresAt: time.Unix(0, expires),
		Signature: parts[3],
	}
	if !m.now().Before(s.ExpiresAt) {
		return nil, ErrSessionExpired
	}
	if m.revoked.IsRevoked(s) {
		return nil, ErrSessionExpired
	}
	return s, nil
}

// Destroy revokes a single session id. Later Validate calls for any cookie
// carrying that id fail.
func (m *SessionManager) Destroy(sessionID string) error {
	// The session cannot outlive now+ttl, so that bounds how long the
	// revocation entry is needed.
	return m.revoked.Revoke(sessionID, m.now().Add(m.ttl))
}

// DestroyAll revokes every outstanding session of account.
func (m *SessionManager) DestroyAll(account Account) error {
	return m.revoked.RevokeIssuedBefore(account.Username, m.now(), m.now().Add(m.ttl))
}
