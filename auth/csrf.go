package auth

import (
	"crypto/hmac"
	"fmt"

	"github.com/dashgate/dashgate/internal/util"
)

const csrfMACVer = "csrf:v1"

// CSRFGuard derives anti-forgery tokens from the session id under the
// Keyring's CSRF key. Tokens need no storage; a token is only ever checked
// against a session that already passed SessionManager.Validate, so it dies
// with the session.
type CSRFGuard struct {
	keys *Keyring
}

// NewCSRFGuard returns a guard using keys.
func NewCSRFGuard(keys *Keyring) *CSRFGuard {
	return &CSRFGuard{keys: keys}
}

// IssueToken returns the token for s. The same session always yields the
// same token.
func (g *CSRFGuard) IssueToken(s *Session) (string, error) {
	if s == nil {
		return "", ErrSessionInvalid
	}
	tag, err := g.keys.csrfMAC(csrfMACVer, s.ID)
	if err != nil {
		return "", fmt.Errorf("computing csrf token: %w", err)
	}
	return util.B64URLEncode(tag), nil
}

// Validate checks token against s in constant time.
func (g *CSRFGuard) Validate(s *Session, token string) error {
	if s == nil || token == "" {
		return ErrCSRFMismatch
	}
	presented, err := util.B64URLDecode(token)
	if err != nil {
		return ErrCSRFMismatch
	}
	want, err := g.keys.csrfMAC(csrfMACVer, s.ID)
	if err != nil {
		return fmt.Errorf("computing csrf token: %w", err)
	}
	if !hmac.Equal(presented, want) {
		return ErrCSRFMismatch
	}
	return nil
}
