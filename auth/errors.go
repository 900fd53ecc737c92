package auth

import "errors"

var (
	// ErrAuthenticationFailed is the single generic login failure. It is
	// returned for unknown usernames and wrong passwords alike.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrSessionInvalid indicates a forged, corrupt or unparsable session cookie.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrSessionExpired indicates an authentic session past its expiry or
	// ended early by logout.
	ErrSessionExpired = errors.New("session expired")
	// ErrCSRFMismatch indicates a missing or incorrect anti-forgery token on
	// a mutating request.
	ErrCSRFMismatch = errors.New("csrf token mismatch")
	// ErrAmbiguousCredentials indicates both or neither credential forms
	// were presented.
	ErrAmbiguousCredentials = errors.New("ambiguous credentials")
	// ErrInvalidScope indicates a requested scope is not registered.
	ErrInvalidScope = errors.New("invalid scope")
	// ErrScopeDenied indicates the principal lacks the required scope.
	ErrScopeDenied = errors.New("scope denied")
	// ErrKeyNotFound indicates no capability key exists with the given id.
	ErrKeyNotFound = errors.New("key not found")
	// ErrKeyRevoked indicates the capability key has been revoked.
	ErrKeyRevoked = errors.New("key revoked")
	// ErrKeyAlreadyRevoked is returned by a second revoke of the same key.
	ErrKeyAlreadyRevoked = errors.New("key already revoked")
	// ErrSecretMismatch indicates the presented key secret is wrong.
	ErrSecretMismatch = errors.New("secret mismatch")
	// ErrStoreUnavailable wraps backing-store failures that persisted after
	// bounded retries. It is never an authorization decision.
	ErrStoreUnavailable = errors.New("store unavailable")
)
