package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/dashgate/dashgate/internal/util"
)

// Account is the single administrative principal. It is immutable for the
// lifetime of the process; rotating the password means restarting with a new
// hash.
type Account struct {
	Username     string
	PasswordHash string // argon2id, PHC string form
}

// HashPassword produces the PHC string to store as an Account's
// PasswordHash. The password is normalized the same way Verify does.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	return util.HashPassword(util.Normalize(password), util.DefaultArgon2idParams())
}

// CredentialVerifier checks a submitted username and password against the
// Account. Unknown usernames and wrong passwords are indistinguishable: both
// return ErrAuthenticationFailed and both cost one argon2id computation.
type CredentialVerifier struct {
	account  Account
	username []byte
	hash     *util.Argon2idHash
	decoy    *util.Argon2idHash
}

// NewCredentialVerifier parses the account's password hash and prepares a
// decoy hash with identical parameters.
func NewCredentialVerifier(account Account) (*CredentialVerifier, error) {
	if account.Username == "" {
		return nil, errors.New("account username must not be empty")
	}
	hash, err := util.ParseArgon2idHash(account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("parsing account password hash: %w", err)
	}
	decoyPassword, err := util.RandomToken(32)
	if err != nil {
		return nil, err
	}
	decoyEncoded, err := util.HashPassword(decoyPassword, hash.Params)
	if err != nil {
		return nil, fmt.Errorf("building decoy hash: %w", err)
	}
	decoy, err := util.ParseArgon2idHash(decoyEncoded)
	if err != nil {
		return nil, err
	}
	return &CredentialVerifier{
		account:  account,
		username: []byte(util.Normalize(account.Username)),
		hash:     hash,
		decoy:    decoy,
	}, nil
}

// Verify returns the Account when username and password match.
func (v *CredentialVerifier) Verify(username, password string) (Account, error) {
	userOK := subtle.ConstantTimeCompare([]byte(util.Normalize(username)), v.username) == 1
	target := v.hash
	if !userOK {
		target = v.decoy
	}
	passOK := target.Verify(util.Normalize(password))
	if !userOK || !passOK {
		return Account{}, ErrAuthenticationFailed
	}
	return v.account, nil
}
