package auth

import (
	"fmt"

	"github.com/awnumar/memguard"

	"github.com/dashgate/dashgate/internal/util"
)

// MinSecretKeyLen is the minimum length of the process-wide master secret.
const MinSecretKeyLen = 32

const keyringSalt = "dashgate:keyring:v1"

// Keyring holds the purpose-scoped keys derived from the master secret. Each
// key lives in its own memguard enclave and is only decrypted for the
// duration of a single MAC or seal operation. The session signing key and
// the CSRF key are distinct so a value produced for one purpose never
// verifies for the other.
type Keyring struct {
	session *memguard.Enclave
	csrf    *memguard.Enclave
	storage *memguard.Enclave
}

// NewKeyring derives the session, CSRF and storage keys from secret.
func NewKeyring(secret []byte) (*Keyring, error) {
	if len(secret) < MinSecretKeyLen {
		return nil, fmt.Errorf("secret key must be at least %d bytes, got %d", MinSecretKeyLen, len(secret))
	}
	derive := func(purpose string) (*memguard.Enclave, error) {
		k, err := util.HKDF(secret, []byte(keyringSalt), []byte("dashgate:"+purpose))
		if err != nil {
			return nil, fmt.Errorf("deriving %s key: %w", purpose, err)
		}
		// NewEnclave wipes k.
		return memguard.NewEnclave(k), nil
	}
	var (
		kr  Keyring
		err error
	)
	if kr.session, err = derive("session-signing"); err != nil {
		return nil, err
	}
	if kr.csrf, err = derive("csrf"); err != nil {
		return nil, err
	}
	if kr.storage, err = derive("storage-sealing"); err != nil {
		return nil, err
	}
	return &kr, nil
}

// NewRandomKeyring builds a keyring from a fresh random secret. Sessions and
// sealed records produced with it do not survive a restart.
func NewRandomKeyring() (*Keyring, error) {
	secret, err := util.RandomBytes(MinSecretKeyLen)
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(secret)
	return NewKeyring(secret)
}

func withKey(e *memguard.Enclave, fn func(key []byte) error) error {
	buf, err := e.Open()
	if err != nil {
		return fmt.Errorf("opening key enclave: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

func macWith(e *memguard.Enclave, parts ...string) ([]byte, error) {
	var tag []byte
	err := withKey(e, func(key []byte) error {
		tag = util.MAC(key, parts...)
		return nil
	})
	return tag, err
}

func (k *Keyring) sessionMAC(parts ...string) ([]byte, error) { return macWith(k.session, parts...) }

func (k *Keyring) csrfMAC(parts ...string) ([]byte, error) { return macWith(k.csrf, parts...) }

func (k *Keyring) withStorageKey(fn func(key []byte) error) error { return withKey(k.storage, fn) }
