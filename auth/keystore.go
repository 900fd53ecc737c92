package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dashgate/dashgate/internal/util"
	"github.com/dashgate/dashgate/internal/uuid"
	"github.com/dashgate/dashgate/storage"
)

const (
	keyNamespace  = "capkeys"
	keyRecordType = "KEY"

	keyIDPrefix    = "k_"
	keySecretBytes = 32
	keySaltBytes   = 16

	// maxIssueAttempts bounds retries on a key id collision.
	maxIssueAttempts = 8
)

// APIKey is the public view of a capability key. It never carries the
// secret or its hash.
type APIKey struct {
	KeyID     string     `json:"key_id"`
	Scopes    []string   `json:"scopes"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at"`
}

// Revoked reports whether the key has been revoked.
func (k APIKey) Revoked() bool { return k.RevokedAt != nil }

// IssuedKey is returned once, at issuance. Secret is not retrievable later.
type IssuedKey struct {
	KeyID     string
	Secret    string
	Scopes    []string
	CreatedAt time.Time
}

type keyRecord struct {
	KeyID      string     `json:"key_id"`
	Account    string     `json:"account"`
	Scopes     []string   `json:"scopes"`
	CreatedAt  time.Time  `json:"created_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	Salt       []byte     `json:"salt"`
	SecretHash []byte     `json:"secret_hash"`
	Seq        uint64     `json:"seq"`

	version uint64
}

func (r *keyRecord) public() APIKey {
	k := APIKey{
		KeyID:     r.KeyID,
		Scopes:    slices.Clone(r.Scopes),
		CreatedAt: r.CreatedAt,
	}
	if r.RevokedAt != nil {
		t := *r.RevokedAt
		k.RevokedAt = &t
	}
	return k
}

func hashSecret(salt []byte, secret string) []byte {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(secret))
	return h.Sum(nil)
}

func keyAAD(keyID string) []byte { return []byte("capkey:" + keyID) }

// KeyStore owns the capability keys of this process. Records are sealed
// under the Keyring's storage key and written through to the repository;
// the in-memory index is only updated after a write commits, so every
// Authenticate that starts after Issue or Revoke returns sees its effect.
type KeyStore struct {
	mu      sync.RWMutex
	keys    map[string]*keyRecord
	nextSeq uint64

	repo     storage.Repository
	keyring  *Keyring
	registry ScopeRegistry
	retry    RetryPolicy
	now      func() time.Time
	newID    func() string

	hashSecret func(salt []byte, secret string) []byte
	decoySalt  []byte
	decoyHash  []byte
}

func newKeyID() string { return keyIDPrefix + uuid.NewHex() }

// NewKeyStore loads every key already in repo.
func NewKeyStore(repo storage.Repository, keyring *Keyring, registry ScopeRegistry, opts ...Option) (*KeyStore, error) {
	o := buildOptions(opts)
	s := &KeyStore{
		keys:     make(map[string]*keyRecord),
		nextSeq:  1,
		repo:     repo,
		keyring:  keyring,
		registry: registry,
		retry:    o.retry,
		now:      o.now,
		newID:    newKeyID,

		hashSecret: hashSecret,
		decoyHash:  make([]byte, sha256.Size),
	}
	var err error
	if s.decoySalt, err = util.RandomBytes(keySaltBytes); err != nil {
		return nil, err
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *KeyStore) load() error {
	var ids []string
	err := s.retry.do("listing keys", func() error {
		var err error
		ids, err = s.repo.List(keyNamespace, keyRecordType)
		return err
	})
	if err != nil {
		if storage.IsMissing(err) {
			return nil
		}
		return err
	}
	for _, id := range ids {
		rec, err := s.fetch(id)
		if err != nil {
			return fmt.Errorf("loading key %s: %w", id, err)
		}
		s.keys[id] = rec
		s.nextSeq = max(s.nextSeq, rec.Seq+1)
	}
	return nil
}

func (s *KeyStore) fetch(keyID string) (*keyRecord, error) {
	var env *storage.Envelope
	err := s.retry.do("reading key", func() error {
		var err error
		env, err = s.repo.Get(keyNamespace, keyRecordType, keyID)
		return err
	})
	if err != nil {
		return nil, err
	}
	var plaintext []byte
	err = s.keyring.withStorageKey(func(key []byte) error {
		var err error
		plaintext, err = storage.OpenRecord(key, env, keyAAD(keyID))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("opening key record: %w", err)
	}
	var rec keyRecord
	if err := json.Unmarshal(plaintext, &rec); err != nil {
		return nil, fmt.Errorf("decoding key record: %w", err)
	}
	rec.version = env.Version
	return &rec, nil
}

func (s *KeyStore) seal(rec *keyRecord, version uint64) (*storage.Envelope, error) {
	plaintext, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(plaintext)
	var env *storage.Envelope
	err = s.keyring.withStorageKey(func(key []byte) error {
		var err error
		env, err = storage.SealRecord(key, plaintext, keyAAD(rec.KeyID), version)
		return err
	})
	return env, err
}

// Issue creates a key for account holding exactly scopes. Every scope must
// be registered. The returned secret is the only copy in plaintext.
func (s *KeyStore) Issue(account Account, scopes []string) (*IssuedKey, error) {
	scopes = NormalizeScopes(scopes)
	if len(scopes) == 0 {
		return nil, fmt.Errorf("%w: no scopes requested", ErrInvalidScope)
	}
	for _, sc := range scopes {
		if !s.registry.IsRegistered(sc) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidScope, sc)
		}
	}
	secret, err := util.RandomToken(keySecretBytes)
	if err != nil {
		return nil, err
	}
	salt, err := util.RandomBytes(keySaltBytes)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &keyRecord{
		Account:    account.Username,
		Scopes:     scopes,
		CreatedAt:  s.now().UTC(),
		Salt:       salt,
		SecretHash: s.hashSecret(salt, secret),
		Seq:        s.nextSeq,
		version:    1,
	}
	for range maxIssueAttempts {
		rec.KeyID = s.newID()
		if _, taken := s.keys[rec.KeyID]; taken {
			continue
		}
		env, err := s.seal(rec, rec.version)
		if err != nil {
			return nil, err
		}
		tries := 0
		err = s.retry.do("storing key", func() error {
			tries++
			return s.repo.PutCAS(keyNamespace, keyRecordType, rec.KeyID, 0, env)
		})
		if errors.Is(err, storage.ErrCASFailed) && tries > 1 {
			// An earlier attempt may have committed before failing.
			ours, ferr := s.storedIsOurs(rec)
			if ferr != nil {
				return nil, ferr
			}
			if ours {
				err = nil
			}
		}
		if errors.Is(err, storage.ErrCASFailed) {
			continue
		}
		if err != nil {
			return nil, err
		}
		s.keys[rec.KeyID] = rec
		s.nextSeq++
		return &IssuedKey{
			KeyID:     rec.KeyID,
			Secret:    secret,
			Scopes:    slices.Clone(scopes),
			CreatedAt: rec.CreatedAt,
		}, nil
	}
	return nil, fmt.Errorf("allocating key id: %d collisions", maxIssueAttempts)
}

// storedIsOurs reports whether the record stored under rec.KeyID is rec,
// identified by its salt and secret hash.
func (s *KeyStore) storedIsOurs(rec *keyRecord) (bool, error) {
	stored, err := s.fetch(rec.KeyID)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(stored.Salt, rec.Salt) == 1 &&
		subtle.ConstantTimeCompare(stored.SecretHash, rec.SecretHash) == 1, nil
}

// List returns account's keys in issuance order.
func (s *KeyStore) List(account Account) []APIKey {
	s.mu.RLock()
	recs := make([]*keyRecord, 0, len(s.keys))
	for _, r := range s.keys {
		if r.Account == account.Username {
			recs = append(recs, r)
		}
	}
	out := make([]APIKey, 0, len(recs))
	slices.SortFunc(recs, func(a, b *keyRecord) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})
	for _, r := range recs {
		out = append(out, r.public())
	}
	s.mu.RUnlock()
	return out
}

// Revoke permanently disables a key. A second revoke of the same key
// returns ErrKeyAlreadyRevoked.
func (s *KeyStore) Revoke(account Account, keyID string) (APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.keys[keyID]
	if !ok || cur.Account != account.Username {
		return APIKey{}, ErrKeyNotFound
	}
	if cur.RevokedAt != nil {
		return APIKey{}, ErrKeyAlreadyRevoked
	}

	now := s.now().UTC()
	next := *cur
	next.RevokedAt = &now
	next.version = cur.version + 1
	env, err := s.seal(&next, next.version)
	if err != nil {
		return APIKey{}, err
	}
	tries := 0
	err = s.retry.do("revoking key", func() error {
		tries++
		return s.repo.PutCAS(keyNamespace, keyRecordType, keyID, cur.version, env)
	})
	if errors.Is(err, storage.ErrCASFailed) {
		// Someone else wrote the record, or an earlier attempt committed
		// before failing; adopt what is stored.
		stored, ferr := s.fetch(keyID)
		if ferr != nil {
			return APIKey{}, ferr
		}
		s.keys[keyID] = stored
		if tries > 1 && stored.version == next.version && stored.RevokedAt != nil && stored.RevokedAt.Equal(now) {
			return stored.public(), nil
		}
		if stored.RevokedAt != nil {
			return APIKey{}, ErrKeyAlreadyRevoked
		}
		return APIKey{}, err
	}
	if err != nil {
		return APIKey{}, err
	}
	s.keys[keyID] = &next
	return next.public(), nil
}

// Authenticate resolves a key by id and checks its secret. Revocation is
// reported before the secret is looked at.
func (s *KeyStore) Authenticate(keyID, secret string) (APIKey, error) {
	s.mu.RLock()
	rec, ok := s.keys[keyID]
	var k APIKey
	var salt, want []byte
	if ok {
		k = rec.public()
		salt, want = rec.Salt, rec.SecretHash
	}
	s.mu.RUnlock()

	if !ok {
		// Hash anyway so an unknown id costs what a known one does.
		subtle.ConstantTimeCompare(s.hashSecret(s.decoySalt, secret), s.decoyHash)
		return APIKey{}, ErrKeyNotFound
	}
	if k.RevokedAt != nil {
		return APIKey{}, ErrKeyRevoked
	}
	if subtle.ConstantTimeCompare(s.hashSecret(salt, secret), want) != 1 {
		return APIKey{}, ErrSecretMismatch
	}
	return k, nil
}

// Get returns the public view of one key.
func (s *KeyStore) Get(keyID string) (APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.keys[keyID]
	if !ok {
		return APIKey{}, ErrKeyNotFound
	}
	return rec.public(), nil
}
