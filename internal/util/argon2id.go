package util

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrMalformedHash is returned when a stored password hash cannot be parsed.
var ErrMalformedHash = errors.New("malformed argon2id hash")

type Argon2idParams struct {
	Time        uint32 `json:"time"`
	MemoryKiB   uint32 `json:"memory"`
	Parallelism uint8  `json:"parallelism"`
	KeyLen      uint32 `json:"key_len"`
	SaltLen     uint32 `json:"salt_len"`
}

// DefaultArgon2idParams matches the argon2-cffi defaults so hashes produced by
// other tooling for the same deployment verify unchanged.
func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{
		Time:        3,
		MemoryKiB:   64 * 1024,
		Parallelism: 4,
		KeyLen:      32,
		SaltLen:     16,
	}
}

// Argon2idHash is a parsed PHC-format argon2id hash:
// $argon2id$v=19$m=65536,t=3,p=4$<salt>$<key>
type Argon2idHash struct {
	Params Argon2idParams
	Salt   []byte
	Key    []byte
}

var phcEncoding = base64.RawStdEncoding

// HashPassword derives an argon2id key for password under a fresh random salt
// and returns it in PHC string form.
func HashPassword(password string, params Argon2idParams) (string, error) {
	if params.KeyLen == 0 || params.SaltLen == 0 {
		return "", fmt.Errorf("argon2id key and salt lengths must be non-zero")
	}
	salt, err := RandomBytes(int(params.SaltLen))
	if err != nil {
		return "", err
	}
	h := Argon2idHash{
		Params: params,
		Salt:   salt,
		Key:    deriveArgon2id(password, salt, params),
	}
	return h.String(), nil
}

func deriveArgon2id(password string, salt []byte, params Argon2idParams) []byte {
	return argon2.IDKey([]byte(password), salt, params.Time, params.MemoryKiB, params.Parallelism, params.KeyLen)
}

// ParseArgon2idHash parses a PHC-format argon2id hash string.
func ParseArgon2idHash(encoded string) (*Argon2idHash, error) {
	parts := strings.Split(encoded, "$")
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return nil, ErrMalformedHash
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, fmt.Errorf("%w: unsupported version %q", ErrMalformedHash, parts[2])
	}
	var params Argon2idParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.MemoryKiB, &params.Time, &params.Parallelism); err != nil {
		return nil, fmt.Errorf("%w: bad parameters %q", ErrMalformedHash, parts[3])
	}
	if params.Time == 0 || params.MemoryKiB == 0 || params.Parallelism == 0 {
		return nil, fmt.Errorf("%w: zero parameter", ErrMalformedHash)
	}
	salt, err := phcEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return nil, fmt.Errorf("%w: bad salt", ErrMalformedHash)
	}
	key, err := phcEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return nil, fmt.Errorf("%w: bad key", ErrMalformedHash)
	}
	params.KeyLen = uint32(len(key))
	params.SaltLen = uint32(len(salt))
	return &Argon2idHash{Params: params, Salt: salt, Key: key}, nil
}

// String renders the hash in PHC form.
func (h *Argon2idHash) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.Params.MemoryKiB, h.Params.Time, h.Params.Parallelism,
		phcEncoding.EncodeToString(h.Salt), phcEncoding.EncodeToString(h.Key))
}

// Verify recomputes the key for password with the stored salt and parameters
// and compares it in constant time.
func (h *Argon2idHash) Verify(password string) bool {
	key := deriveArgon2id(password, h.Salt, h.Params)
	defer WipeBytes(key)
	return subtle.ConstantTimeCompare(key, h.Key) == 1
}
