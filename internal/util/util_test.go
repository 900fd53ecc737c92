package util

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastParams keeps the argon2id tests quick; production uses the defaults.
func fastParams() Argon2idParams {
	p := DefaultArgon2idParams()
	p.Time = 1
	p.MemoryKiB = 8 * 1024
	p.Parallelism = 1
	return p
}

func TestAES(t *testing.T) {
	key, err := NewAESKey()
	require.NoError(t, err)
	plainText := []byte("hello world")
	aad := []byte("context")

	t.Run("RoundTrip", func(t *testing.T) {
		cipherText, err := EncryptAESWithAAD(plainText, key, aad)
		require.NoError(t, err)
		got, err := DecryptAESWithAAD(cipherText, key, aad)
		require.NoError(t, err)
		assert.Equal(t, plainText, got)
	})

	t.Run("TamperAAD", func(t *testing.T) {
		cipherText, _ := EncryptAESWithAAD(plainText, key, aad)
		_, err := DecryptAESWithAAD(cipherText, key, []byte("wrong context"))
		assert.Error(t, err)
	})

	t.Run("TamperCipherText", func(t *testing.T) {
		cipherText, _ := EncryptAESWithAAD(plainText, key, aad)
		cipherText[len(cipherText)-1] ^= 0xFF
		_, err := DecryptAESWithAAD(cipherText, key, aad)
		assert.Error(t, err)
	})

	t.Run("RejectBadKeySize", func(t *testing.T) {
		_, err := EncryptAESWithAAD(plainText, []byte("too short"), aad)
		assert.Error(t, err)
	})
}

func TestArgon2idHashRoundTrip(t *testing.T) {
	encoded, err := HashPassword("correct horse battery staple", fastParams())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=8192,t=1,p=1$"))

	h, err := ParseArgon2idHash(encoded)
	require.NoError(t, err)
	assert.Equal(t, encoded, h.String())
	assert.True(t, h.Verify("correct horse battery staple"))
	assert.False(t, h.Verify("correct horse battery stapler"))
	assert.False(t, h.Verify(""))
}

func TestArgon2idSaltsDiffer(t *testing.T) {
	a, err := HashPassword("same", fastParams())
	require.NoError(t, err)
	b, err := HashPassword("same", fastParams())
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestParseArgon2idHashRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=65536,t=3,p=4$c2FsdHNhbHQ$a2V5a2V5",
		"$argon2id$v=16$m=65536,t=3,p=4$c2FsdHNhbHQ$a2V5a2V5",
		"$argon2id$v=19$m=0,t=3,p=4$c2FsdHNhbHQ$a2V5a2V5",
		"$argon2id$v=19$m=65536,t=3,p=4$!!!$a2V5a2V5",
		"$argon2id$v=19$m=65536,t=3,p=4$c2FsdHNhbHQ$",
	}
	for _, c := range cases {
		_, err := ParseArgon2idHash(c)
		assert.True(t, errors.Is(err, ErrMalformedHash), "input %q", c)
	}
}

func TestHKDFDomainSeparation(t *testing.T) {
	seed := []byte("0123456789abcdef0123456789abcdef")
	a, err := HKDF(seed, nil, []byte("session"))
	require.NoError(t, err)
	b, err := HKDF(seed, nil, []byte("csrf"))
	require.NoError(t, err)
	assert.Len(t, a, HKDFKeyLength)
	assert.NotEqual(t, a, b)
}

func TestMACSeparatesParts(t *testing.T) {
	key := []byte("k")
	assert.NotEqual(t, MAC(key, "ab", "c"), MAC(key, "a", "bc"))
	assert.Equal(t, MAC(key, "a", "b"), MAC(key, "a", "b"))
}

func TestRandomToken(t *testing.T) {
	a, err := RandomToken(32)
	require.NoError(t, err)
	b, err := RandomToken(32)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	raw, err := B64URLDecode(a)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
}

func TestNormalize(t *testing.T) {
	// U+FB01 LATIN SMALL LIGATURE FI decomposes to "fi".
	assert.Equal(t, "fi", Normalize("ﬁ"))
}

func TestWipeBytes(t *testing.T) {
	b := []byte{1, 2, 3}
	WipeBytes(b)
	assert.Equal(t, []byte{0, 0, 0}, b)
}
