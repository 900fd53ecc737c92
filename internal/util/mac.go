package util

import (
	"crypto/hmac"
	"crypto/sha256"
)

// MAC computes HMAC-SHA256 over the parts joined with a 0x1f separator so
// that ("ab","c") and ("a","bc") produce different tags.
func MAC(key []byte, parts ...string) []byte {
	m := hmac.New(sha256.New, key)
	for i, p := range parts {
		if i > 0 {
			m.Write([]byte{0x1f})
		}
		m.Write([]byte(p))
	}
	return m.Sum(nil)
}
