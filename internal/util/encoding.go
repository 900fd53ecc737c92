package util

import (
	"encoding/base64"

	"golang.org/x/text/unicode/norm"
)

// Normalize applies Unicode NFKD so visually identical credentials typed on
// different platforms hash identically.
func Normalize(s string) string {
	return norm.NFKD.String(s)
}

func B64URLEncode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func B64URLDecode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}
