// Package uuid generates random identifiers.
package uuid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a random (version 4) UUID in canonical form.
func New() string {
	return uuid.NewString()
}

// NewHex returns a random UUID as 32 lowercase hex characters, without dashes.
func NewHex() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
