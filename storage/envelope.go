package storage

import (
	"fmt"

	"github.com/dashgate/dashgate/internal/util"
)

const (
	// SchemeAESGCM marks an envelope sealed with AES-256-GCM.
	SchemeAESGCM = "aes256gcm"
	// SchemePlainJSON marks an envelope whose payload is unencrypted JSON.
	SchemePlainJSON = "plain-json"

	envelopeVer = 1
)

// Envelope is a stored record. Sealed envelopes carry AES-256-GCM ciphertext;
// plain envelopes carry the payload in Ciphertext as-is.
type Envelope struct {
	Ver        int    `json:"ver"`
	Scheme     string `json:"scheme"`
	Nonce      []byte `json:"nonce,omitempty"`
	Ciphertext []byte `json:"ciphertext"`
	Version    uint64 `json:"version,omitempty"`
}

// SealRecord encrypts plaintext into an Envelope using the given record key
// and AAD. The AAD should bind the ciphertext to its record address so an
// envelope cannot be moved to a different record.
func SealRecord(recordKey, plaintext, aad []byte, version uint64) (*Envelope, error) {
	sealed, err := util.EncryptAESWithAAD(plaintext, recordKey, aad)
	if err != nil {
		return nil, err
	}
	// EncryptAESWithAAD returns nonce || ciphertext.
	return &Envelope{
		Ver:        envelopeVer,
		Scheme:     SchemeAESGCM,
		Nonce:      sealed[:util.GCMNonceSize],
		Ciphertext: sealed[util.GCMNonceSize:],
		Version:    version,
	}, nil
}

// OpenRecord decrypts a sealed Envelope using the given record key and AAD.
func OpenRecord(recordKey []byte, envelope *Envelope, aad []byte) ([]byte, error) {
	if envelope == nil {
		return nil, fmt.Errorf("nil envelope")
	}
	if envelope.Ver != envelopeVer {
		return nil, fmt.Errorf("unsupported envelope version: %d", envelope.Ver)
	}
	if envelope.Scheme != SchemeAESGCM {
		return nil, fmt.Errorf("unsupported envelope scheme: %s", envelope.Scheme)
	}

	full := make([]byte, len(envelope.Nonce)+len(envelope.Ciphertext))
	copy(full, envelope.Nonce)
	copy(full[len(envelope.Nonce):], envelope.Ciphertext)
	return util.DecryptAESWithAAD(full, recordKey, aad)
}

// PlainRecord wraps an unencrypted payload.
func PlainRecord(payload []byte, version uint64) *Envelope {
	return &Envelope{
		Ver:        envelopeVer,
		Scheme:     SchemePlainJSON,
		Ciphertext: util.CopyBytes(payload),
		Version:    version,
	}
}

// Payload returns the payload of a plain envelope.
func (e *Envelope) Payload() ([]byte, error) {
	if e.Scheme != SchemePlainJSON {
		return nil, fmt.Errorf("envelope scheme %s is not plain", e.Scheme)
	}
	return e.Ciphertext, nil
}
