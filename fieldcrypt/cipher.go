package fieldcrypt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/medisync/recordcrypt/interfaces"
)

// EnvelopePrefix tags every encrypted field value. Values without the prefix
// are treated as plaintext.
const EnvelopePrefix = "ENCv1:"

// AlgorithmRSAOAEP256 identifies the asymmetric scheme inside envelopes.
const AlgorithmRSAOAEP256 = "RSA-OAEP-256"

// DecryptFailedSentinel replaces a field value whose envelope could not be
// decrypted, so callers can render partial records instead of dropping them.
const DecryptFailedSentinel = "[decryption failed]"

// envelope is the serialized form of one encrypted field value.
type envelope struct {
	Data        []byte    `json:"data"`
	Algorithm   string    `json:"algorithm"`
	EncryptedAt time.Time `json:"encryptedAt"`
}

// IsEncrypted reports whether a value carries the envelope tag. O(1).
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, EnvelopePrefix)
}

// MaxPayloadSize returns the OAEP message ceiling for the given public key.
func MaxPayloadSize(pub *rsa.PublicKey) int {
	return pub.Size() - 2*sha256.Size - 2
}

// EncryptField encrypts a plaintext value under the public key and returns
// the tagged envelope string. Values longer than the OAEP ceiling return
// ErrPayloadTooLarge; there is no chunking.
func EncryptField(plaintext string, pub *rsa.PublicKey) (string, error) {
	if pub == nil {
		return "", interfaces.ErrNoKeyMaterial
	}
	if len(plaintext) > MaxPayloadSize(pub) {
		return "", fmt.Errorf("%w: %d bytes exceeds %d byte limit",
			interfaces.ErrPayloadTooLarge, len(plaintext), MaxPayloadSize(pub))
	}

	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, []byte(plaintext), nil)
	if err != nil {
		return "", fmt.Errorf("field encryption failed: %w", err)
	}

	raw, err := json.Marshal(envelope{
		Data:        ciphertext,
		Algorithm:   AlgorithmRSAOAEP256,
		EncryptedAt: time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode envelope: %w", err)
	}

	return EnvelopePrefix + base64.StdEncoding.EncodeToString(raw), nil
}

// DecryptField decrypts a tagged envelope value with the private key.
// Untagged values pass through unchanged. An envelope that cannot be parsed
// or decrypted yields the sentinel value together with the error, so callers
// can isolate per-field failures without losing the record.
func DecryptField(value string, priv *rsa.PrivateKey) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}
	if priv == nil {
		return DecryptFailedSentinel, interfaces.ErrNoKeyMaterial
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, EnvelopePrefix))
	if err != nil {
		return DecryptFailedSentinel, fmt.Errorf("malformed envelope encoding: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return DecryptFailedSentinel, fmt.Errorf("malformed envelope: %w", err)
	}
	if env.Algorithm != AlgorithmRSAOAEP256 {
		return DecryptFailedSentinel, fmt.Errorf("unsupported envelope algorithm %q", env.Algorithm)
	}

	plaintext, err := rsa.DecryptOAEP(sha256.New(), nil, priv, env.Data, nil)
	if err != nil {
		return DecryptFailedSentinel, fmt.Errorf("field decryption failed: %w", err)
	}
	return string(plaintext), nil
}
