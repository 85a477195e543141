package cryptoutils

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/medisync/recordcrypt/interfaces"
)

// KeyPairBits is the RSA modulus size used for field encryption keypairs.
const KeyPairBits = 2048

// FingerprintGroups is the number of 4-hex-digit groups in a display
// fingerprint.
const FingerprintGroups = 8

// GenerateKeyPair produces a fresh RSA-2048 keypair encoded as PEM, together
// with the display fingerprint of the public key. It has no inputs and no
// side effects besides consuming platform randomness.
func GenerateKeyPair() (*interfaces.KeyPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, KeyPairBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: privDER,
	})

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubDER,
	})

	return &interfaces.KeyPair{
		PublicKey:   pubPEM,
		PrivateKey:  privPEM,
		Fingerprint: Fingerprint(pubPEM),
	}, nil
}

// Fingerprint computes the display identifier of a public key: SHA-256 over
// the PEM bytes, hex encoded, truncated and grouped for readability. It is an
// identification aid only, never a security boundary.
func Fingerprint(publicKeyPEM interfaces.PublicKeyPEM) string {
	sum := sha256.Sum256(publicKeyPEM)
	hexSum := hex.EncodeToString(sum[:])

	groups := make([]string, 0, FingerprintGroups)
	for i := 0; i < FingerprintGroups; i++ {
		groups = append(groups, hexSum[i*4:i*4+4])
	}
	return strings.Join(groups, ":")
}

// ParsePublicKey decodes a PEM-encoded PKIX RSA public key.
func ParsePublicKey(publicKeyPEM interfaces.PublicKeyPEM) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(publicKeyPEM)
	if block == nil {
		return nil, errors.New("failed to decode public key PEM")
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not an RSA public key")
	}
	return pub, nil
}

// ParsePrivateKey decodes a PEM-encoded PKCS#8 RSA private key.
func ParsePrivateKey(privateKeyPEM interfaces.PrivateKeyPEM) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(privateKeyPEM)
	if block == nil {
		return nil, errors.New("failed to decode private key PEM")
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	priv, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("not an RSA private key")
	}
	return priv, nil
}
