package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/medisync/recordcrypt/interfaces"
)

// Password KDF and AEAD parameters for private key wrapping.
const (
	// KDFIterations is the PBKDF2-SHA256 iteration count. Deliberately slow.
	KDFIterations = 100_000

	// SaltSize is the byte length of the random KDF salt.
	SaltSize = 16

	// NonceSize is the byte length of the AES-GCM nonce.
	NonceSize = 12

	keySize = 32
)

// WrapPrivateKey encrypts private key bytes under a password. Every call
// draws a fresh salt and nonce, so wrapping identical input with the same
// password yields distinct ciphertexts.
func WrapPrivateKey(privateKey []byte, password string) (interfaces.WrappedPrivateKey, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return interfaces.WrappedPrivateKey{}, fmt.Errorf("failed to generate salt: %w", err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return interfaces.WrappedPrivateKey{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	aead, err := passwordAEAD(password, salt)
	if err != nil {
		return interfaces.WrappedPrivateKey{}, err
	}

	return interfaces.WrappedPrivateKey{
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, privateKey, nil),
	}, nil
}

// UnwrapPrivateKey re-derives the wrapping key from the stored salt and
// decrypts. An authentication failure maps to ErrInvalidPassword; a wrong
// password and a corrupted blob are not told apart.
func UnwrapPrivateKey(wrapped interfaces.WrappedPrivateKey, password string) ([]byte, error) {
	aead, err := passwordAEAD(password, wrapped.Salt)
	if err != nil {
		return nil, err
	}

	if len(wrapped.Nonce) != aead.NonceSize() {
		return nil, interfaces.ErrInvalidPassword
	}

	plaintext, err := aead.Open(nil, wrapped.Nonce, wrapped.Ciphertext, nil)
	if err != nil {
		return nil, interfaces.ErrInvalidPassword
	}
	return plaintext, nil
}

// DeriveKey derives a 256-bit key from a password and salt with the vault's
// KDF parameters. Exposed for the backup codec, which wraps a whole document
// with an independently derived key.
func DeriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, KDFIterations, keySize, sha256.New)
}

// NewSalt returns a fresh random KDF salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// NewNonce returns a fresh random AES-GCM nonce.
func NewNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return nonce, nil
}

// PasswordAEAD builds the AES-256-GCM cipher for a password and salt.
func PasswordAEAD(password string, salt []byte) (cipher.AEAD, error) {
	return passwordAEAD(password, salt)
}

func passwordAEAD(password string, salt []byte) (cipher.AEAD, error) {
	key := DeriveKey(password, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}
