package fieldcrypt

import (
	"crypto/rand"
	"crypto/rsa"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/medisync/recordcrypt/interfaces"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestEncryptDecryptFieldRoundTrip(t *testing.T) {
	key := testKey(t)

	testCases := []struct {
		name      string
		plaintext string
	}{
		{name: "simple", plaintext: "severe headache since monday"},
		{name: "unicode", plaintext: "Rückenschmerzen, fièvre, 頭痛"},
		{name: "json payload", plaintext: `{"dosage":"5mg","interval":"daily"}`},
		{name: "single char", plaintext: "x"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			encrypted, err := EncryptField(tc.plaintext, &key.PublicKey)
			require.NoError(t, err)
			require.True(t, IsEncrypted(encrypted))
			require.NotContains(t, encrypted, tc.plaintext)

			decrypted, err := DecryptField(encrypted, key)
			require.NoError(t, err)
			require.Equal(t, tc.plaintext, decrypted)
		})
	}
}

func TestEncryptFieldPayloadCeiling(t *testing.T) {
	key := testKey(t)

	limit := MaxPayloadSize(&key.PublicKey)
	require.Equal(t, 190, limit)

	atLimit := strings.Repeat("a", limit)
	encrypted, err := EncryptField(atLimit, &key.PublicKey)
	require.NoError(t, err)
	decrypted, err := DecryptField(encrypted, key)
	require.NoError(t, err)
	require.Equal(t, atLimit, decrypted)

	_, err = EncryptField(strings.Repeat("a", limit+1), &key.PublicKey)
	require.ErrorIs(t, err, interfaces.ErrPayloadTooLarge)
}

func TestDecryptFieldPassthrough(t *testing.T) {
	key := testKey(t)

	// Legacy plaintext values pass through untouched.
	plain, err := DecryptField("never encrypted", key)
	require.NoError(t, err)
	require.Equal(t, "never encrypted", plain)

	empty, err := DecryptField("", key)
	require.NoError(t, err)
	require.Equal(t, "", empty)
}

func TestDecryptFieldFailureSentinel(t *testing.T) {
	key := testKey(t)
	staleKey := testKey(t)

	encrypted, err := EncryptField("secret", &staleKey.PublicKey)
	require.NoError(t, err)

	// Wrong key: sentinel plus error, never a panic or plaintext.
	value, err := DecryptField(encrypted, key)
	require.Error(t, err)
	require.Equal(t, DecryptFailedSentinel, value)

	// Tagged garbage: same handling.
	value, err = DecryptField(EnvelopePrefix+"!!!not-base64!!!", key)
	require.Error(t, err)
	require.Equal(t, DecryptFailedSentinel, value)

	// No private key available.
	value, err = DecryptField(encrypted, nil)
	require.ErrorIs(t, err, interfaces.ErrNoKeyMaterial)
	require.Equal(t, DecryptFailedSentinel, value)
}

func TestIsEncryptedIdempotentTagging(t *testing.T) {
	key := testKey(t)

	encrypted, err := EncryptField("once", &key.PublicKey)
	require.NoError(t, err)

	require.True(t, IsEncrypted(encrypted))
	require.False(t, IsEncrypted("once"))
	require.False(t, IsEncrypted(""))
}

func TestEncryptFieldFreshCiphertext(t *testing.T) {
	key := testKey(t)

	first, err := EncryptField("same plaintext", &key.PublicKey)
	require.NoError(t, err)
	second, err := EncryptField("same plaintext", &key.PublicKey)
	require.NoError(t, err)

	// OAEP is randomized; envelopes never repeat.
	require.NotEqual(t, first, second)
}
