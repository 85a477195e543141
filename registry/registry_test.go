package registry

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medisync/recordcrypt/interfaces"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleRecord() *interfaces.KeyRecord {
	return &interfaces.KeyRecord{
		PublicKey:         interfaces.PublicKeyPEM("-----BEGIN PUBLIC KEY-----\nMIIB\n-----END PUBLIC KEY-----\n"),
		WrappedPrivateKey: `{"salt":"c2FsdHNhbHRzYWx0c2FsdA==","nonce":"bm9uY2Vub25jZQ==","ciphertext":"Y2lwaGVy"}`,
		Fingerprint:       "ab12:cd34:ef56:ab12:cd34:ef56:ab12:cd34",
		CreatedAt:         time.Now().UTC().Truncate(time.Second),
	}
}

func TestMemoryRegistry(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()
	user := interfaces.UserID("user-1")

	_, err := reg.Fetch(ctx, user)
	assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)

	record := sampleRecord()
	require.NoError(t, reg.Store(ctx, user, record))

	fetched, err := reg.Fetch(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, record, fetched)

	// Mutating the fetched copy must not affect the stored record.
	fetched.Fingerprint = "tampered"
	again, err := reg.Fetch(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, record.Fingerprint, again.Fingerprint)

	require.NoError(t, reg.Delete(ctx, user))
	assert.ErrorIs(t, reg.Delete(ctx, user), interfaces.ErrKeyNotFound)
	assert.True(t, reg.Available(ctx))
}

func TestFileRegistry(t *testing.T) {
	ctx := context.Background()
	reg, err := NewFileRegistry(t.TempDir(), testLogger())
	require.NoError(t, err)
	user := interfaces.UserID("user-1")

	_, err = reg.Fetch(ctx, user)
	assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)

	record := sampleRecord()
	require.NoError(t, reg.Store(ctx, user, record))

	fetched, err := reg.Fetch(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, record, fetched)

	// Overwrite replaces the record in place.
	record.Fingerprint = "ff00:ff00:ff00:ff00:ff00:ff00:ff00:ff00"
	require.NoError(t, reg.Store(ctx, user, record))
	fetched, err = reg.Fetch(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, record.Fingerprint, fetched.Fingerprint)

	require.NoError(t, reg.Delete(ctx, user))
	_, err = reg.Fetch(ctx, user)
	assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)

	assert.True(t, reg.Available(ctx))
}

func TestFileRegistryHostileUserIDs(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	reg, err := NewFileRegistry(dir, testLogger())
	require.NoError(t, err)

	// Path-traversal attempts must stay confined to the base directory.
	for _, id := range []string{"../escape", "/etc/passwd", "a/b/c", ".."} {
		user := interfaces.UserID(id)
		require.NoError(t, reg.Store(ctx, user, sampleRecord()))
		_, err := reg.Fetch(ctx, user)
		require.NoError(t, err)
		require.NoError(t, reg.Delete(ctx, user))
	}
}

func TestFactorySchemes(t *testing.T) {
	factory := NewFactory(testLogger())

	t.Run("memory", func(t *testing.T) {
		reg, err := factory.RegistryFor("memory://")
		require.NoError(t, err)
		assert.Equal(t, "memory", reg.Name())
	})

	t.Run("file", func(t *testing.T) {
		dir := t.TempDir()
		reg, err := factory.RegistryFor("file://" + dir)
		require.NoError(t, err)
		assert.IsType(t, &FileRegistry{}, reg)
	})

	t.Run("vault", func(t *testing.T) {
		reg, err := factory.RegistryFor("vault://secret/recordcrypt/keys?addr=http://127.0.0.1:8200")
		require.NoError(t, err)
		assert.Equal(t, "vault-secret-recordcrypt/keys", reg.Name())
	})

	t.Run("s3", func(t *testing.T) {
		reg, err := factory.RegistryFor("s3://KEY:SECRET@test-bucket/keys?region=eu-west-1")
		require.NoError(t, err)
		assert.Equal(t, "s3-test-bucket-keys", reg.Name())
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := factory.RegistryFor("gopher://nope")
		assert.ErrorIs(t, err, interfaces.ErrInvalidBackendURI)

		_, err = factory.RegistryFor("file://")
		assert.ErrorIs(t, err, interfaces.ErrInvalidBackendURI)

		_, err = factory.RegistryFor("vault://")
		assert.ErrorIs(t, err, interfaces.ErrInvalidBackendURI)

		_, err = factory.RegistryFor("s3://")
		assert.ErrorIs(t, err, interfaces.ErrInvalidBackendURI)
	})
}
