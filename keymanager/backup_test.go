package keymanager

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/medisync/recordcrypt/interfaces"
	"github.com/medisync/recordcrypt/storage"
)

func TestBackupExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	manager, _, remote := newTestManager(t)

	keyPair, err := manager.GenerateAndStore(ctx, testPassword)
	require.NoError(t, err)

	// Backup password deliberately differs from the unlock password.
	backup, err := manager.ExportBackup(ctx, "backup-secret")
	require.NoError(t, err)
	require.NotEmpty(t, backup)

	// Restore onto a fresh device.
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	restored := New(storage.NewMemoryStore(), remote, log)
	require.NoError(t, restored.ImportBackup(ctx, backup, "backup-secret"))

	// Import lands in the locked state; the inner key still needs its own
	// unlock password.
	status := restored.Status(ctx)
	require.True(t, status.HasKeyPair)
	require.True(t, status.IsLocked)
	require.Equal(t, keyPair.Fingerprint, status.Fingerprint)

	require.ErrorIs(t, restored.Unlock(ctx, "backup-secret"), interfaces.ErrInvalidPassword)
	require.NoError(t, restored.Unlock(ctx, testPassword))
}

func TestBackupExportFreshness(t *testing.T) {
	ctx := context.Background()
	manager, _, _ := newTestManager(t)

	_, err := manager.GenerateAndStore(ctx, testPassword)
	require.NoError(t, err)

	first, err := manager.ExportBackup(ctx, "backup-secret")
	require.NoError(t, err)
	second, err := manager.ExportBackup(ctx, "backup-secret")
	require.NoError(t, err)

	require.NotEqual(t, first, second)
}

func TestImportBackupWrongPassword(t *testing.T) {
	ctx := context.Background()
	manager, _, _ := newTestManager(t)

	_, err := manager.GenerateAndStore(ctx, testPassword)
	require.NoError(t, err)
	backup, err := manager.ExportBackup(ctx, "backup-secret")
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	fresh := New(storage.NewMemoryStore(), nil, log)
	err = fresh.ImportBackup(ctx, backup, "wrong")
	require.ErrorIs(t, err, interfaces.ErrInvalidPassword)
	require.False(t, fresh.Status(ctx).HasKeyPair)
}

func TestImportBackupMalformed(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager := New(storage.NewMemoryStore(), nil, log)

	testCases := []struct {
		name string
		blob string
	}{
		{name: "not base64", blob: "%%%not-base64%%%"},
		{name: "not json", blob: base64.StdEncoding.EncodeToString([]byte("junk"))},
		{
			name: "wrong type marker",
			blob: base64.StdEncoding.EncodeToString(
				[]byte(`{"type":"something-else","version":1,"salt":"YWJj","nonce":"YWJj","data":"YWJj"}`)),
		},
		{
			name: "unsupported version",
			blob: base64.StdEncoding.EncodeToString(
				[]byte(`{"type":"recordcrypt-key-backup","version":99,"salt":"YWJj","nonce":"YWJj","data":"YWJj"}`)),
		},
		{
			name: "missing fields",
			blob: base64.StdEncoding.EncodeToString(
				[]byte(`{"type":"recordcrypt-key-backup","version":1}`)),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Shape failures are detected before any decryption and are
			// distinct from a password failure.
			err := manager.ImportBackup(ctx, tc.blob, "irrelevant")
			require.ErrorIs(t, err, interfaces.ErrMalformedBackup)
		})
	}
}

func TestExportBackupWithoutKeyPair(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager := New(storage.NewMemoryStore(), nil, log)

	_, err := manager.ExportBackup(ctx, "backup-secret")
	require.ErrorIs(t, err, interfaces.ErrNoKeyMaterial)
}

func TestImportBackupPushesToServer(t *testing.T) {
	ctx := context.Background()
	manager, _, _ := newTestManager(t)

	_, err := manager.GenerateAndStore(ctx, testPassword)
	require.NoError(t, err)
	backup, err := manager.ExportBackup(ctx, "backup-secret")
	require.NoError(t, err)

	remote := &fakeRemote{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	restored := New(storage.NewMemoryStore(), remote, log)

	require.NoError(t, restored.ImportBackup(ctx, backup, "backup-secret"))
	require.NotNil(t, remote.record)
	require.Equal(t, restored.Status(ctx).Fingerprint, remote.record.Fingerprint)
}
