package keymanager

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/medisync/recordcrypt/interfaces"
	"github.com/medisync/recordcrypt/storage"
)

// fakeRemote is an in-memory RemoteKeyStore with switchable failure modes.
type fakeRemote struct {
	mu           sync.Mutex
	record       *interfaces.KeyRecord
	failNetwork  bool
	unauthorized bool
	storeCalls   int
	deleteCalls  int
}

func (r *fakeRemote) HasKey(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unauthorized {
		return false, interfaces.ErrServerUnauthorized
	}
	if r.failNetwork {
		return false, errors.New("connection refused")
	}
	return r.record != nil, nil
}

func (r *fakeRemote) Retrieve(ctx context.Context) (*interfaces.KeyRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unauthorized {
		return nil, interfaces.ErrServerUnauthorized
	}
	if r.failNetwork {
		return nil, errors.New("connection refused")
	}
	if r.record == nil {
		return nil, interfaces.ErrKeyNotFound
	}
	copied := *r.record
	return &copied, nil
}

func (r *fakeRemote) Store(ctx context.Context, record *interfaces.KeyRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storeCalls++
	if r.failNetwork {
		return errors.New("connection refused")
	}
	copied := *record
	r.record = &copied
	return nil
}

func (r *fakeRemote) Delete(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleteCalls++
	if r.failNetwork {
		return errors.New("connection refused")
	}
	r.record = nil
	return nil
}

func newTestManager(t *testing.T) (*Manager, *storage.MemoryStore, *fakeRemote) {
	t.Helper()
	store := storage.NewMemoryStore()
	remote := &fakeRemote{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, remote, log), store, remote
}

const testPassword = "Tr0ub4dor&3"

func TestLifecycleScenario(t *testing.T) {
	ctx := context.Background()
	manager, _, _ := newTestManager(t)

	// No keypair yet.
	status := manager.Status(ctx)
	require.False(t, status.HasKeyPair)

	keyPair, err := manager.GenerateAndStore(ctx, testPassword)
	require.NoError(t, err)
	require.NotEmpty(t, keyPair.Fingerprint)

	status = manager.Status(ctx)
	require.True(t, status.HasKeyPair)
	require.False(t, status.IsLocked)
	require.Equal(t, keyPair.Fingerprint, status.Fingerprint)
	require.NotNil(t, status.CreatedAt)

	manager.Lock()
	require.True(t, manager.Status(ctx).IsLocked)

	// Wrong password: failure signal, state unchanged.
	err = manager.Unlock(ctx, "wrong")
	require.ErrorIs(t, err, interfaces.ErrInvalidPassword)
	require.True(t, manager.Status(ctx).IsLocked)

	require.NoError(t, manager.Unlock(ctx, testPassword))
	require.False(t, manager.Status(ctx).IsLocked)
}

func TestGenerateAndStoreRejectsSecondKeyPair(t *testing.T) {
	ctx := context.Background()
	manager, _, _ := newTestManager(t)

	_, err := manager.GenerateAndStore(ctx, testPassword)
	require.NoError(t, err)

	_, err = manager.GenerateAndStore(ctx, "other")
	require.ErrorIs(t, err, interfaces.ErrKeyPairExists)
}

func TestGenerateAndStoreSurvivesPushFailure(t *testing.T) {
	ctx := context.Background()
	manager, _, remote := newTestManager(t)
	remote.failNetwork = true

	// Local write is authoritative; the failed push must not roll it back.
	_, err := manager.GenerateAndStore(ctx, testPassword)
	require.NoError(t, err)
	require.True(t, manager.Status(ctx).HasKeyPair)
	require.Equal(t, 1, remote.storeCalls)
}

func TestLockIsIdempotent(t *testing.T) {
	ctx := context.Background()
	manager, _, _ := newTestManager(t)

	_, err := manager.GenerateAndStore(ctx, testPassword)
	require.NoError(t, err)

	manager.Lock()
	manager.Lock()
	require.True(t, manager.Status(ctx).IsLocked)

	_, err = manager.PrivateKey()
	require.ErrorIs(t, err, interfaces.ErrNoKeyMaterial)
}

func TestPublicKeyAvailableWhileLocked(t *testing.T) {
	ctx := context.Background()
	manager, _, _ := newTestManager(t)

	_, err := manager.GenerateAndStore(ctx, testPassword)
	require.NoError(t, err)
	manager.Lock()

	pub, err := manager.PublicKey(ctx)
	require.NoError(t, err)
	require.NotNil(t, pub)
}

func TestFailedUnlockLeavesStorageUntouched(t *testing.T) {
	ctx := context.Background()
	manager, store, _ := newTestManager(t)

	_, err := manager.GenerateAndStore(ctx, testPassword)
	require.NoError(t, err)
	manager.Lock()

	before, err := store.Get(ctx, interfaces.StoreKeyWrappedKey)
	require.NoError(t, err)

	require.ErrorIs(t, manager.Unlock(ctx, "wrong"), interfaces.ErrInvalidPassword)

	after, err := store.Get(ctx, interfaces.StoreKeyWrappedKey)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	manager, store, remote := newTestManager(t)

	_, err := manager.GenerateAndStore(ctx, testPassword)
	require.NoError(t, err)
	manager.Lock()

	before, err := store.Get(ctx, interfaces.StoreKeyWrappedKey)
	require.NoError(t, err)

	// Wrong old password: abort with no mutation.
	err = manager.ChangePassword(ctx, "wrong", "NewPassword1!")
	require.ErrorIs(t, err, interfaces.ErrInvalidPassword)
	after, err := store.Get(ctx, interfaces.StoreKeyWrappedKey)
	require.NoError(t, err)
	require.Equal(t, before, after)

	// Correct old password: re-wrap, old password stops working.
	require.NoError(t, manager.ChangePassword(ctx, testPassword, "NewPassword1!"))
	require.ErrorIs(t, manager.Unlock(ctx, testPassword), interfaces.ErrInvalidPassword)
	require.NoError(t, manager.Unlock(ctx, "NewPassword1!"))

	// New wrapped key was pushed to the server.
	require.Equal(t, remote.record.WrappedPrivateKey, mustGet(t, store, interfaces.StoreKeyWrappedKey))
}

func TestChangePasswordSurvivesPushFailure(t *testing.T) {
	ctx := context.Background()
	manager, _, remote := newTestManager(t)

	_, err := manager.GenerateAndStore(ctx, testPassword)
	require.NoError(t, err)

	remote.failNetwork = true
	require.NoError(t, manager.ChangePassword(ctx, testPassword, "NewPassword1!"))

	// The local wrapped key remains valid and usable.
	manager.Lock()
	require.NoError(t, manager.Unlock(ctx, "NewPassword1!"))
}

func TestSyncFromServer(t *testing.T) {
	ctx := context.Background()

	// First device generates and pushes.
	first, _, remote := newTestManager(t)
	_, err := first.GenerateAndStore(ctx, testPassword)
	require.NoError(t, err)
	require.NotNil(t, remote.record)

	// Second device pairs from the server copy.
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	secondStore := storage.NewMemoryStore()
	second := New(secondStore, remote, log)

	require.NoError(t, second.SyncFromServer(ctx, testPassword))
	status := second.Status(ctx)
	require.True(t, status.HasKeyPair)
	require.False(t, status.IsLocked)
	require.Equal(t, first.Status(ctx).Fingerprint, status.Fingerprint)
}

func TestSyncFromServerFailuresLeaveLocalStateUntouched(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	testCases := []struct {
		name   string
		remote *fakeRemote
		errIs  error
	}{
		{name: "no server record", remote: &fakeRemote{}, errIs: interfaces.ErrKeyNotFound},
		{name: "network failure", remote: &fakeRemote{failNetwork: true}},
		{name: "unauthorized", remote: &fakeRemote{unauthorized: true}, errIs: interfaces.ErrServerUnauthorized},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			manager := New(store, tc.remote, log)

			err := manager.SyncFromServer(ctx, testPassword)
			require.Error(t, err)
			if tc.errIs != nil {
				require.ErrorIs(t, err, tc.errIs)
			}

			require.False(t, manager.Status(ctx).HasKeyPair)
			_, getErr := store.Get(ctx, interfaces.StoreKeyWrappedKey)
			require.ErrorIs(t, getErr, interfaces.ErrEntryNotFound)
		})
	}
}

func TestSyncFromServerWrongPassword(t *testing.T) {
	ctx := context.Background()
	first, _, remote := newTestManager(t)
	_, err := first.GenerateAndStore(ctx, testPassword)
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemoryStore()
	second := New(store, remote, log)

	require.ErrorIs(t, second.SyncFromServer(ctx, "wrong"), interfaces.ErrInvalidPassword)
	require.False(t, second.Status(ctx).HasKeyPair)
}

func TestDeleteKeyPair(t *testing.T) {
	ctx := context.Background()
	manager, store, remote := newTestManager(t)

	_, err := manager.GenerateAndStore(ctx, testPassword)
	require.NoError(t, err)

	require.NoError(t, manager.DeleteKeyPair(ctx))

	require.False(t, manager.Status(ctx).HasKeyPair)
	_, err = manager.PrivateKey()
	require.ErrorIs(t, err, interfaces.ErrNoKeyMaterial)
	for _, key := range []string{
		interfaces.StoreKeyPublicKey,
		interfaces.StoreKeyWrappedKey,
		interfaces.StoreKeyFingerprint,
		interfaces.StoreKeyCreatedAt,
	} {
		_, err := store.Get(ctx, key)
		require.ErrorIs(t, err, interfaces.ErrEntryNotFound)
	}
	require.Nil(t, remote.record)
}

func TestCheckServerKey(t *testing.T) {
	ctx := context.Background()

	t.Run("absent", func(t *testing.T) {
		manager, _, _ := newTestManager(t)
		state, err := manager.CheckServerKey(ctx)
		require.NoError(t, err)
		require.Equal(t, interfaces.ServerKeyAbsent, state)
	})

	t.Run("present", func(t *testing.T) {
		manager, _, _ := newTestManager(t)
		_, err := manager.GenerateAndStore(ctx, testPassword)
		require.NoError(t, err)

		state, err := manager.CheckServerKey(ctx)
		require.NoError(t, err)
		require.Equal(t, interfaces.ServerKeyPresent, state)
	})

	t.Run("unauthorized", func(t *testing.T) {
		manager, _, remote := newTestManager(t)
		remote.unauthorized = true

		state, err := manager.CheckServerKey(ctx)
		require.NoError(t, err)
		require.Equal(t, interfaces.ServerKeyUnauthorized, state)
	})

	t.Run("network failure", func(t *testing.T) {
		manager, _, remote := newTestManager(t)
		remote.failNetwork = true

		_, err := manager.CheckServerKey(ctx)
		require.Error(t, err)
	})
}

func TestUnlockWithoutKeyPair(t *testing.T) {
	ctx := context.Background()
	manager, _, _ := newTestManager(t)

	require.ErrorIs(t, manager.Unlock(ctx, testPassword), interfaces.ErrNoKeyMaterial)
}

func mustGet(t *testing.T, store interfaces.LocalStore, key string) string {
	t.Helper()
	value, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	return value
}
