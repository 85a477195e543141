package keymanager

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/medisync/recordcrypt/cryptoutils"
	"github.com/medisync/recordcrypt/interfaces"
)

// Manager orchestrates the key lifecycle: generation, password-based
// locking, server synchronization, password rotation, backup and deletion.
// One Manager instance belongs to one session; construct a fresh one per
// session rather than sharing a global.
type Manager struct {
	mu     sync.Mutex
	store  interfaces.LocalStore
	remote interfaces.RemoteKeyStore
	log    *slog.Logger

	// Plaintext private key, present only while unlocked. Cleared by Lock
	// and DeleteKeyPair.
	privateKey *rsa.PrivateKey
}

// New creates a manager over a local store and an optional remote key store.
// A nil remote disables server synchronization; all local operations keep
// working.
func New(store interfaces.LocalStore, remote interfaces.RemoteKeyStore, log *slog.Logger) *Manager {
	return &Manager{
		store:  store,
		remote: remote,
		log:    log,
	}
}

// GenerateAndStore creates a fresh keypair, wraps the private key under the
// password, persists the record locally and unlocks the manager. The record
// is then pushed to the server best-effort; a push failure does not roll
// back the local state.
//
// Valid only when no keypair exists; otherwise ErrKeyPairExists.
func (m *Manager) GenerateAndStore(ctx context.Context, password string) (*interfaces.KeyPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.hasKeyPair(ctx) {
		return nil, interfaces.ErrKeyPairExists
	}

	keyPair, err := cryptoutils.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("keypair generation failed: %w", err)
	}

	wrapped, err := cryptoutils.WrapPrivateKey(keyPair.PrivateKey, password)
	if err != nil {
		return nil, fmt.Errorf("private key wrapping failed: %w", err)
	}

	createdAt := time.Now().UTC()
	record := &interfaces.KeyRecord{
		PublicKey:   keyPair.PublicKey,
		Fingerprint: keyPair.Fingerprint,
		CreatedAt:   createdAt,
	}
	if record.WrappedPrivateKey, err = wrapped.Encode(); err != nil {
		return nil, fmt.Errorf("failed to encode wrapped key: %w", err)
	}

	if err := m.persistRecord(ctx, record); err != nil {
		return nil, err
	}

	privateKey, err := cryptoutils.ParsePrivateKey(keyPair.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse generated key: %w", err)
	}
	m.privateKey = privateKey

	m.log.Info("Generated new keypair", slog.String("fingerprint", keyPair.Fingerprint))
	m.pushToServer(ctx, record)

	return keyPair, nil
}

// Unlock unwraps the persisted private key with the password and caches the
// plaintext in memory. On a wrong password it returns ErrInvalidPassword and
// changes nothing; persisted state is never mutated by this call.
func (m *Manager) Unlock(ctx context.Context, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.privateKey != nil {
		return nil
	}

	wrapped, err := m.loadWrappedKey(ctx)
	if err != nil {
		return err
	}

	privatePEM, err := cryptoutils.UnwrapPrivateKey(wrapped, password)
	if err != nil {
		m.log.Info("Unlock attempt failed")
		return err
	}

	privateKey, err := cryptoutils.ParsePrivateKey(privatePEM)
	if err != nil {
		return fmt.Errorf("stored private key is unusable: %w", err)
	}

	m.privateKey = privateKey
	m.log.Info("Keypair unlocked")
	return nil
}

// Lock clears the in-memory plaintext private key. Safe to call when
// already locked.
func (m *Manager) Lock() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.privateKey == nil {
		return
	}
	m.privateKey = nil
	m.log.Info("Keypair locked")
}

// SyncFromServer fetches the server-held key record, verifies the password
// by unwrapping, overwrites local storage and unlocks. Any failure (no
// server record, wrong password, transport error) leaves local state exactly
// as it was. Used for first-time device pairing.
func (m *Manager) SyncFromServer(ctx context.Context, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.remote == nil {
		return errors.New("no remote key store configured")
	}

	record, err := m.remote.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("server key retrieval failed: %w", err)
	}

	wrapped, err := interfaces.DecodeWrappedPrivateKey(record.WrappedPrivateKey)
	if err != nil {
		return fmt.Errorf("server returned malformed wrapped key: %w", err)
	}

	// Verification step: only a password that unwraps the blob may replace
	// local state.
	privatePEM, err := cryptoutils.UnwrapPrivateKey(wrapped, password)
	if err != nil {
		return err
	}

	privateKey, err := cryptoutils.ParsePrivateKey(privatePEM)
	if err != nil {
		return fmt.Errorf("server-held private key is unusable: %w", err)
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if err := m.persistRecord(ctx, record); err != nil {
		return err
	}

	m.privateKey = privateKey
	m.log.Info("Synchronized keypair from server", slog.String("fingerprint", record.Fingerprint))
	return nil
}

// SyncToServer pushes the current local key record to the server. The error
// return exists for direct callers; lifecycle operations treat a push
// failure as non-fatal and only log it.
func (m *Manager) SyncToServer(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, err := m.loadRecord(ctx)
	if err != nil {
		return err
	}
	return m.storeRemote(ctx, record)
}

// ChangePassword re-wraps the private key under a new password. The old
// password is verified first; on failure nothing is mutated. After the local
// write the new record is pushed best-effort; if the push fails the local
// wrapped key stays valid and usable.
func (m *Manager) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	wrapped, err := m.loadWrappedKey(ctx)
	if err != nil {
		return err
	}

	privatePEM, err := cryptoutils.UnwrapPrivateKey(wrapped, oldPassword)
	if err != nil {
		return err
	}

	rewrapped, err := cryptoutils.WrapPrivateKey(privatePEM, newPassword)
	if err != nil {
		return fmt.Errorf("private key re-wrapping failed: %w", err)
	}

	encoded, err := rewrapped.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode wrapped key: %w", err)
	}
	if err := m.store.Set(ctx, interfaces.StoreKeyWrappedKey, encoded); err != nil {
		return fmt.Errorf("failed to persist re-wrapped key: %w", err)
	}

	m.log.Info("Key password changed")

	if record, err := m.loadRecord(ctx); err == nil {
		m.pushToServer(ctx, record)
	}
	return nil
}

// DeleteKeyPair removes all local key material and the in-memory cache, then
// best-effort deletes the server copy. Irreversible.
func (m *Manager) DeleteKeyPair(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.log.Warn("Deleting keypair, encrypted data becomes unrecoverable")

	for _, key := range []string{
		interfaces.StoreKeyPublicKey,
		interfaces.StoreKeyWrappedKey,
		interfaces.StoreKeyFingerprint,
		interfaces.StoreKeyCreatedAt,
	} {
		if err := m.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to delete local entry %s: %w", key, err)
		}
	}
	m.privateKey = nil

	if m.remote != nil {
		if err := m.remote.Delete(ctx); err != nil {
			m.log.Warn("Failed to delete server key copy", "err", err)
		}
	}
	return nil
}

// Status derives the current key state. Local reads only, no network I/O,
// recomputed on every call.
func (m *Manager) Status(ctx context.Context) interfaces.KeyStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := interfaces.KeyStatus{IsLocked: m.privateKey == nil}

	fingerprint, err := m.store.Get(ctx, interfaces.StoreKeyFingerprint)
	if err != nil {
		return interfaces.KeyStatus{IsLocked: true}
	}
	if _, err := m.store.Get(ctx, interfaces.StoreKeyWrappedKey); err != nil {
		return interfaces.KeyStatus{IsLocked: true}
	}

	status.HasKeyPair = true
	status.Fingerprint = fingerprint

	if raw, err := m.store.Get(ctx, interfaces.StoreKeyCreatedAt); err == nil {
		if createdAt, err := time.Parse(time.RFC3339, raw); err == nil {
			status.CreatedAt = &createdAt
		}
	}
	return status
}

// CheckServerKey probes the server for a key record. The three-valued result
// lets callers distinguish "no key to fetch" from "not authenticated".
func (m *Manager) CheckServerKey(ctx context.Context) (interfaces.ServerKeyState, error) {
	if m.remote == nil {
		return interfaces.ServerKeyAbsent, errors.New("no remote key store configured")
	}

	hasKey, err := m.remote.HasKey(ctx)
	switch {
	case errors.Is(err, interfaces.ErrServerUnauthorized):
		return interfaces.ServerKeyUnauthorized, nil
	case err != nil:
		return interfaces.ServerKeyAbsent, fmt.Errorf("server key probe failed: %w", err)
	case hasKey:
		return interfaces.ServerKeyPresent, nil
	default:
		return interfaces.ServerKeyAbsent, nil
	}
}

// PublicKey returns the parsed public key. Available whenever a keypair
// exists, locked or not.
func (m *Manager) PublicKey(ctx context.Context) (*rsa.PublicKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pem, err := m.store.Get(ctx, interfaces.StoreKeyPublicKey)
	if err != nil {
		return nil, interfaces.ErrNoKeyMaterial
	}
	return cryptoutils.ParsePublicKey([]byte(pem))
}

// PrivateKey returns the cached plaintext private key, or ErrNoKeyMaterial
// while locked.
func (m *Manager) PrivateKey() (*rsa.PrivateKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.privateKey == nil {
		return nil, interfaces.ErrNoKeyMaterial
	}
	return m.privateKey, nil
}

// hasKeyPair reports whether local storage holds a keypair. Caller holds mu.
func (m *Manager) hasKeyPair(ctx context.Context) bool {
	if _, err := m.store.Get(ctx, interfaces.StoreKeyWrappedKey); err != nil {
		return false
	}
	return true
}

// loadWrappedKey reads and decodes the persisted wrapped private key.
// Caller holds mu.
func (m *Manager) loadWrappedKey(ctx context.Context) (interfaces.WrappedPrivateKey, error) {
	encoded, err := m.store.Get(ctx, interfaces.StoreKeyWrappedKey)
	if err != nil {
		return interfaces.WrappedPrivateKey{}, interfaces.ErrNoKeyMaterial
	}

	wrapped, err := interfaces.DecodeWrappedPrivateKey(encoded)
	if err != nil {
		return interfaces.WrappedPrivateKey{}, fmt.Errorf("stored wrapped key is malformed: %w", err)
	}
	return wrapped, nil
}

// loadRecord assembles the full key record from local storage. Caller
// holds mu.
func (m *Manager) loadRecord(ctx context.Context) (*interfaces.KeyRecord, error) {
	publicKey, err := m.store.Get(ctx, interfaces.StoreKeyPublicKey)
	if err != nil {
		return nil, interfaces.ErrNoKeyMaterial
	}
	wrappedKey, err := m.store.Get(ctx, interfaces.StoreKeyWrappedKey)
	if err != nil {
		return nil, interfaces.ErrNoKeyMaterial
	}
	fingerprint, err := m.store.Get(ctx, interfaces.StoreKeyFingerprint)
	if err != nil {
		return nil, interfaces.ErrNoKeyMaterial
	}

	record := &interfaces.KeyRecord{
		PublicKey:         interfaces.PublicKeyPEM(publicKey),
		WrappedPrivateKey: wrappedKey,
		Fingerprint:       fingerprint,
	}
	if raw, err := m.store.Get(ctx, interfaces.StoreKeyCreatedAt); err == nil {
		if createdAt, err := time.Parse(time.RFC3339, raw); err == nil {
			record.CreatedAt = createdAt
		}
	}
	return record, nil
}

// persistRecord writes all four entries of a key record. Caller holds mu.
func (m *Manager) persistRecord(ctx context.Context, record *interfaces.KeyRecord) error {
	entries := map[string]string{
		interfaces.StoreKeyPublicKey:   string(record.PublicKey),
		interfaces.StoreKeyWrappedKey:  record.WrappedPrivateKey,
		interfaces.StoreKeyFingerprint: record.Fingerprint,
		interfaces.StoreKeyCreatedAt:   record.CreatedAt.Format(time.RFC3339),
	}
	for key, value := range entries {
		if err := m.store.Set(ctx, key, value); err != nil {
			return fmt.Errorf("failed to persist %s: %w", key, err)
		}
	}
	return nil
}

// pushToServer stores the record remotely, logging failures at warning
// level. Best-effort: callers never fail because of it. Caller holds mu.
func (m *Manager) pushToServer(ctx context.Context, record *interfaces.KeyRecord) {
	if err := m.storeRemote(ctx, record); err != nil {
		m.log.Warn("Server key push failed, local state remains authoritative", "err", err)
	}
}

func (m *Manager) storeRemote(ctx context.Context, record *interfaces.KeyRecord) error {
	if m.remote == nil {
		return nil
	}
	if err := m.remote.Store(ctx, record); err != nil {
		return fmt.Errorf("server key push failed: %w", err)
	}
	m.log.Debug("Pushed key record to server", slog.String("fingerprint", record.Fingerprint))
	return nil
}
