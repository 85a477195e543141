package interfaces

import "context"

// Local store entry names. The four entries together form the persisted key
// material of one client; they live under a single namespace.
const (
	StoreKeyPublicKey   = "publicKey"
	StoreKeyWrappedKey  = "wrappedPrivateKey"
	StoreKeyFingerprint = "fingerprint"
	StoreKeyCreatedAt   = "createdAt"
)

// LocalStore is the client-side persisted key-value store holding the four
// key material entries. Implementations must return ErrEntryNotFound for a
// missing entry and must make Set durable before returning.
type LocalStore interface {
	// Get returns the value of the named entry.
	Get(ctx context.Context, key string) (string, error)

	// Set writes the named entry, replacing any previous value.
	Set(ctx context.Context, key string, value string) error

	// Delete removes the named entry. Deleting a missing entry is not an
	// error.
	Delete(ctx context.Context, key string) error
}

// KeyRegistry is the server-side store of per-user key records backing the
// key-storage API. Implementations must return ErrKeyNotFound from Fetch and
// Delete when no record exists for the user.
type KeyRegistry interface {
	// Fetch returns the key record stored for the user.
	Fetch(ctx context.Context, user UserID) (*KeyRecord, error)

	// Store writes the key record for the user, replacing any previous one.
	Store(ctx context.Context, user UserID, record *KeyRecord) error

	// Delete removes the user's key record.
	Delete(ctx context.Context, user UserID) error

	// Available reports whether the backend is currently reachable.
	Available(ctx context.Context) bool

	// Name returns a unique identifier for this backend.
	Name() string
}

// RemoteKeyStore is the client-side view of the key-storage API. The key
// manager uses it for best-effort synchronization; every transport or server
// failure must surface as an error so the caller can decide whether it is
// fatal.
type RemoteKeyStore interface {
	// HasKey reports whether the server holds a key record for this client.
	// A lack of authentication surfaces as ErrServerUnauthorized.
	HasKey(ctx context.Context) (bool, error)

	// Retrieve fetches the server-held key record. Returns ErrKeyNotFound
	// when the server holds none.
	Retrieve(ctx context.Context) (*KeyRecord, error)

	// Store pushes the key record to the server.
	Store(ctx context.Context, record *KeyRecord) error

	// Delete removes the server-held key record. Deleting a missing record
	// is not an error.
	Delete(ctx context.Context) error
}
