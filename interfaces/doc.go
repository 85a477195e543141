// Package interfaces defines the core types and contracts shared across the
// recordcrypt client, the reference key-storage server, and the storage
// backends.
//
// The package contains:
//   - Key material types (KeyPair, WrappedPrivateKey, KeyRecord)
//   - Derived status types (KeyStatus, ServerKeyState)
//   - Sensitive field set configuration for record encryption
//   - Storage contracts (LocalStore for the client-side persisted entries,
//     KeyRegistry for the server-side per-user key records)
//   - The RemoteKeyStore contract implemented by the HTTP client
//   - Typed sentinel errors used throughout the module
//
// Keeping these in a dependency-free package lets every component reference
// the same types without import cycles between the key manager, the field
// encryption layer, and the transport.
package interfaces
