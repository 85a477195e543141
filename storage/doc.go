// Package storage provides the client-side persisted store for key material.
//
// The key manager keeps exactly four string entries (public key, wrapped
// private key, fingerprint, creation timestamp) under one namespace. Two
// backends are provided:
//
//   - MemoryStore: process-local, for tests and ephemeral sessions
//   - FileStore: a single JSON file written atomically, for durable
//     per-device storage
//
// Neither backend ever sees a plaintext private key; the wrapped blob is the
// only private key form that reaches a store.
package storage
