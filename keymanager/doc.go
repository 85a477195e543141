// Package keymanager owns the client's key material and its lifecycle.
//
// The manager moves through three states: no keypair, locked (keypair
// persisted, private key wrapped), and unlocked (plaintext private key
// cached in memory). Local storage is authoritative; the server holds a
// best-effort copy of the public key and the wrapped private key so a user
// can pair additional devices.
//
// State transitions:
//
//	none   --GenerateAndStore--> unlocked
//	none   --SyncFromServer----> unlocked
//	locked --Unlock------------> unlocked   (failure: stays locked)
//	unlocked --Lock------------> locked     (idempotent)
//
// Every mutating operation runs under a single mutex so overlapping calls
// from concurrent triggers cannot race on the in-memory key cache or the
// persisted entries. Server pushes are best-effort: a failed push is logged
// at warning level and never rolls back a completed local write.
//
// The manager never logs passwords or key bytes, never persists a plaintext
// private key, and guarantees that a failed Unlock or ChangePassword leaves
// persisted state byte-for-byte unchanged.
//
// The backup codec serializes the full key record into an opaque string
// wrapped under an independent password-derived key. The backup password may
// differ from the key's own unlock password: importing a backup restores the
// record in the locked state, and unlocking it afterwards requires the
// original unlock password, not the backup password.
package keymanager
