// Package registry implements the server-side store of per-user key records
// behind the key-storage API.
//
// A registry holds, for each user, exactly the tuple the client pushes: the
// public key, the password-wrapped private key blob, the fingerprint and the
// creation time. The server never sees plaintext private keys or passwords;
// every backend stores ciphertext it cannot open.
//
// Backends are created from location URIs through the Factory:
//
//   - memory:// - in-memory, for tests and development
//   - file:///var/lib/recordcrypt - one JSON file per user under a base dir
//   - vault://mount/prefix?addr=... - HashiCorp Vault KV v2
//   - s3://[KEY:SECRET@]bucket/prefix?region=... - Amazon S3 or compatible
//
// All backends implement interfaces.KeyRegistry and return
// interfaces.ErrKeyNotFound for missing records.
package registry
