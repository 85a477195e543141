// Package fieldcrypt implements field-level and whole-record encryption on
// top of the keys owned by the key manager.
//
// Individual values are encrypted with RSA-OAEP (SHA-256) under the public
// key and serialized into a tagged envelope string:
//
//	ENCv1:<base64 JSON {data, algorithm, encryptedAt}>
//
// The tag prefix makes encryption detection an O(1) check, which prevents
// double encryption and lets records mix legacy plaintext fields with
// encrypted ones. Decryption passes untagged values through unchanged and
// downgrades an undecryptable envelope to a visible sentinel instead of
// failing the containing record.
//
// The Service applies the field cipher across configured sensitive field
// sets of structured records, with per-field failure isolation, ordered
// batch variants, and a capability query derived from the key manager's
// status: encryption needs only the public key (available while locked),
// decryption needs the unlocked private key.
//
// Payload size is bounded by the OAEP ceiling of the 2048-bit modulus (190
// bytes); there is no chunking, and oversized values surface as
// ErrPayloadTooLarge.
package fieldcrypt
