// Package cryptoutils implements the two cryptographic primitives underneath
// the key manager: asymmetric keypair generation and password-based wrapping
// of private key material.
//
// Keypair generation produces RSA-2048 keypairs intended for small-payload
// OAEP encryption of individual record fields, encoded as PEM (PKIX for the
// public key, PKCS#8 for the private key), together with a short display
// fingerprint of the public key.
//
// The vault wraps arbitrary key bytes under a password: a 256-bit key is
// derived with PBKDF2-SHA256 using a fresh random salt, and the material is
// sealed with AES-256-GCM under a fresh random nonce. The GCM authentication
// tag is the only wrong-password detection mechanism; a wrong password and a
// corrupted blob are indistinguishable by design. Wrapping the same input
// with the same password twice never reproduces the same ciphertext.
package cryptoutils
