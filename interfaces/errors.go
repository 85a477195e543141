package interfaces

import "errors"

var (
	// ErrInvalidPassword is returned when an AEAD authentication failure
	// occurs while unwrapping a private key or decrypting a backup. A wrong
	// password and a corrupted blob are deliberately indistinguishable.
	ErrInvalidPassword = errors.New("invalid password or corrupted key material")

	// ErrNoKeyMaterial is returned when an operation needs a key that is not
	// present, or needs the private key while the manager is locked.
	ErrNoKeyMaterial = errors.New("required key material not available")

	// ErrKeyPairExists is returned by key generation when local storage
	// already holds a keypair; it must be deleted explicitly first.
	ErrKeyPairExists = errors.New("a keypair already exists")

	// ErrMalformedBackup is returned when a backup blob fails the shape,
	// marker or version check. It is raised before any decryption attempt
	// and is distinct from ErrInvalidPassword.
	ErrMalformedBackup = errors.New("malformed backup blob")

	// ErrPayloadTooLarge is returned when a field value exceeds the maximum
	// message size of the asymmetric scheme.
	ErrPayloadTooLarge = errors.New("payload exceeds asymmetric encryption size limit")

	// ErrKeyNotFound is returned by key registries and the remote store when
	// no key record exists for the requested user.
	ErrKeyNotFound = errors.New("key record not found")

	// ErrServerUnauthorized is returned by the remote store when the server
	// rejects the request for lack of authentication.
	ErrServerUnauthorized = errors.New("server rejected request as unauthorized")

	// ErrEntryNotFound is returned by local stores for a missing entry.
	ErrEntryNotFound = errors.New("entry not found")

	// ErrBackendUnavailable is returned when a registry backend cannot be
	// reached.
	ErrBackendUnavailable = errors.New("registry backend unavailable")

	// ErrInvalidBackendURI is returned by the registry factory for a
	// location URI it cannot parse or does not support.
	ErrInvalidBackendURI = errors.New("invalid registry backend URI")
)
