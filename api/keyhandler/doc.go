// Package keyhandler implements the HTTP handler and typed client for the
// key storage API.
//
// The server side stores password-wrapped key records in a pluggable
// registry backend and never sees plaintext private keys: clients wrap the
// private key under a password-derived AEAD before uploading, and the server
// treats the result as opaque ciphertext.
//
// # API Endpoints
//
//   - GET /api/keys/{user_id}/status: report whether a record exists
//   - GET /api/keys/{user_id}: fetch the stored key record
//   - POST /api/keys/{user_id}: store or replace the key record
//   - DELETE /api/keys/{user_id}: remove the key record
//
// Authorization is delegated to an Authorizer callback so deployments can
// plug in their own session validation. The bundled bearer-token authorizer
// covers simple shared-secret setups.
//
// The Client type implements interfaces.RemoteKeyStore over this API and is
// what the key manager uses for server synchronization.
package keyhandler
