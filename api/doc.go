// Package api defines shared types and configuration for the key storage
// HTTP API.
//
// The package contains the wire-level request and response shapes exchanged
// between clients and the key storage server, along with the HTTP server
// configuration structure. Handler implementations live in subpackages:
//
//   - keyhandler: HTTP handler and typed client for wrapped key records
//
// Wire types reuse the canonical representations from the interfaces package
// so that a record stored through the API round-trips byte for byte.
package api
