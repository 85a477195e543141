// Package httpserver provides the HTTP server shell for the key storage
// service.
//
// The server wraps a chi router around a pluggable route registrar (the key
// storage handler in practice), adds request logging, health and readiness
// probes, drain endpoints for coordinated rollouts, and optional pprof.
// Lifecycle is split into RunInBackground and Shutdown so the main loop can
// own signal handling.
package httpserver
