// Package server manages the HTTP server lifecycle: non-blocking startup,
// graceful shutdown and termination signal handling. Errors() exposes
// asynchronous serve failures so callers can react to a server dying after
// a successful Start.
package server
