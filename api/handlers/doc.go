// Package handlers implements the HTTP surface of the configuration
// service: CRUD and history endpoints under /api/v1/configs, subscription
// statistics, and health probes.
package handlers
