// Package types defines the shared data model and error types for the
// Conflux configuration store: configuration entries, change events,
// and the structured error taxonomy used across all components.
package types
