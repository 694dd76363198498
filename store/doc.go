// Package store provides durable persistence for configuration entries
// with optimistic versioning and a bounded audit trail.
//
// Two backends are available: a GORM-backed store for PostgreSQL, MySQL
// and SQLite production deployments, and an in-memory store for
// development and testing. Both enforce the same semantics: versions
// increase by exactly 1 per committed mutation, deletes are soft, and
// per-entry change history is capped at types.MaxHistoryEntries events.
package store
