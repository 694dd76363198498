// Package engine orchestrates the configuration core: it validates writes
// against the entry's declared schema, persists through the store,
// invalidates the cache and publishes change events, in that order. Every
// mutation of a key runs under that key's lock so versions are never lost
// or duplicated, and events for one key are published in commit order.
package engine
