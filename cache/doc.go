// Package cache provides the read-through cache in front of the
// configuration store. Two backends exist: an in-process TTL cache with a
// bounded capacity, and a Redis cache for deployments that share cached
// entries across replicas.
//
// The cache is best effort. A miss, an expired entry or a backend failure
// all degrade to a store read; cached entries must be treated as read-only
// snapshots.
package cache
