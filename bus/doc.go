// Package bus fans out configuration change events to subscribers. Each
// subscriber registers a delivery sink and declares interest in individual
// configuration keys; every committed mutation is published to the ones
// watching the mutated key.
//
// Delivery is at-most-once. Each subscriber gets its own bounded queue and
// writer goroutine, so one slow consumer never blocks publishers or other
// subscribers. When a queue overflows the event is dropped and logged; when
// a sink write fails the subscriber is dropped entirely.
package bus
