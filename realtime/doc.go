// Package realtime exposes the change bus over WebSocket. Each connection
// is one subscriber: clients send subscribe/unsubscribe messages naming the
// keys they watch and receive a config_changed frame for every committed
// mutation of a watched key.
package realtime
