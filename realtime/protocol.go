package realtime

import "time"

// Client message types.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePing        = "ping"
)

// Server message types.
const (
	TypeConnected     = "connected"
	TypeSubscribed    = "subscribed"
	TypeUnsubscribed  = "unsubscribed"
	TypeConfigChanged = "config_changed"
	TypePong          = "pong"
	TypeError         = "error"
)

// ClientMessage is a frame sent by the client.
type ClientMessage struct {
	Type string   `json:"type"`
	Keys []string `json:"keys,omitempty"`
}

// ServerMessage is a frame sent to the client. Fields beyond Type are
// populated per message type.
type ServerMessage struct {
	Type         string    `json:"type"`
	SubscriberID string    `json:"subscriber_id,omitempty"`
	Keys         []string  `json:"keys,omitempty"`
	Key          string    `json:"key,omitempty"`
	Value        any       `json:"value,omitempty"`
	Action       string    `json:"action,omitempty"`
	Version      int       `json:"version,omitempty"`
	Timestamp    time.Time `json:"timestamp,omitzero"`
	Error        string    `json:"error,omitempty"`
}
