package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/conflux/bus"
)

// Broker is the subscription surface the handler needs. *engine.Engine
// satisfies it.
type Broker interface {
	RegisterSubscriber(id string, sink bus.Sink) error
	Subscribe(id string, keys ...string) error
	Unsubscribe(id string, keys ...string)
	DropSubscriber(id string)
}

// Handler upgrades HTTP requests to WebSocket subscriber connections.
type Handler struct {
	broker Broker
	logger *zap.Logger

	// WriteTimeout bounds a single frame write to the client.
	WriteTimeout time.Duration
}

// NewHandler creates a WebSocket handler over the broker.
func NewHandler(broker Broker, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		broker:       broker,
		logger:       logger.With(zap.String("component", "realtime_handler")),
		WriteTimeout: 10 * time.Second,
	}
}

// connSink adapts a WebSocket connection to bus.Sink. Writes are serialized
// with a mutex because the read loop also writes acks to the same
// connection.
type connSink struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
	closed       bool
}

func (s *connSink) write(ctx context.Context, msg ServerMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return context.Canceled
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	wctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	return s.conn.Write(wctx, websocket.MessageText, data)
}

// Send implements bus.Sink.
func (s *connSink) Send(ctx context.Context, ev bus.Event) error {
	return s.write(ctx, ServerMessage{
		Type:      TypeConfigChanged,
		Key:       ev.Key,
		Value:     ev.Value,
		Action:    string(ev.Action),
		Version:   ev.Version,
		Timestamp: ev.Timestamp,
	})
}

// Close implements bus.Sink.
func (s *connSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close(websocket.StatusNormalClosure, "subscriber dropped")
}

// ServeHTTP accepts the WebSocket connection, registers it as a subscriber
// and runs the read loop until the client disconnects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}

	id := uuid.NewString()
	sink := &connSink{conn: conn, writeTimeout: h.WriteTimeout}

	if err := h.broker.RegisterSubscriber(id, sink); err != nil {
		h.logger.Warn("subscriber registration failed", zap.String("subscriber_id", id), zap.Error(err))
		_ = conn.Close(websocket.StatusInternalError, "registration failed")
		return
	}
	defer h.broker.DropSubscriber(id)

	if err := sink.write(r.Context(), ServerMessage{Type: TypeConnected, SubscriberID: id}); err != nil {
		return
	}

	h.logger.Info("subscriber connected", zap.String("subscriber_id", id))
	h.readLoop(r.Context(), conn, sink, id)
	h.logger.Info("subscriber disconnected", zap.String("subscriber_id", id))
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, sink *connSink, id string) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			if werr := sink.write(ctx, ServerMessage{Type: TypeError, Error: "malformed message"}); werr != nil {
				return
			}
			continue
		}

		switch msg.Type {
		case TypeSubscribe:
			if err := h.broker.Subscribe(id, msg.Keys...); err != nil {
				if werr := sink.write(ctx, ServerMessage{Type: TypeError, Error: err.Error()}); werr != nil {
					return
				}
				continue
			}
			if err := sink.write(ctx, ServerMessage{Type: TypeSubscribed, Keys: msg.Keys}); err != nil {
				return
			}

		case TypeUnsubscribe:
			h.broker.Unsubscribe(id, msg.Keys...)
			if err := sink.write(ctx, ServerMessage{Type: TypeUnsubscribed, Keys: msg.Keys}); err != nil {
				return
			}

		case TypePing:
			if err := sink.write(ctx, ServerMessage{Type: TypePong}); err != nil {
				return
			}

		default:
			if err := sink.write(ctx, ServerMessage{Type: TypeError, Error: "unknown message type"}); err != nil {
				return
			}
		}
	}
}
