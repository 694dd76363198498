package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/conflux/types"
)

// Event is the change notification delivered to subscribers.
type Event struct {
	Key       string             `json:"key"`
	Value     any                `json:"value"`
	Action    types.ChangeAction `json:"action"`
	Version   int                `json:"version"`
	Timestamp time.Time          `json:"timestamp"`
}

// Sink delivers events to one subscriber. Send is called from the
// subscriber's writer goroutine, never concurrently.
type Sink interface {
	Send(ctx context.Context, ev Event) error
	Close() error
}

// Config tunes per-subscriber delivery.
type Config struct {
	// QueueSize bounds the per-subscriber event queue.
	QueueSize int `yaml:"queue_size" json:"queue_size"`

	// SendTimeout bounds a single sink write.
	SendTimeout time.Duration `yaml:"send_timeout" json:"send_timeout"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		QueueSize:   64,
		SendTimeout: 5 * time.Second,
	}
}

type subscriber struct {
	id    string
	sink  Sink
	queue chan Event
	keys  map[string]struct{}
}

// ChangeBus is the in-process subscription registry and notifier.
type ChangeBus struct {
	config Config
	logger *zap.Logger

	mu        sync.RWMutex
	subs      map[string]*subscriber
	interests map[string]map[string]struct{}
	onDrop    func(Event)
	closed    bool
	wg        sync.WaitGroup
}

// NewChangeBus creates an empty bus.
func NewChangeBus(config Config, logger *zap.Logger) *ChangeBus {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultConfig().QueueSize
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = DefaultConfig().SendTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ChangeBus{
		config:    config,
		logger:    logger.With(zap.String("component", "change_bus")),
		subs:      make(map[string]*subscriber),
		interests: make(map[string]map[string]struct{}),
	}
}

// Register adds a subscriber with its delivery sink and starts its writer
// goroutine. The id must be unique among connected subscribers.
func (b *ChangeBus) Register(id string, sink Sink) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("change bus is closed")
	}
	if _, exists := b.subs[id]; exists {
		return fmt.Errorf("subscriber %s already registered", id)
	}

	sub := &subscriber{
		id:    id,
		sink:  sink,
		queue: make(chan Event, b.config.QueueSize),
		keys:  make(map[string]struct{}),
	}
	b.subs[id] = sub

	b.wg.Add(1)
	go b.deliverLoop(sub)

	b.logger.Info("subscriber registered", zap.String("subscriber_id", id))
	return nil
}

// OnEventDropped registers a callback invoked whenever a queue-full
// publish drops an event for a subscriber.
func (b *ChangeBus) OnEventDropped(fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onDrop = fn
}

// Subscribe declares the subscriber's interest in keys. Subscribing twice
// to the same key is a no-op.
func (b *ChangeBus) Subscribe(id string, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("change bus is closed")
	}
	sub, exists := b.subs[id]
	if !exists {
		return fmt.Errorf("subscriber %s not registered", id)
	}

	for _, key := range keys {
		set, ok := b.interests[key]
		if !ok {
			set = make(map[string]struct{})
			b.interests[key] = set
		}
		set[id] = struct{}{}
		sub.keys[key] = struct{}{}
	}
	return nil
}

// Unsubscribe removes the subscriber's interest in keys. Unknown
// subscribers and keys never subscribed to are ignored.
func (b *ChangeBus) Unsubscribe(id string, keys ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, exists := b.subs[id]
	for _, key := range keys {
		if set, ok := b.interests[key]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(b.interests, key)
			}
		}
		if exists {
			delete(sub.keys, key)
		}
	}
}

// DropSubscriber disconnects the subscriber, removing every interest it
// holds and closing its sink. Dropping an unknown id is a no-op.
func (b *ChangeBus) DropSubscriber(id string) {
	b.mu.Lock()
	sub, exists := b.subs[id]
	if exists {
		delete(b.subs, id)
		for key := range sub.keys {
			set := b.interests[key]
			delete(set, id)
			if len(set) == 0 {
				delete(b.interests, key)
			}
		}
		close(sub.queue)
	}
	b.mu.Unlock()

	if exists {
		if err := sub.sink.Close(); err != nil {
			b.logger.Debug("sink close failed",
				zap.String("subscriber_id", id),
				zap.Error(err),
			)
		}
		b.logger.Info("subscriber dropped", zap.String("subscriber_id", id))
	}
}

// Publish fans the event out to every subscriber watching ev.Key. Publish
// never blocks and never fails: when a subscriber's queue is full the event
// is dropped for that subscriber and logged.
func (b *ChangeBus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for id := range b.interests[ev.Key] {
		sub, ok := b.subs[id]
		if !ok {
			continue
		}
		select {
		case sub.queue <- ev:
		default:
			b.logger.Warn("subscriber queue full, dropping event",
				zap.String("subscriber_id", id),
				zap.String("key", ev.Key),
				zap.String("action", string(ev.Action)),
			)
			if b.onDrop != nil {
				b.onDrop(ev)
			}
		}
	}
}

// Stats describes the current subscription registry.
type Stats struct {
	ConnectedSubscribers int            `json:"connected_subscribers"`
	TotalSubscriptions   int            `json:"total_subscriptions"`
	UniqueKeys           int            `json:"unique_keys"`
	SubscribersPerKey    map[string]int `json:"subscribers_per_key"`
}

// Stats returns a snapshot of the registry.
func (b *ChangeBus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := Stats{
		ConnectedSubscribers: len(b.subs),
		UniqueKeys:           len(b.interests),
		SubscribersPerKey:    make(map[string]int, len(b.interests)),
	}
	for key, set := range b.interests {
		stats.SubscribersPerKey[key] = len(set)
		stats.TotalSubscriptions += len(set)
	}
	return stats
}

// Close drops every subscriber and waits for the writer goroutines to
// finish. Publishing after Close is a no-op.
func (b *ChangeBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	ids := make([]string, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	b.mu.Unlock()

	for _, id := range ids {
		b.DropSubscriber(id)
	}
	b.wg.Wait()

	b.logger.Info("change bus closed")
	return nil
}

// deliverLoop writes queued events to the subscriber's sink. A failed
// write drops the subscriber; the remaining queued events are discarded.
func (b *ChangeBus) deliverLoop(sub *subscriber) {
	defer b.wg.Done()

	for ev := range sub.queue {
		ctx, cancel := context.WithTimeout(context.Background(), b.config.SendTimeout)
		err := sub.sink.Send(ctx, ev)
		cancel()

		if err != nil {
			b.logger.Warn("event delivery failed, dropping subscriber",
				zap.String("subscriber_id", sub.id),
				zap.String("key", ev.Key),
				zap.Error(err),
			)
			b.DropSubscriber(sub.id)
			// Drain whatever Publish enqueued before the drop.
			for range sub.queue {
			}
			return
		}
	}
}
