// Package events is the notification surface of the sync core: named
// topics per entity type and lifecycle transition, delivered to subscribers
// without ever blocking the publisher.
package events

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/fueltrack/internal/logging"
)

// Kind is a lifecycle transition topic suffix.
type Kind string

const (
	KindSyncInitiated   Kind = "sync-initiated"
	KindSynced          Kind = "synced"
	KindSyncFailed      Kind = "sync-failed"
	KindLocallyAdded    Kind = "locally-added"
	KindLocallyUpdated  Kind = "locally-updated"
	KindLocallyDeleted  Kind = "locally-deleted"
	KindRemotelyAdded   Kind = "remotely-added"
	KindRemotelyUpdated Kind = "remotely-updated"
	KindRemotelyDeleted Kind = "remotely-deleted"
)

// System-wide topics, not tied to one entity type.
const (
	TopicPruningComplete = "system:pruning-complete"
	TopicAuthRequired    = "system:auth-required"
)

// Topic builds the topic name for an entity-scoped transition, e.g.
// "vehicle:synced". Entity names come from the store descriptors.
func Topic(entity string, kind Kind) string {
	return entity + ":" + string(kind)
}

// Event is one published notification. Payload is the affected entity (or
// entities, for batch topics); nil for system topics without one.
type Event struct {
	Topic   string
	Payload any
}

// Hub is a topic-keyed publish/subscribe fan-out. Delivery is per-subscriber
// buffered; a subscriber that stops draining loses events rather than
// stalling the sync engine.
type Hub struct {
	mu   sync.RWMutex
	subs map[string][]chan Event
	log  logging.Logger

	closed bool
}

const subscriberBuffer = 64

func NewHub(log logging.Logger) *Hub {
	if log == nil {
		log = logging.Nop()
	}
	return &Hub{subs: make(map[string][]chan Event), log: log}
}

// Subscribe registers interest in the given topics and returns the delivery
// channel plus an unsubscribe func. With no topics the subscriber receives
// everything.
func (h *Hub) Subscribe(topics ...string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	keys := topics
	if len(keys) == 0 {
		keys = []string{""}
	}
	for _, k := range keys {
		h.subs[k] = append(h.subs[k], ch)
	}

	var once sync.Once
	return ch, func() {
		once.Do(func() { h.remove(keys, ch) })
	}
}

func (h *Hub) remove(keys []string, ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, k := range keys {
		list := h.subs[k]
		for i, c := range list {
			if c == ch {
				h.subs[k] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
	if !h.closed {
		close(ch)
	}
}

// Publish delivers the event to the topic's subscribers and to the
// catch-all subscribers. Never blocks: a full subscriber buffer drops the
// event for that subscriber.
func (h *Hub) Publish(ctx context.Context, topic string, payload any) {
	ev := Event{Topic: topic, Payload: payload}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for _, ch := range h.subs[topic] {
		h.deliver(ctx, ch, ev)
	}
	for _, ch := range h.subs[""] {
		h.deliver(ctx, ch, ev)
	}
}

func (h *Hub) deliver(ctx context.Context, ch chan Event, ev Event) {
	select {
	case ch <- ev:
	default:
		h.log.Warn(ctx, "dropping event for slow subscriber", "topic", ev.Topic)
	}
}

// Close shuts the hub down; all subscriber channels are closed and further
// publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	seen := make(map[chan Event]struct{})
	for _, list := range h.subs {
		for _, ch := range list {
			if _, ok := seen[ch]; ok {
				continue
			}
			seen[ch] = struct{}{}
			close(ch)
		}
	}
	h.subs = make(map[string][]chan Event)
}
