// Package hub provides in-process publish/subscribe for real-time observers
// plus a WebSocket server fanning the same messages out to dashboard
// clients. Delivery is best-effort: a slow subscriber drops messages, never
// blocks a publisher.
package hub

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nats-io/nats.go"

	"github.com/TheGonzalezDesigns/corpus-vision/component"
)

const defaultSubscriberBuffer = 64

// Subscriber is one registered observer. Messages arrive on C() in
// per-subscriber FIFO order; when the buffer fills, new messages for this
// subscriber are dropped.
type Subscriber struct {
	ch chan Message
}

// C returns the subscriber's receive channel. It is closed on Unsubscribe.
func (s *Subscriber) C() <-chan Message {
	return s.ch
}

// Option configures a Hub.
type Option func(*Hub)

// WithSubscriberBuffer sets the per-subscriber channel capacity.
func WithSubscriberBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.bufSize = n
		}
	}
}

// WithNATS mirrors every broadcast to "waldo.events.<type>" on the given
// connection. A nil connection disables the mirror.
func WithNATS(nc *nats.Conn) Option {
	return func(h *Hub) {
		h.nc = nc
	}
}

// Hub distributes messages to zero or more live subscribers. No backlog, no
// replay; a subscriber only sees messages published while registered.
type Hub struct {
	mu      sync.RWMutex
	subs    map[*Subscriber]struct{}
	bufSize int
	nc      *nats.Conn

	published int64
	dropped   int64
}

// New creates a hub.
func New(opts ...Option) *Hub {
	h := &Hub{
		subs:    make(map[*Subscriber]struct{}),
		bufSize: defaultSubscriberBuffer,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a new observer.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{ch: make(chan Message, h.bufSize)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes an observer and closes its channel. Safe to call for
// an already-removed subscriber.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	_, ok := h.subs[sub]
	if ok {
		delete(h.subs, sub)
	}
	h.mu.Unlock()
	if ok {
		close(sub.ch)
	}
}

// Broadcast delivers msg to every current subscriber, best-effort. A full
// subscriber buffer drops the message for that subscriber only.
func (h *Hub) Broadcast(msg Message) {
	atomic.AddInt64(&h.published, 1)

	h.mu.RLock()
	for sub := range h.subs {
		select {
		case sub.ch <- msg:
		default:
			atomic.AddInt64(&h.dropped, 1)
		}
	}
	nc := h.nc
	h.mu.RUnlock()

	if nc != nil {
		if data, err := json.Marshal(msg); err == nil {
			subject := fmt.Sprintf("waldo.events.%s", msg.Type)
			_ = nc.Publish(subject, data)
		}
	}
}

// PublishLog implements component.LogSink so component loggers stream into
// the hub as waldo_log messages.
func (h *Hub) PublishLog(entry component.LogEntry) {
	h.Broadcast(NewLogMessage(entry))
}

// SubscriberCount returns the number of registered subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Stats reports published and dropped message counts.
func (h *Hub) Stats() (published, dropped int64) {
	return atomic.LoadInt64(&h.published), atomic.LoadInt64(&h.dropped)
}

var _ component.LogSink = (*Hub)(nil)
