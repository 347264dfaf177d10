// Package events implements the fan-out hub between the dispense engine and
// live observers (SSE connections). Publishing never blocks: a subscriber
// whose queue is full is evicted instead of backpressuring the engine.
package events

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Event types published by the engine.
const (
	TypeConnected            = "connected"
	TypeHeartbeat            = "heartbeat"
	TypeFachOpening          = "fach_opening"
	TypeFachClosed           = "fach_closed"
	TypeConfirmationRequired = "confirmation_required"
	TypeConfirmed            = "confirmed"
	TypeConfirmationTimeout  = "confirmation_timeout"
	TypeNotification         = "notification"
)

// NotificationPayload is the payload of a TypeNotification event.
type NotificationPayload struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Event is a single broadcast message. Immutable once constructed.
type Event struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// subscriberBuffer is the per-subscriber queue capacity. A subscriber with
// this many unconsumed events is dropped on the next publish.
const subscriberBuffer = 10

// defaultHeartbeatInterval is how long Next waits for a real event before
// synthesizing a heartbeat.
const defaultHeartbeatInterval = 30 * time.Second

// ErrSubscriptionClosed is returned by Next once the subscription has been
// evicted, unsubscribed, or the broadcaster shut down.
var ErrSubscriptionClosed = errors.New("subscription closed")

// Broadcaster fans out events to all current subscribers.
type Broadcaster struct {
	// HeartbeatInterval is copied into new subscriptions. Exposed so tests
	// can shorten it; defaults to 30s.
	HeartbeatInterval time.Duration

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// Subscription is one observer's receive handle.
type Subscription struct {
	ch        chan Event
	heartbeat time.Duration
	greeted   bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		HeartbeatInterval: defaultHeartbeatInterval,
		subs:              make(map[*Subscription]struct{}),
	}
}

// Subscribe registers a new subscriber. The first call to Next yields a
// synthetic "connected" event.
func (b *Broadcaster) Subscribe() *Subscription {
	sub := &Subscription{
		ch:        make(chan Event, subscriberBuffer),
		heartbeat: b.HeartbeatInterval,
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Unsubscribe removes a subscriber. Safe to call more than once and after
// the subscriber has already been evicted.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

// Publish delivers an event to every subscriber without blocking. Subscribers
// whose queue is full are treated as dead and dropped. After Close, Publish
// is a no-op.
func (b *Broadcaster) Publish(eventType string, data any) {
	ev := Event{Type: eventType, Data: data, Timestamp: time.Now()}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			delete(b.subs, sub)
			close(sub.ch)
		}
	}
}

// SubscriberCount returns the current number of live subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close evicts all subscribers and turns further publishes into no-ops.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

// Next blocks until an event is available. It yields the synthetic
// "connected" event first, a "heartbeat" when no real event arrived within
// the heartbeat interval, ErrSubscriptionClosed once the subscription is
// gone, or the context error on cancellation. Next must only be called from
// one goroutine per subscription.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	if !s.greeted {
		s.greeted = true
		return Event{Type: TypeConnected, Timestamp: time.Now()}, nil
	}

	timer := time.NewTimer(s.heartbeat)
	defer timer.Stop()

	select {
	case ev, ok := <-s.ch:
		if !ok {
			return Event{}, ErrSubscriptionClosed
		}
		return ev, nil
	case <-timer.C:
		return Event{Type: TypeHeartbeat, Timestamp: time.Now()}, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}
